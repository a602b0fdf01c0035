package storage

import (
	"context"

	"github.com/shohag/vpnboard/internal/models"
)

// Storage persists the endpoint registry. Lookups of unknown ids return
// (nil, nil); mutations of unknown ids are reported by the returned bool.
type Storage interface {
	ListEndpoints(ctx context.Context) ([]models.Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	RenameEndpoint(ctx context.Context, id, name string) (bool, error)
	DeleteEndpoint(ctx context.Context, id string) error

	// Migrate prepares the backing store and reports whether it was created
	// by this call.
	Migrate(ctx context.Context) (bool, error)
	Close() error
}
