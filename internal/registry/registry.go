// Package registry implements the server registry on top of a storage backend.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/vpnboard/internal/apperrors"
	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/storage"
)

type Registry struct {
	store storage.Storage
	log   zerolog.Logger
	now   func() time.Time
}

func New(store storage.Storage, log zerolog.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log.With().Str("component", "registry").Logger(),
		now:   time.Now,
	}
}

// Bootstrap prepares the store and, when it did not exist before and a
// connection URL is configured, seeds it with a single server. It must run
// once at startup, before any request is served.
func (r *Registry) Bootstrap(ctx context.Context, connectionURL, name string) (bool, error) {
	created, err := r.store.Migrate(ctx)
	if err != nil {
		return false, err
	}
	connectionURL = strings.TrimSpace(connectionURL)
	if !created || connectionURL == "" {
		return false, nil
	}

	ep, err := r.Add(ctx, name, connectionURL)
	if err != nil {
		return false, err
	}
	r.log.Info().Str("server_id", ep.ID).Msg("seeded registry from configured API URL")
	return true, nil
}

func (r *Registry) List(ctx context.Context) ([]models.Endpoint, error) {
	return r.store.ListEndpoints(ctx)
}

func (r *Registry) Get(ctx context.Context, id string) (*models.Endpoint, error) {
	ep, err := r.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: server %s", apperrors.ErrNotFound, id)
	}
	return ep, nil
}

// Add stores a new server. The URL is not validated here.
func (r *Registry) Add(ctx context.Context, name, connectionURL string) (*models.Endpoint, error) {
	ep := models.NewEndpoint(name, connectionURL, r.now())
	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (r *Registry) Rename(ctx context.Context, id, name string) error {
	ok, err := r.store.RenameEndpoint(ctx, id, strings.TrimSpace(name))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: server %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// Remove deletes a server; removing an unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	return r.store.DeleteEndpoint(ctx, id)
}
