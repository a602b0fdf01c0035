package models

import (
	"strings"
	"time"
)

// Endpoint is one managed remote server. ConnectionURL embeds the management
// API token and is excluded from JSON so an Endpoint can never be encoded
// into a response by accident; use ToSafeView for anything leaving the process.
type Endpoint struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ConnectionURL string `json:"-"`
	AddedAt       int64  `json:"addedAt"`
}

// SafeEndpoint is the only representation of an Endpoint allowed to cross the
// process boundary.
type SafeEndpoint struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	AddedAt int64  `json:"addedAt"`
}

// NewEndpoint builds a descriptor with a fresh id. Name and URL are trimmed
// and otherwise left untouched.
func NewEndpoint(name, connectionURL string, now time.Time) *Endpoint {
	return &Endpoint{
		ID:            NewID(),
		Name:          strings.TrimSpace(name),
		ConnectionURL: strings.TrimSpace(connectionURL),
		AddedAt:       now.UnixMilli(),
	}
}

func ToSafeView(ep Endpoint) SafeEndpoint {
	return SafeEndpoint{ID: ep.ID, Name: ep.Name, AddedAt: ep.AddedAt}
}

func ToSafeViews(eps []Endpoint) []SafeEndpoint {
	out := make([]SafeEndpoint, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ToSafeView(ep))
	}
	return out
}
