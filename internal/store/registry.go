package store

import (
	"context"

	"github.com/google/uuid"
)

// Registry allocates session identifiers and fronts the store's listing and
// deletion operations for the front-ends.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over the given store.
func NewRegistry(s Store) *Registry {
	return &Registry{store: s}
}

// NewSession allocates a fresh opaque session identifier. The record itself
// is created lazily on the session's first turn.
func (r *Registry) NewSession() string {
	return uuid.NewString()
}

// Sessions lists the valid persisted sessions.
func (r *Registry) Sessions(ctx context.Context) ([]SessionInfo, error) {
	return r.store.List(ctx)
}

// Delete removes a session's backing record.
func (r *Registry) Delete(ctx context.Context, sessionID string) (bool, error) {
	return r.store.Delete(ctx, sessionID)
}
