// Package apikeystore defines the per-project API key registry port.
package apikeystore

import (
	"context"

	"github.com/Strob0t/agentlink/internal/domain/apikey"
)

// MutateFunc edits the registry inside the exclusive section and reports
// whether it changed. Unchanged registries are not rewritten.
type MutateFunc func(r *apikey.Registry) (changed bool, err error)

// Store loads and updates a project's key registry.
type Store interface {
	// Load returns the registry. A missing file yields an empty registry.
	Load(ctx context.Context, projectID string) (*apikey.Registry, error)

	// Update creates the registry if absent, then applies fn under the
	// registry lock.
	Update(ctx context.Context, projectID string, fn MutateFunc) error
}
