package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// ContextStore persists finished run contexts, keyed by run ID.
// It backs the engine's execution history across restarts.
type ContextStore interface {
	// Save persists the context for its run ID.
	Save(ctx context.Context, runCtx *domain.Context) error

	// Load retrieves a run context by ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Context, error)

	// Delete removes a run context.
	Delete(ctx context.Context, runID string) error

	// List returns the known run IDs.
	List(ctx context.Context) ([]string, error)
}
