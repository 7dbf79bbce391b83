// Package taskstore defines the durable task persistence port.
package taskstore

import (
	"context"

	"github.com/Strob0t/agentlink/internal/domain/task"
)

// MutateFunc edits a task inside the store's exclusive section. The task it
// receives is freshly read under the lock; returning an error aborts the write.
type MutateFunc func(t *task.Task) error

// Store persists one record per task, grouped by project.
type Store interface {
	// Create writes a new record. It fails if the id already exists.
	Create(ctx context.Context, t *task.Task) error

	// Get returns the record, or an error wrapping task.ErrNotFound when absent.
	Get(ctx context.Context, projectID, taskID string) (*task.Task, error)

	// Update applies fn to the current record under an exclusive per-task lock
	// and atomically writes the result.
	Update(ctx context.Context, projectID, taskID string, fn MutateFunc) (*task.Task, error)

	// List returns every readable record for the project in no particular
	// order. Unreadable records are skipped. A missing project yields nil, nil.
	List(ctx context.Context, projectID string) ([]task.Task, error)
}
