// Package agentsession defines the contract of the agent runtime that
// produces replies for A2A tasks.
package agentsession

import (
	"context"

	"github.com/Strob0t/agentlink/internal/domain/task"
)

// Session delivers one message to an agent and waits for its reply.
// Implementations must return promptly once ctx is done.
type Session interface {
	SendMessage(ctx context.Context, in task.Input) (*task.Output, error)
}

// Provider opens a session for a logical agent of a project.
type Provider interface {
	Session(ctx context.Context, projectID, agentID string) (Session, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, projectID, agentID string) (Session, error)

// Session calls f.
func (f ProviderFunc) Session(ctx context.Context, projectID, agentID string) (Session, error) {
	return f(ctx, projectID, agentID)
}
