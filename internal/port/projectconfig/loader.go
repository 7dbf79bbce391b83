// Package projectconfig defines the per-project A2A configuration port.
package projectconfig

import (
	"context"

	"github.com/Strob0t/agentlink/internal/domain/agent"
)

// Loader returns a project's A2A configuration. found is false when the
// project has none.
type Loader interface {
	Load(ctx context.Context, projectID string) (cfg *agent.ProjectConfig, found bool, err error)
}
