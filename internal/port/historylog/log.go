// Package historylog defines the append-only session journal port.
package historylog

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/Strob0t/agentlink/internal/domain/history"
)

// Log records and replays A2A events per (working directory, session).
type Log interface {
	Append(workingDir, sessionID string, event any) error
	Get(workingDir, sessionID string) ([]json.RawMessage, error)

	// Tail yields events appended at or after fromOffset until ctx is done.
	Tail(ctx context.Context, workingDir, sessionID string, fromOffset int64) iter.Seq2[history.Event, error]
}
