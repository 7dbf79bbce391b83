// Package history defines the per-session A2A event journal entry.
package history

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Strob0t/agentlink/internal/domain"
)

// Event is one opaque JSON record in a session journal.
type Event struct {
	// Offset is the byte position just past this event's line. A tail
	// consumer resumes from it.
	Offset int64
	Data   json.RawMessage
}

// MarshalJSON emits the raw payload only.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Data) == 0 {
		return []byte("null"), nil
	}
	return e.Data, nil
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateSessionID rejects ids that could escape the history directory.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q: %w", id, domain.ErrValidation)
	}
	return nil
}
