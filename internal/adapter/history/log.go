// Package history stores per-session A2A events as newline-delimited JSON
// and tails them for live observers.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/Strob0t/agentlink/internal/domain/history"
	"github.com/Strob0t/agentlink/internal/port/historylog"
)

// Dir is the history directory relative to a working directory.
const Dir = ".a2a/history"

// DefaultPollInterval is how often Tail checks for growth.
const DefaultPollInterval = 500 * time.Millisecond

// Log implements historylog.Log on the local filesystem.
type Log struct {
	pollInterval time.Duration
}

var _ historylog.Log = (*Log)(nil)

// New creates a Log. A non-positive interval uses DefaultPollInterval.
func New(pollInterval time.Duration) *Log {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Log{pollInterval: pollInterval}
}

// Path returns the journal file of a session.
func Path(workingDir, sessionID string) (string, error) {
	if err := history.ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(workingDir, Dir, sessionID+".jsonl"), nil
}

// Append writes event as one JSON line.
func (l *Log) Append(workingDir, sessionID string, event any) error {
	path, err := Path(workingDir, sessionID)
	if err != nil {
		return err
	}
	line, err := encodeLine(event)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // session id is validated
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append history: %w", err)
	}
	return f.Close()
}

func encodeLine(event any) ([]byte, error) {
	var raw []byte
	switch v := event.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("encode history event: %w", err)
		}
		raw = b
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("history event is not valid JSON: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Get returns every parseable event of a session in append order. A missing
// journal yields an empty slice.
func (l *Log) Get(workingDir, sessionID string) ([]json.RawMessage, error) {
	path, err := Path(workingDir, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // session id is validated
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	events := []json.RawMessage{}
	for line := range bytes.SplitSeq(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		events = append(events, json.RawMessage(line))
	}
	return events, nil
}

// Tail yields events appended at or after fromOffset. It waits for the
// journal to exist, then polls its size and reads only the new bytes. A
// trailing line without its newline is held back until complete; malformed
// lines are skipped. The sequence ends when ctx is done. Each event carries
// the offset to resume from.
func (l *Log) Tail(ctx context.Context, workingDir, sessionID string, fromOffset int64) iter.Seq2[history.Event, error] {
	return func(yield func(history.Event, error) bool) {
		path, err := Path(workingDir, sessionID)
		if err != nil {
			yield(history.Event{}, err)
			return
		}

		ticker := time.NewTicker(l.pollInterval)
		defer ticker.Stop()

		offset := max(fromOffset, 0)
		var pending []byte
		for {
			info, err := os.Stat(path)
			switch {
			case err == nil:
				size := info.Size()
				if size < offset {
					// Replaced or truncated: start over.
					offset, pending = 0, nil
				}
				if size > offset {
					chunk, err := readRange(path, offset, size)
					if err != nil {
						if !yield(history.Event{}, err) {
							return
						}
						break
					}
					offset += int64(len(chunk))
					pending = append(pending, chunk...)

					pos := offset - int64(len(pending))
					for {
						i := bytes.IndexByte(pending, '\n')
						if i < 0 {
							break
						}
						line := bytes.TrimSpace(pending[:i])
						pending = pending[i+1:]
						pos += int64(i + 1)
						if len(line) == 0 || !json.Valid(line) {
							continue
						}
						if !yield(history.Event{Offset: pos, Data: bytes.Clone(line)}, nil) {
							return
						}
					}
				}
			case !errors.Is(err, os.ErrNotExist):
				if !yield(history.Event{}, fmt.Errorf("stat history: %w", err)) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func readRange(path string, from, to int64) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // session id is validated
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	buf := make([]byte, to-from)
	n, err := f.ReadAt(buf, from)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return buf[:n], nil
}
