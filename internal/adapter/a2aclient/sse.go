package a2aclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
)

// StreamEvent is one server-sent event from a streaming agent.
type StreamEvent struct {
	Type  string          `json:"type,omitempty"`
	ID    string          `json:"id,omitempty"`
	Retry int             `json:"retry,omitempty"`
	Data  json.RawMessage `json:"data"`
}

const maxEventLine = 1 << 20

// decodeSSE yields events from an event stream. Multi-line data fields are
// joined with newlines. A data payload that is not JSON is yielded as a JSON
// string. The sequence ends at EOF, a "[DONE]" sentinel or a read error.
func decodeSSE(r io.Reader) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), maxEventLine)

		var (
			ev      StreamEvent
			data    strings.Builder
			hasData bool
		)
		flush := func() (cont, done bool) {
			if !hasData && ev.Type == "" {
				return true, false
			}
			payload := data.String()
			if strings.TrimSpace(payload) == "[DONE]" {
				return false, true
			}
			ev.Data = toJSON(payload)
			cont = yield(ev, nil)
			ev, hasData = StreamEvent{}, false
			data.Reset()
			return cont, false
		}

		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				if cont, done := flush(); !cont || done {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				ev.Type = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			case "id":
				ev.ID = value
			case "retry":
				if n, err := strconv.Atoi(value); err == nil {
					ev.Retry = n
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield(StreamEvent{}, fmt.Errorf("read event stream: %w", err))
			return
		}
		flush()
	}
}

func toJSON(payload string) json.RawMessage {
	if payload == "" {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	b, _ := json.Marshal(payload)
	return b
}
