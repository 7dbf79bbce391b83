package a2aclient

import (
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev, err := range decodeSSE(strings.NewReader(body)) {
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func TestDecodeSSE(t *testing.T) {
	body := ": keepalive\n\n" +
		"event: status\nid: 1\ndata: {\"state\":\"working\"}\n\n" +
		"data: plain text\n\n" +
		"data: {\"a\":\n" + "data: 1}\n\n" +
		"data: {\"last\":true}"

	events := collect(t, body)
	if len(events) != 4 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].Type != "status" || events[0].ID != "1" || string(events[0].Data) != `{"state":"working"}` {
		t.Fatalf("event[0] = %+v", events[0])
	}
	if string(events[1].Data) != `"plain text"` {
		t.Fatalf("non-JSON data should become a JSON string, got %s", events[1].Data)
	}
	if string(events[2].Data) != "{\"a\":\n1}" {
		t.Fatalf("multi-line data = %q", events[2].Data)
	}
	if string(events[3].Data) != `{"last":true}` {
		t.Fatalf("unterminated final event = %s", events[3].Data)
	}
}

func TestDecodeSSE_DoneSentinel(t *testing.T) {
	events := collect(t, "data: {\"n\":1}\n\ndata: [DONE]\n\ndata: {\"n\":2}\n\n")
	if len(events) != 1 {
		t.Fatalf("expected stream to stop at [DONE], got %d events", len(events))
	}
}

func TestDecodeSSE_EarlyBreak(t *testing.T) {
	n := 0
	for range decodeSSE(strings.NewReader("data: 1\n\ndata: 2\n\ndata: 3\n\n")) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("n = %d", n)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDecodeSSE_ReadError(t *testing.T) {
	var gotErr error
	for _, err := range decodeSSE(failingReader{}) {
		gotErr = err
	}
	if gotErr == nil || !strings.Contains(gotErr.Error(), "connection reset") {
		t.Fatalf("err = %v", gotErr)
	}
}
