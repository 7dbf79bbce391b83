package ws

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/agentlink/internal/domain/history"
)

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func waitForConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, hub.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubPublishNoConnections(t *testing.T) {
	hub := NewHub()
	if err := hub.Publish(context.Background(), "a2a.tasks.status", []byte(`{"project_id":"p1"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Payloads without a project are ignored.
	if err := hub.Publish(context.Background(), "a2a.tasks.status", []byte(`not json`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, projectID: "p1"})
}

func TestHubRoutesByProject(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Subscribe(w, r, r.URL.Query().Get("project"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.URL += "?project=p1"
	c := dial(t, ctx, srv)
	waitForConnections(t, hub, 1)

	if err := hub.Publish(ctx, "a2a.tasks.status", []byte(`{"project_id":"other","task_id":"x"}`)); err != nil {
		t.Fatal(err)
	}
	if err := hub.Publish(ctx, "a2a.tasks.status", []byte(`{"project_id":"p1","task_id":"t1"}`)); err != nil {
		t.Fatal(err)
	}

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "a2a.tasks.status" {
		t.Fatalf("expected status message, got %q", msg.Type)
	}
	if !strings.Contains(string(msg.Payload), `"t1"`) {
		t.Fatalf("expected the p1 event first, got %s", msg.Payload)
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	waitForConnections(t, hub, 0)
}

func TestServeTail(t *testing.T) {
	events := []history.Event{
		{Offset: 10, Data: json.RawMessage(`{"n":1}`)},
		{Offset: 20, Data: json.RawMessage(`{"n":2}`)},
	}
	tail := func(context.Context) iter.Seq2[history.Event, error] {
		return func(yield func(history.Event, error) bool) {
			for _, ev := range events {
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeTail(w, r, tail)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, srv)

	for i, want := range events {
		_, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		var msg struct {
			Type    string         `json:"type"`
			Payload historyPayload `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != EventHistory {
			t.Fatalf("expected %q, got %q", EventHistory, msg.Type)
		}
		if msg.Payload.Offset != want.Offset || string(msg.Payload.Event) != string(want.Data) {
			t.Fatalf("event %d: got %+v", i, msg.Payload)
		}
	}
}
