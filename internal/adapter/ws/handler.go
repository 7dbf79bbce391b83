// Package ws implements the WebSocket adapter: live task events per project
// and session history tails.
package ws

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/Strob0t/agentlink/internal/domain/history"
	"github.com/Strob0t/agentlink/internal/port/messagequeue"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventHistory is the message type of a journaled session event.
const EventHistory = "history.event"

// historyPayload wraps a journaled event with its resume offset.
type historyPayload struct {
	Offset int64           `json:"offset"`
	Event  json.RawMessage `json:"event"`
}

// conn wraps a single WebSocket connection.
type conn struct {
	ws        *websocket.Conn
	cancel    context.CancelFunc
	projectID string
}

// Hub manages task-event subscribers and broadcasts lifecycle messages to
// the ones watching the affected project.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

var _ messagequeue.Publisher = (*Hub)(nil)

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// Subscribe upgrades the request and registers it for projectID's task
// events. It returns once the client disconnects.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, projectID string) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, projectID: projectID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "project_id", projectID)

	defer func() {
		h.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()
	// Read loop to detect disconnects and consume pings.
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

// Publish broadcasts a queue message to subscribers of the project named by
// the payload's project_id. Messages without one are dropped.
func (h *Hub) Publish(ctx context.Context, subject string, data []byte) error {
	var envelope struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.ProjectID == "" {
		slog.Debug("websocket publish without project", "subject", subject)
		return nil
	}
	h.Broadcast(ctx, envelope.ProjectID, Message{Type: subject, Payload: data})
	return nil
}

// Broadcast sends a message to every subscriber of projectID.
func (h *Hub) Broadcast(ctx context.Context, projectID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.projectID != projectID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "project_id", c.projectID)
	}
}

// TailFunc opens a history tail bound to ctx.
type TailFunc func(ctx context.Context) iter.Seq2[history.Event, error]

// ServeTail upgrades the request and streams the events of tail until the
// client goes away or the tail ends.
func ServeTail(w http.ResponseWriter, r *http.Request, tail TailFunc) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	// CloseRead cancels ctx once the peer closes or sends a data frame.
	ctx := ws.CloseRead(r.Context())

	for ev, err := range tail(ctx) {
		if err != nil {
			slog.Warn("history tail error", "error", err)
			_ = ws.Close(websocket.StatusInternalError, "history unavailable")
			return
		}
		payload, err := json.Marshal(historyPayload{Offset: ev.Offset, Event: ev.Data})
		if err != nil {
			continue
		}
		data, err := json.Marshal(Message{Type: EventHistory, Payload: payload})
		if err != nil {
			continue
		}
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
