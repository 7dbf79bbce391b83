package http

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/Strob0t/agentlink/internal/adapter/ws"
	"github.com/Strob0t/agentlink/internal/domain/history"
)

type historyResponse struct {
	SessionID string            `json:"sessionId"`
	Events    []json.RawMessage `json:"events"`
}

// GetHistory handles GET /a2a/{projectID}/sessions/{sessionID}/history.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	if err := history.ValidateSessionID(sessionID); err != nil {
		writeDomainError(w, err, "")
		return
	}
	events, err := h.History.Get(h.HistoryDir, sessionID)
	if err != nil {
		writeDomainError(w, err, "history not found")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Events: events})
}

// StreamHistory handles GET …/history/stream as server-sent events. Each
// event id is the journal offset, so a reconnecting client resumes with
// Last-Event-ID (or ?from=).
func (h *Handlers) StreamHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	if err := history.ValidateSessionID(sessionID); err != nil {
		writeDomainError(w, err, "")
		return
	}
	from, err := resumeOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev, err := range h.History.Tail(r.Context(), h.HistoryDir, sessionID, from) {
		if err != nil {
			_, _ = fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
			flusher.Flush()
			return
		}
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Offset, ev.Data); err != nil {
			return
		}
		flusher.Flush()
	}
}

// TailHistory handles GET …/history/ws.
func (h *Handlers) TailHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	if err := history.ValidateSessionID(sessionID); err != nil {
		writeDomainError(w, err, "")
		return
	}
	from, err := resumeOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.ServeTail(w, r, func(ctx context.Context) iter.Seq2[history.Event, error] {
		return h.History.Tail(ctx, h.HistoryDir, sessionID, from)
	})
}

func resumeOffset(r *http.Request) (int64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("from")
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid resume offset %q", raw)
	}
	return n, nil
}
