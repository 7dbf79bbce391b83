package http

import (
	"net/http"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/agentlink/internal/middleware"
)

// requestTimeout bounds non-streaming requests.
const requestTimeout = 30 * time.Second

// MountRoutes registers the agent card and the project-scoped A2A API.
// Everything under /a2a/{projectID} requires a project API key when
// authEnabled is set.
func MountRoutes(r chi.Router, h *Handlers, card *a2a.AgentCard, keys middleware.KeyValidator, authEnabled bool) {
	cardHandler := AgentCardHandler(card)
	r.Method(http.MethodGet, a2asrv.WellKnownAgentCardPath, cardHandler)
	if a2asrv.WellKnownAgentCardPath != LegacyAgentCardPath {
		r.Method(http.MethodGet, LegacyAgentCardPath, cardHandler)
	}

	r.Route("/a2a/{"+middleware.ProjectParam+"}", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(keys, authEnabled))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			// Tasks
			r.Post("/tasks", h.CreateTask)
			r.Get("/tasks", h.ListTasks)
			r.Get("/tasks/{taskID}", h.GetTask)
			r.Post("/tasks/{taskID}/cancel", h.CancelTask)
			r.Post("/tasks/{taskID}/status", h.UpdateTaskStatus)

			// History
			r.Get("/sessions/{sessionID}/history", h.GetHistory)
		})

		// Long-lived streams
		r.Get("/sessions/{sessionID}/history/stream", h.StreamHistory)
		r.Get("/sessions/{sessionID}/history/ws", h.TailHistory)
		if h.Events != nil {
			r.Get("/events/ws", func(w http.ResponseWriter, r *http.Request) {
				h.Events.Subscribe(w, r, urlParam(r, middleware.ProjectParam))
			})
		}
	})
}
