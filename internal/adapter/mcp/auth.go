package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Strob0t/agentlink/internal/middleware"
)

// ProjectHeader names the project an MCP session acts for.
const ProjectHeader = "X-Project-ID"

type projectCtxKey struct{}

func withProject(ctx context.Context, projectID string) context.Context {
	if projectID == "" {
		return ctx
	}
	return context.WithValue(ctx, projectCtxKey{}, projectID)
}

func projectFromContext(ctx context.Context) string {
	p, _ := ctx.Value(projectCtxKey{}).(string)
	return p
}

// AuthMiddleware wraps an http.Handler and requires an API key of the
// project named in X-Project-ID, as a Bearer token or X-API-Key header.
// When enabled is false all requests pass through.
func AuthMiddleware(v middleware.KeyValidator, enabled bool, next http.Handler) http.Handler {
	if !enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID := r.Header.Get(ProjectHeader)
		if projectID == "" {
			http.Error(w, "missing "+ProjectHeader+" header", http.StatusBadRequest)
			return
		}

		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}

		_, ok, err := v.ValidateAPIKey(r.Context(), projectID, token)
		if err != nil {
			slog.ErrorContext(r.Context(), "mcp key validation failed", "project_id", projectID, "error", err)
			http.Error(w, "key registry unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
