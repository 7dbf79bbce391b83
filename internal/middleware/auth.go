package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/agentlink/internal/domain/apikey"
)

// ProjectParam is the chi URL parameter carrying the project id.
const ProjectParam = "projectID"

// KeyValidator checks a presented API key against a project's registry.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, projectID, candidate string) (*apikey.Key, bool, error)
}

type apiKeyCtxKey struct{}

// APIKeyAuth returns middleware that requires a valid project API key,
// presented as "Authorization: Bearer <key>" or "X-API-Key: <key>".
// The project is taken from the {projectID} route parameter, so the
// middleware must be mounted inside that route. When enabled is false
// requests pass through unauthenticated.
func APIKeyAuth(v KeyValidator, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			projectID := chi.URLParam(r, ProjectParam)
			if projectID == "" {
				writeAuthError(w, http.StatusBadRequest, "project id required")
				return
			}

			candidate, ok := presentedKey(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "authorization required")
				return
			}

			key, valid, err := v.ValidateAPIKey(r.Context(), projectID, candidate)
			if err != nil {
				slog.ErrorContext(r.Context(), "api key validation failed", "project_id", projectID, "error", err)
				writeAuthError(w, http.StatusServiceUnavailable, "key registry unavailable")
				return
			}
			if !valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFromContext returns the key that authenticated the request, or nil.
func APIKeyFromContext(ctx context.Context) *apikey.Key {
	k, _ := ctx.Value(apiKeyCtxKey{}).(*apikey.Key)
	return k
}

func presentedKey(r *http.Request) (string, bool) {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k, true
	}
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
