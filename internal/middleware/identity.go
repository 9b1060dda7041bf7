package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shiva/ridedispatch/internal/model"
)

const actorKey contextKey = "actor"

// Identity headers set by the gateway in front of the API.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

// Identity resolves the calling actor from the identity headers and rejects
// the request with 401 when they are missing or the role is unknown.
// Websocket upgrades may pass user_id and role as query parameters instead,
// since browsers cannot set headers on them.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserIDHeader))
		role := strings.TrimSpace(r.Header.Get(UserRoleHeader))
		if id == "" && isUpgrade(r) {
			id = r.URL.Query().Get("user_id")
			role = r.URL.Query().Get("role")
		}

		if id == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing "+UserIDHeader+" header")
			return
		}
		parsed, ok := model.ParseRole(strings.ToLower(role))
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown role "+role)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), model.Actor{ID: id, Role: parsed})))
	})
}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor set by Identity.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey).(model.Actor)
	return a, ok
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
