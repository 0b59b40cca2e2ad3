package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcoot/pingpong/internal/api/apierr"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/auth"
	"github.com/mcoot/pingpong/internal/storage"
)

type contextKey string

const (
	actorContextKey   contextKey = "actor"
	sessionContextKey contextKey = "session"
)

// AdminAuth requires a valid session token whose principal is on the admins
// allow-list. The allow-list is checked on every request so revocation takes
// effect immediately. A failed check is treated as not-admin.
func AdminAuth(authService *auth.Service, store storage.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := authService.Validate(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ok, err := store.IsAdmin(r.Context(), session.Principal.ID)
			if err != nil {
				logger.Warn("admin check failed",
					slog.String("principal_id", string(session.Principal.ID)),
					slog.String("error", err.Error()))
			}
			if err != nil || !ok {
				apierr.WriteError(w, model.ErrNotAuthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, actorContextKey, model.AdminIdentity(session.Principal))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// GetActor returns the identity acting on the request, NoIdentity if none
func GetActor(ctx context.Context) model.Identity {
	actor, ok := ctx.Value(actorContextKey).(model.Identity)
	if !ok {
		return model.NoIdentity()
	}
	return actor
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}
