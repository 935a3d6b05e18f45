package auth

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// Middleware rejects requests without a valid bearer token and stores the
// resolved owner id in the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.UserIDFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				slog.DebugContext(r.Context(), "Rejected unauthenticated request",
					"path", r.URL.Path, "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated owner id stored by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok && id != ""
}
