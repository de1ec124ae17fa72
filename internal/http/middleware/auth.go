package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/geopix/geopix-back/internal/domain"
)

const userContextKey contextKey = "user"

// UserResolver maps a presented bearer token to its user.
type UserResolver interface {
	Resolve(ctx context.Context, token string) (*domain.User, error)
}

var publicPaths = map[string]bool{
	"/login":   true,
	"/healthz": true,
}

// Auth resolves the bearer token on every non-public request and stores the
// authenticated user in the request context.
func Auth(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := BearerToken(r)
			if token == "" {
				writeUnauthorized(w, r)
				return
			}

			user, err := resolver.Resolve(r.Context(), token)
			if err != nil || user == nil {
				writeUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header; empty when
// the header is missing or not a bearer scheme.
func BearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
}

// GetUser returns the authenticated user, or nil on public paths.
func GetUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey).(*domain.User)
	return user
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"authentication required"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}
