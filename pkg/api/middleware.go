package api

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const sessionContextKey contextKey = "api-session"

// SessionFromContext retrieves the session a prior call to requireSession
// attached to the request context. Returns nil outside an authenticated
// route.
func SessionFromContext(ctx context.Context) *Session {
	sess, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return sess
}

func withSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// requireSession validates the request's Bearer token and stores the
// resulting Session in the request context. Requests that already carry
// a Session (Server.Handler's in-process callers) skip token validation
// entirely.
func requireSession(jwtSvc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess := SessionFromContext(r.Context()); sess != nil {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := extractBearerToken(r)
			if !ok {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}
			claims, err := jwtSvc.Validate(tokenString)
			if err != nil {
				http.Error(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}
			sess := &Session{Subject: claims.Subject, IssuedAt: claims.IssuedAt.Time, ExpiresAt: claims.ExpiresAt.Time}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}
