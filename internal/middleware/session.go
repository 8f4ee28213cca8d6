package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/studycompanion/studycompanion/internal/auth"
	"github.com/studycompanion/studycompanion/internal/service"
)

// SessionCookieName is the cookie consulted when no bearer token is sent.
const SessionCookieName = "session"

// SessionAuthenticator resolves a token to a live session.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Session, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger        *slog.Logger
	Authenticator SessionAuthenticator
}

// Authenticate attaches the caller's session to the request context when a
// valid token is presented. Requests without one continue anonymously.
func Authenticate(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractSessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := cfg.Authenticator.Authenticate(r.Context(), token)
			if err != nil {
				reason := "invalid_token"
				level := slog.LevelWarn
				if !errors.Is(err, service.ErrInvalidSession) {
					reason = "lookup_failed"
					level = slog.LevelError
				}
				cfg.Logger.LogAttrs(r.Context(), level, "authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			annotateRequestLog(r.Context(), sess.UserID)
			ctx := auth.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests without a session. Apply after Authenticate.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.SessionFromContext(r.Context()) == nil {
			writeAuthError(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractSessionToken reads "Authorization: Bearer <token>", then the session cookie.
func extractSessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`))
}
