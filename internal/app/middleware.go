package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"authflow-go/internal/session"
)

// contextKey is a custom type to use as a key for context values.
type contextKey string

// tokenContextKey is the key for storing the session token in the request context.
const tokenContextKey = contextKey("sessionToken")

// requireAuth is a middleware that ensures a session token is stored.
// If there is none, it redirects to the login page.
func (a *Application) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := a.Sessions.Load(r.Context())
		if err != nil || token == "" {
			if err != nil && !errors.Is(err, session.ErrNoToken) {
				a.Logger.ErrorContext(r.Context(), "middleware: failed to load session", "error", err)
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, withToken(r, token))
	})
}

// logRequests logs one line per request.
func (a *Application) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		// The query is omitted: it carries authorization codes.
		a.Logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// withToken adds the session token to the request's context.
func withToken(r *http.Request, token string) *http.Request {
	ctx := context.WithValue(r.Context(), tokenContextKey, token)
	return r.WithContext(ctx)
}

// tokenFromContext retrieves the session token from the context.
func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}
