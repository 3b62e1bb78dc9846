package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"galaxy/internal/session"
)

// SessionMiddleware resolves the session cookie and stores the session in the
// request context. Requests without a valid session continue anonymously.
func SessionMiddleware(m *session.Manager, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := m.Load(r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					// Tampered, expired or unreadable: drop the cookie.
					m.ClearCookie(w)
					log.Info("rejected session cookie", zap.Error(err), zap.String("remote", r.RemoteAddr))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

// RequireAuth redirects to the login page when the request has no session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session.Current(r) == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
