package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvedit/internal/logging"
	"github.com/JonMunkholm/csvedit/internal/session"
)

// SessionCookie carries the editing session ID.
const SessionCookie = "csvedit_session"

type sessionKey struct{}

// withSession resolves the caller's session from its cookie, creating a
// fresh one when the cookie is missing or stale. The cookie is re-sent on
// every request so its lifetime tracks the server-side idle timeout.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(SessionCookie); err == nil {
			id = c.Value
		}

		sess, created := s.service.Session(id)
		if created {
			logging.FromContext(r.Context()).Debug("session created", "session_id", sess.ID)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(s.cfg.Session.IdleTimeout.Seconds()),
			HttpOnly: true,
			Secure:   s.cfg.Session.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		ctx = logging.ContextWithSession(ctx, sess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session attached by withSession.
func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}
