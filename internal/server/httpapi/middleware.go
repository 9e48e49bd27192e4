package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
)

type ctxKey string

const principalKey ctxKey = "principal"

func principalFrom(ctx context.Context) (*services.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*services.Principal)
	return p, ok && p != nil
}

// sessionToken reads the session cookie, falling back to a bearer token.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(common.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// session resolves the caller's session, if any, into the request context.
// Requests without a valid session continue anonymously.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := s.deps.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, common.ErrorUnauthorized) {
				s.logger.Error(r.Context(), "session lookup failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// requireAuth rejects anonymous callers and hands the principal to h.
func requireAuth(h func(http.ResponseWriter, *http.Request, *services.Principal)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
			return
		}
		h(w, r, p)
	})
}

// rateLimit throttles by client address. A limiter outage lets the request
// through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.deps.Limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			s.logger.Warn(r.Context(), "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			s.deps.Metrics.signIn("rate_limited")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many sign-in attempts. Try again later."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
