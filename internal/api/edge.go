package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/audit"
)

// publicPaths need no session: the landing page, the login flow, the
// provider's callback namespace, the not-invited page, and the probes.
var publicPaths = map[string]bool{
	"/":            true,
	"/login":       true,
	"/not-invited": true,
	"/health":      true,
	"/ready":       true,
	"/metrics":     true,
}

var publicPrefixes = []string{"/auth/"}

// apiPrefixes are routes the guard protects itself; the edge filter
// never redirects these, a browser hitting them unauthenticated gets
// the guard's JSON 401.
var apiPrefixes = []string{"/admin/", "/user/", "/internal/"}

// isPublicPath reports whether path is reachable without a session.
func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isAPIPath(path string) bool {
	for _, p := range apiPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// EdgeWrap returns the browser edge filter. Public and API paths pass
// straight through. Other paths require a session: without one the
// browser is redirected to /login so the provider can challenge it.
//
// When precheck is true, sessions on protected pages are additionally
// checked against the allow list and deniers redirected to
// /not-invited. This is an ergonomic shortcut only: the guard
// re-evaluates every API request independently, so a pre-check store
// error falls through to the page rather than blocking it, and a stale
// pre-check can never grant API access.
func (s *Server) EdgeWrap(precheck bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if isPublicPath(path) || isAPIPath(path) {
				next.ServeHTTP(w, r)
				return
			}

			ident, err := s.idp.VerifySession(r.Context(), r)
			if err != nil {
				s.logger.Warn("edge session verification failed", "path", path, "error", err)
				ident = nil
			}
			if ident == nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			if precheck && ident.Email != "" {
				email := allowlist.Normalize(ident.Email)
				ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
				lookup, err := s.allow.IsEmailAllowed(ctx, email)
				cancel()
				switch {
				case err != nil:
					// Can't answer here; the guard behind this page fails
					// closed on its own check.
					s.logger.Warn("edge allowlist pre-check failed", "path", path, "error", err)
				case !lookup.Allowed:
					s.recorder.Record(r.Context(), audit.NewLoginDeny(email, requestMeta(r), lookup.Reason))
					http.Redirect(w, r, "/not-invited", http.StatusFound)
					return
				default:
					s.recorder.Record(r.Context(), audit.NewLoginAllow(email, requestMeta(r)))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
