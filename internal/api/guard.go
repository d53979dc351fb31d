package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/garnet-sec/garnet/internal/metrics"
	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/audit"
)

// Principal is the authenticated, allow-listed caller of a guarded
// request.
type Principal struct {
	Email       string
	Role        string
	DisplayName string
}

type contextKey int

const principalKey contextKey = 0

// PrincipalFrom extracts the authenticated principal from a request
// context. ok is false on unguarded paths.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// requestMeta captures request attribution for audit records.
func requestMeta(r *http.Request) audit.RequestMeta {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// First hop is the client when a trusted proxy set the header.
		ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	} else {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}
	return audit.RequestMeta{
		Path:      r.URL.Path,
		IP:        ip,
		UserAgent: r.UserAgent(),
	}
}

// guard wraps a handler with the authorization protocol. Every request
// resolves to exactly one of: allow (handler runs with a Principal in
// context), 401 when no identity or no email claim could be
// established, 403 when the email is not on the allow list, or 500 when
// the store could not answer. Each outcome writes exactly one audit
// row before the response is sent; a failed audit write never changes
// the outcome.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta := requestMeta(r)
		recorded := false
		deny := func(email, reason string, extra map[string]string) {
			recorded = true
			s.recorder.Record(r.Context(), audit.NewAPIDeny(email, meta, reason, extra))
		}

		// A panicking step must still produce a denial row and a 500,
		// never an allow.
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in guarded request", "path", r.URL.Path, "panic", rec)
				if !recorded {
					func() {
						defer func() { recover() }()
						deny("", "internal_error", map[string]string{"error": fmt.Sprint(rec)})
					}()
				}
				metrics.AuthzDecisions.WithLabelValues("error").Inc()
				writeJSON(s.logger, w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
			}
		}()

		ident, err := s.idp.VerifySession(r.Context(), r)
		if err != nil {
			s.logger.Warn("session verification failed", "path", r.URL.Path, "error", err)
			ident = nil
		}
		if ident == nil {
			deny("", "no session", nil)
			metrics.AuthzDecisions.WithLabelValues("unauthenticated").Inc()
			writeError(s.logger, w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}

		email := ident.Email
		if email == "" && ident.SessionID != "" {
			// Secondary lookup: some providers omit the email claim from
			// the identity token but expose it on the profile.
			if profile, err := s.idp.FetchProfile(r.Context(), ident.SessionID); err == nil && profile != nil {
				email = profile.Email
				if ident.DisplayName == "" {
					ident.DisplayName = profile.DisplayName
				}
			}
		}
		if email == "" {
			deny("", "no email in session", nil)
			metrics.AuthzDecisions.WithLabelValues("unauthenticated").Inc()
			writeError(s.logger, w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}
		email = allowlist.Normalize(email)

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
		lookup, err := s.allow.IsEmailAllowed(ctx, email)
		cancel()
		if err != nil {
			deny(email, "store_error", map[string]string{"error": err.Error()})
			metrics.AuthzDecisions.WithLabelValues("error").Inc()
			writeInternalError(s.logger, w, r, err, "Authorization check failed")
			return
		}
		if !lookup.Allowed {
			extra := map[string]string(nil)
			if lookup.Reason == "inactive" {
				extra = map[string]string{"active": "false"}
			}
			deny(email, "not_in_allowlist", extra)
			metrics.AuthzDecisions.WithLabelValues("forbidden").Inc()
			writeError(s.logger, w, r, http.StatusForbidden, "Access denied")
			return
		}

		recorded = true
		s.recorder.Record(r.Context(), audit.NewAPIAllow(email, meta))
		metrics.AuthzDecisions.WithLabelValues("allow").Inc()

		p := Principal{
			Email:       email,
			Role:        lookup.Entry.Role,
			DisplayName: lookup.Entry.DisplayName,
		}
		if p.DisplayName == "" {
			p.DisplayName = ident.DisplayName
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	}
}
