package api

import (
	"net/http"

	"github.com/garnet-sec/garnet/pkg/audit"
)

// requireRole decorates a guarded handler with a role check. It assumes
// the guard already ran: the principal in context is authenticated and
// allow-listed. Roles compare case-sensitive; the stored role is
// canonical lowercase. A mismatch is a 403 with its own denial row and
// the handler is not invoked.
func (s *Server) requireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(s.logger, w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if p.Role != role {
			s.recorder.Record(r.Context(), audit.NewAPIDeny(p.Email, requestMeta(r),
				"insufficient_permissions", map[string]string{
					"required_role": role,
					"user_role":     p.Role,
				}))
			writeError(s.logger, w, r, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next(w, r)
	}
}
