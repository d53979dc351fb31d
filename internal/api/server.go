// Package api implements the HTTP surface of the authorization engine:
// the guard protocol around protected routes, the admin mutation API,
// the audit query API, and the browser edge filter.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/garnet-sec/garnet/internal/version"
	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/audit"
	"github.com/garnet-sec/garnet/pkg/idp"
	"github.com/garnet-sec/garnet/pkg/store"
)

// ServerConfig holds configuration options for the API server.
type ServerConfig struct {
	// StoreTimeout bounds each store call made on behalf of a request.
	// Defaults to 5 seconds if zero.
	StoreTimeout time.Duration
	// WebhookSecret authenticates session-event notifications from the
	// identity provider. Empty disables the endpoint.
	WebhookSecret string
}

// Server is the HTTP API server.
type Server struct {
	store    *store.Store
	allow    *allowlist.Service
	recorder *audit.Recorder
	idp      idp.Client
	logger   *slog.Logger
	cfg      ServerConfig
}

// NewServer creates an API server over the given collaborators.
func NewServer(st *store.Store, allow *allowlist.Service, recorder *audit.Recorder, idpClient idp.Client, logger *slog.Logger, cfg ServerConfig) *Server {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		allow:    allow,
		recorder: recorder,
		idp:      idpClient,
		logger:   logger,
		cfg:      cfg,
	}
}

// RegisterRoutes registers all API routes. preFilters are applied, in
// order, in front of every admin mutation.
func (s *Server) RegisterRoutes(mux *http.ServeMux, preFilters ...Middleware) {
	chain := Chain(preFilters...)
	adminMutation := func(h http.HandlerFunc) http.Handler {
		return chain(http.HandlerFunc(s.guard(s.requireRole(store.RoleAdmin, h))))
	}
	adminRead := func(h http.HandlerFunc) http.HandlerFunc {
		return s.guard(s.requireRole(store.RoleAdmin, h))
	}

	// User management routes
	mux.HandleFunc("GET /admin/users", adminRead(s.handleListUsers))
	mux.Handle("POST /admin/users", adminMutation(s.handleAddUser))
	mux.Handle("PATCH /admin/users/{email}/toggle", adminMutation(s.handleToggleUser))
	mux.Handle("DELETE /admin/users/{email}", adminMutation(s.handleRemoveUser))

	// Audit query routes
	mux.HandleFunc("GET /admin/audit", adminRead(s.handleQueryAudit))
	mux.HandleFunc("GET /admin/audit/stats", adminRead(s.handleAuditStats))
	mux.HandleFunc("GET /admin/audit/denials", adminRead(s.handleRecentDenials))

	// Any allow-listed user
	mux.HandleFunc("GET /user/profile", s.guard(s.handleProfile))

	// Provider-to-engine notifications
	mux.HandleFunc("POST /internal/session-events", s.handleSessionEvents)

	// Health routes (no auth required - bypassed in the edge filter)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
}

// handleProfile returns the authenticated caller's own allow-list entry.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(s.logger, w, r, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{
		"email":        p.Email,
		"display_name": p.DisplayName,
		"role":         p.Role,
	})
}

type sessionEventRequest struct {
	Event     string `json:"event"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
}

var sessionEventTypes = map[string]audit.EventType{
	"session_created":     audit.EventSessionCreated,
	"session_expired":     audit.EventSessionExpired,
	"session_invalidated": audit.EventSessionInvalidated,
}

// handleSessionEvents records session lifecycle notifications pushed by
// the identity provider, authenticated by a shared secret header.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret == "" {
		writeError(s.logger, w, r, http.StatusNotFound, "Session events not configured")
		return
	}
	got := r.Header.Get("X-Garnet-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
		writeError(s.logger, w, r, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	var req sessionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, r, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if _, ok := sessionEventTypes[req.Event]; !ok {
		writeError(s.logger, w, r, http.StatusBadRequest, "Unknown event: "+req.Event)
		return
	}

	email := allowlist.Normalize(req.Email)
	meta := requestMeta(r)
	switch sessionEventTypes[req.Event] {
	case audit.EventSessionCreated:
		s.recorder.Record(r.Context(), audit.NewSessionCreated(email, meta, req.SessionID))
	case audit.EventSessionExpired:
		s.recorder.Record(r.Context(), audit.NewSessionExpired(email, meta, req.SessionID))
	case audit.EventSessionInvalidated:
		s.recorder.Record(r.Context(), audit.NewSessionInvalidated(email, meta, req.SessionID))
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth is the liveness probe endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleReady is the readiness probe endpoint.
// Returns 200 if ready to serve traffic, 503 if not ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if err := s.store.DB().PingContext(r.Context()); err != nil {
		checks["database"] = "failed"
		allOK = false
	} else {
		checks["database"] = "ok"
	}

	response := map[string]interface{}{
		"status": "ready",
		"checks": checks,
	}
	if !allOK {
		response["status"] = "not_ready"
		writeJSON(s.logger, w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, response)
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, status int, message string) {
	logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "message", message)
	writeJSON(logger, w, status, map[string]string{"error": message})
}

// writeInternalError logs the detailed error internally and returns a
// generic message to the client.
func writeInternalError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error, genericMsg string) {
	logger.Error("internal error", "method", r.Method, "path", r.URL.Path, "message", genericMsg, "error", err)
	writeJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": genericMsg})
}
