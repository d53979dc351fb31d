package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/store"
)

type auditLogResponse struct {
	ID        int64             `json:"id"`
	Email     *string           `json:"email"`
	Event     string            `json:"event"`
	Path      *string           `json:"path"`
	IP        string            `json:"ip"`
	UserAgent string            `json:"userAgent"`
	Timestamp string            `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

func auditEntryToResponse(e *store.AuditEntry) auditLogResponse {
	return auditLogResponse{
		ID:        e.ID,
		Email:     e.Email,
		Event:     e.Event,
		Path:      e.Path,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Details:   e.Details,
	}
}

// handleQueryAudit returns a page of audit entries matching the query
// filters, newest first, with the total match count for pagination.
func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.AuditFilter{
		Email: allowlist.Normalize(q.Get("email")),
		Event: q.Get("event"),
	}
	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(s.logger, w, r, http.StatusBadRequest, "Invalid startDate: "+err.Error())
			return
		}
		filter.Since = t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(s.logger, w, r, http.StatusBadRequest, "Invalid endDate: "+err.Error())
			return
		}
		filter.Until = t
	}
	filter.Limit = intParam(q.Get("limit"), 100)
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	filter.Offset = intParam(q.Get("offset"), 0)

	entries, total, err := s.store.QueryAuditEntries(r.Context(), filter)
	if err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to query audit log")
		return
	}

	logs := make([]auditLogResponse, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, auditEntryToResponse(e))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"pagination": map[string]int{
			"limit":  filter.Limit,
			"offset": filter.Offset,
		},
	})
}

// handleAuditStats returns per-event aggregates over a trailing window
// of ?days= (default 7).
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	days := intParam(r.URL.Query().Get("days"), 7)

	stats, err := s.store.AuditStats(r.Context(), days)
	if err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to compute audit stats")
		return
	}

	result := make([]map[string]interface{}, 0, len(stats))
	for _, st := range stats {
		result = append(result, map[string]interface{}{
			"event":          st.Event,
			"count":          st.Count,
			"distinctEmails": st.DistinctEmails,
			"distinctIps":    st.DistinctIPs,
		})
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"stats": result,
	})
}

// handleRecentDenials returns deny-class events from the last ?hours=
// (default 24), capped at 50.
func (s *Server) handleRecentDenials(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query().Get("hours"), 24)

	entries, err := s.store.RecentDenials(r.Context(), hours)
	if err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to query denials")
		return
	}

	result := make([]auditLogResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, auditEntryToResponse(e))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"hours":   hours,
		"denials": result,
	})
}

// intParam parses a positive integer query parameter, falling back to
// def on absence or garbage.
func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
