// Audit log store methods. The audit_log table is append-only: no update
// or delete path exists in this package's public surface.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID        int64
	Email     *string // nil when no identity could be determined
	Event     string
	Path      *string
	IP        string
	UserAgent string
	Timestamp time.Time
	Details   map[string]string
}

// AuditFilter specifies criteria for querying audit entries.
// All populated fields are combined with AND.
type AuditFilter struct {
	Email  string
	Event  string
	Since  time.Time
	Until  time.Time
	Limit  int // defaults to 100
	Offset int
}

// EventStat aggregates audit activity for one event type.
type EventStat struct {
	Event          string
	Count          int
	DistinctEmails int
	DistinctIPs    int
}

// denyEvents are the deny-class event types used by RecentDenials.
var denyEvents = []string{"login_deny", "api_deny"}

// InsertAuditEntry appends a new audit log entry. The timestamp is
// server-assigned at write time unless the entry already carries one.
func (s *Store) InsertAuditEntry(ctx context.Context, entry *AuditEntry) (int64, error) {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var detailsJSON sql.NullString
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal details: %w", err)
		}
		detailsJSON.String = string(data)
		detailsJSON.Valid = true
	}

	var email, path sql.NullString
	if entry.Email != nil {
		email.String = *entry.Email
		email.Valid = true
	}
	if entry.Path != nil {
		path.String = *entry.Path
		path.Valid = true
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (email, event, path, ip, user_agent, ts, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		email, entry.Event, path, entry.IP, entry.UserAgent, ts.Unix(), detailsJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// QueryAuditEntries retrieves audit entries matching the given filter,
// ordered by timestamp descending, plus the total matching count
// independent of pagination.
func (s *Store) QueryAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Email != "" {
		conditions = append(conditions, "email = ?")
		args = append(args, filter.Email)
	}
	if filter.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filter.Event)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, filter.Since.Unix())
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "ts <= ?")
		args = append(args, filter.Until.Unix())
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, email, event, path, ip, user_agent, ts, details
	          FROM audit_log` + where +
		` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// AuditStats aggregates counts grouped by event type over a trailing window
// of the given number of days, including distinct-email and distinct-IP
// counts per event type.
func (s *Store) AuditStats(ctx context.Context, days int) ([]*EventStat, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	rows, err := s.db.QueryContext(ctx,
		`SELECT event, COUNT(*), COUNT(DISTINCT email), COUNT(DISTINCT ip)
		 FROM audit_log WHERE ts >= ?
		 GROUP BY event ORDER BY COUNT(*) DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}
	defer rows.Close()

	var stats []*EventStat
	for rows.Next() {
		var st EventStat
		if err := rows.Scan(&st.Event, &st.Count, &st.DistinctEmails, &st.DistinctIPs); err != nil {
			return nil, fmt.Errorf("failed to scan audit stats: %w", err)
		}
		stats = append(stats, &st)
	}
	return stats, rows.Err()
}

// RecentDenials returns deny-class events from a trailing window of the
// given number of hours, newest first, capped at 50 rows. Intended to feed
// alerting such as repeated-denial-from-one-IP detection.
func (s *Store) RecentDenials(ctx context.Context, hours int) ([]*AuditEntry, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()

	placeholders := strings.Repeat("?, ", len(denyEvents)-1) + "?"
	args := make([]interface{}, 0, len(denyEvents)+1)
	for _, ev := range denyEvents {
		args = append(args, ev)
	}
	args = append(args, since)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, event, path, ip, user_agent, ts, details
		 FROM audit_log
		 WHERE event IN (`+placeholders+`) AND ts >= ?
		 ORDER BY ts DESC, id DESC LIMIT 50`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent denials: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanAuditEntry(rows *sql.Rows) (*AuditEntry, error) {
	var entry AuditEntry
	var email, path, detailsJSON sql.NullString
	var ts int64

	err := rows.Scan(&entry.ID, &email, &entry.Event, &path, &entry.IP, &entry.UserAgent, &ts, &detailsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	if email.Valid {
		entry.Email = &email.String
	}
	if path.Valid {
		entry.Path = &path.String
	}
	entry.Timestamp = time.Unix(ts, 0)

	if detailsJSON.Valid && detailsJSON.String != "" {
		entry.Details = make(map[string]string)
		if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}
	return &entry, nil
}
