// Allow-list entry store methods.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no allow-list entry exists for an email.
var ErrNotFound = fmt.Errorf("entry not found")

// Roles permitted for an allow-list entry. The schema enforces the same set.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
	RoleQA     = "qa"
)

// ValidRole reports whether role is one of the permitted role values.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleViewer || role == RoleQA
}

// Entry represents one approved identity on the allow list.
type Entry struct {
	Email       string
	DisplayName string
	Role        string
	InvitedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Active      bool
}

// UpsertEntry creates an allow-list entry or, if the email already exists,
// overwrites display_name/role/invited_by and refreshes updated_at. The
// active flag and created_at of an existing row are preserved; new rows are
// created active. The email must already be canonical.
func (s *Store) UpsertEntry(ctx context.Context, email, displayName, role, invitedBy string) error {
	if !ValidRole(role) {
		return fmt.Errorf("invalid role: %s", role)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO allowlist_entries (email, display_name, role, invited_by)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			invited_by = excluded.invited_by,
			updated_at = strftime('%s', 'now')`,
		email, displayName, role, invitedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an allow-list entry by canonical email.
// Returns ErrNotFound if no row exists.
func (s *Store) GetEntry(ctx context.Context, email string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email, display_name, role, invited_by, created_at, updated_at, active
		 FROM allowlist_entries WHERE email = ?`,
		email,
	)
	return scanEntry(row)
}

// DeleteEntry hard-deletes an allow-list entry.
// Returns ErrNotFound if no row exists.
func (s *Store) DeleteEntry(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM allowlist_entries WHERE email = ?`,
		email,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleEntry atomically flips the active flag and returns the resulting
// value. The flip is a single conditional UPDATE so two concurrent togglers
// cannot lose an update; the loser simply observes the post-toggle value.
// Returns ErrNotFound if no row exists.
func (s *Store) ToggleEntry(ctx context.Context, email string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE allowlist_entries SET active = 1 - active, updated_at = ? WHERE email = ?`,
		time.Now().Unix(), email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to toggle entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, ErrNotFound
	}

	var active bool
	if err := tx.QueryRowContext(ctx,
		`SELECT active FROM allowlist_entries WHERE email = ?`, email,
	).Scan(&active); err != nil {
		return false, fmt.Errorf("failed to read toggled entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return active, nil
}

// ListEntries returns all allow-list entries, newest-created first.
func (s *Store) ListEntries(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, display_name, role, invited_by, created_at, updated_at, active
		 FROM allowlist_entries ORDER BY created_at DESC, email`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SearchEntries returns entries whose email or display name contains term,
// case-insensitively, newest-created first.
func (s *Store) SearchEntries(ctx context.Context, term string) ([]*Entry, error) {
	pattern := "%" + strings.ToLower(term) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, display_name, role, invited_by, created_at, updated_at, active
		 FROM allowlist_entries
		 WHERE email LIKE ? OR LOWER(display_name) LIKE ?
		 ORDER BY created_at DESC, email`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	var createdAt, updatedAt int64
	err := row.Scan(&e.Email, &e.DisplayName, &e.Role, &e.InvitedBy, &createdAt, &updatedAt, &e.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

func scanEntryRows(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var createdAt, updatedAt int64
	err := rows.Scan(&e.Email, &e.DisplayName, &e.Role, &e.InvitedBy, &createdAt, &updatedAt, &e.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}
