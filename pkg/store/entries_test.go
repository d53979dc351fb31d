package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGetEntry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntry(ctx, "alice@example.com", "Alice", RoleAdmin, "system"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}

	e, err := s.GetEntry(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if e.Email != "alice@example.com" || e.DisplayName != "Alice" || e.Role != RoleAdmin {
		t.Errorf("GetEntry() = %+v, want alice/Alice/admin", e)
	}
	if !e.Active {
		t.Error("new entry should be active")
	}
	if e.InvitedBy != "system" {
		t.Errorf("InvitedBy = %q, want system", e.InvitedBy)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetEntry(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertEntry_PreservesActiveAndCreatedAt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntry(ctx, "bob@example.com", "Bob", RoleViewer, "admin@example.com"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	before, _ := s.GetEntry(ctx, "bob@example.com")

	// Revoke, then upsert again with new details
	if _, err := s.ToggleEntry(ctx, "bob@example.com"); err != nil {
		t.Fatalf("ToggleEntry() error = %v", err)
	}
	if err := s.UpsertEntry(ctx, "bob@example.com", "Robert", RoleQA, "other@example.com"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}

	after, err := s.GetEntry(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if after.Active {
		t.Error("upsert must not resurrect a revoked entry")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
	if after.DisplayName != "Robert" || after.Role != RoleQA || after.InvitedBy != "other@example.com" {
		t.Errorf("details not overwritten: %+v", after)
	}
}

func TestUpsertEntry_InvalidRole(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpsertEntry(context.Background(), "x@example.com", "", "superuser", "system")
	if err == nil {
		t.Fatal("UpsertEntry() with invalid role should fail")
	}
}

func TestToggleEntry_Involution(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntry(ctx, "carol@example.com", "", RoleViewer, "system"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}

	active, err := s.ToggleEntry(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("ToggleEntry() error = %v", err)
	}
	if active {
		t.Error("first toggle should deactivate")
	}

	active, err = s.ToggleEntry(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("ToggleEntry() error = %v", err)
	}
	if !active {
		t.Error("second toggle should reactivate")
	}

	e, _ := s.GetEntry(ctx, "carol@example.com")
	if !e.Active {
		t.Error("entry should be active after double toggle")
	}
}

func TestToggleEntry_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.ToggleEntry(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleEntry() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntry(ctx, "dave@example.com", "", RoleViewer, "system"); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	if err := s.DeleteEntry(ctx, "dave@example.com"); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if _, err := s.GetEntry(ctx, "dave@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry() after delete error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteEntry(ctx, "dave@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteEntry() twice error = %v, want ErrNotFound", err)
	}
}

func TestListEntries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if err := s.UpsertEntry(ctx, email, "", RoleViewer, "system"); err != nil {
			t.Fatalf("UpsertEntry(%s) error = %v", email, err)
		}
	}

	entries, err := s.ListEntries(ctx)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListEntries() returned %d entries, want 3", len(entries))
	}
}

func TestSearchEntries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEntry(ctx, "alice@corp.com", "Alice Smith", RoleViewer, "system"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntry(ctx, "bob@other.org", "Bob Jones", RoleViewer, "system"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		term string
		want int
	}{
		{"by email domain", "corp.com", 1},
		{"by display name", "jones", 1},
		{"case insensitive", "ALICE", 1},
		{"no match", "zebra", 0},
		{"matches both", "@", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.SearchEntries(ctx, tt.term)
			if err != nil {
				t.Fatalf("SearchEntries() error = %v", err)
			}
			if len(entries) != tt.want {
				t.Errorf("SearchEntries(%q) returned %d entries, want %d", tt.term, len(entries), tt.want)
			}
		})
	}
}
