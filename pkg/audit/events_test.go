package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/garnet-sec/garnet/pkg/store"
)

var meta = RequestMeta{Path: "/admin/users", IP: "10.0.0.1", UserAgent: "test"}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name        string
		event       Event
		wantType    EventType
		wantDetails map[string]string
	}{
		{
			"api allow carries no details",
			NewAPIAllow("alice@example.com", meta),
			EventAPIAllow,
			nil,
		},
		{
			"api deny merges extra into reason",
			NewAPIDeny("bob@example.com", meta, "not_in_allowlist", map[string]string{"active": "false"}),
			EventAPIDeny,
			map[string]string{"reason": "not_in_allowlist", "active": "false"},
		},
		{
			"login deny carries reason",
			NewLoginDeny("bob@example.com", meta, "inactive"),
			EventLoginDeny,
			map[string]string{"reason": "inactive"},
		},
		{
			"admin add carries target and role",
			NewAdminAddUser("admin@example.com", meta, "new@example.com", "viewer"),
			EventAdminAddUser,
			map[string]string{"target": "new@example.com", "role": "viewer"},
		},
		{
			"admin toggle names the new state",
			NewAdminToggleUser("admin@example.com", meta, "old@example.com", false),
			EventAdminToggleUser,
			map[string]string{"target": "old@example.com", "new_state": "disabled"},
		},
		{
			"session created carries session id",
			NewSessionCreated("alice@example.com", meta, "sess-1"),
			EventSessionCreated,
			map[string]string{"session_id": "sess-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", tt.event.Type, tt.wantType)
			}
			if tt.event.Path != meta.Path || tt.event.IP != meta.IP {
				t.Errorf("meta not carried: %+v", tt.event)
			}
			if len(tt.event.Details) != len(tt.wantDetails) {
				t.Fatalf("Details = %v, want %v", tt.event.Details, tt.wantDetails)
			}
			for k, v := range tt.wantDetails {
				if tt.event.Details[k] != v {
					t.Errorf("Details[%s] = %s, want %s", k, tt.event.Details[k], v)
				}
			}
		})
	}
}

func TestRecorder_Record(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer st.Close()

	r := NewRecorder(st, nil)
	r.Record(context.Background(), NewAPIDeny("alice@example.com", meta, "no session", nil))

	entries, total, err := st.QueryAuditEntries(context.Background(), store.AuditFilter{})
	if err != nil {
		t.Fatalf("QueryAuditEntries() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	e := entries[0]
	if e.Event != string(EventAPIDeny) {
		t.Errorf("Event = %s, want api_deny", e.Event)
	}
	if e.Email == nil || *e.Email != "alice@example.com" {
		t.Errorf("Email = %v", e.Email)
	}
	if e.Details["reason"] != "no session" {
		t.Errorf("Details = %v", e.Details)
	}
}

func TestRecorder_FailureDoesNotPropagate(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	st.Close()

	// Record against a closed store must not panic or return anything.
	r := NewRecorder(st, nil)
	r.Record(context.Background(), NewAPIAllow("alice@example.com", meta))
}
