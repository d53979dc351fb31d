// Package audit defines the closed set of audit event types and a
// best-effort recorder that appends them to the store.
package audit

// EventType identifies what happened. The set is closed: the store
// schema enforces the same values, so adding an event type means
// updating both.
type EventType string

const (
	// Auth-decision events, one per guarded request.
	EventLoginAllow EventType = "login_allow"
	EventLoginDeny  EventType = "login_deny"
	EventAPIAllow   EventType = "api_allow"
	EventAPIDeny    EventType = "api_deny"

	// Admin mutations against the allow list.
	EventAdminAddUser    EventType = "admin_add_user"
	EventAdminRemoveUser EventType = "admin_remove_user"
	EventAdminToggleUser EventType = "admin_toggle_user"

	// Session lifecycle, reported by the identity provider.
	EventSessionCreated     EventType = "session_created"
	EventSessionExpired     EventType = "session_expired"
	EventSessionInvalidated EventType = "session_invalidated"
)

// Event is one audit record ready to append. Details carry only fields
// relevant to the event type and never secrets.
type Event struct {
	Type      EventType
	Email     string // empty when no identity could be determined
	Path      string
	IP        string
	UserAgent string
	Details   map[string]string
}

// RequestMeta carries the request attribution common to every event.
type RequestMeta struct {
	Path      string
	IP        string
	UserAgent string
}

func newEvent(t EventType, email string, meta RequestMeta, details map[string]string) Event {
	return Event{
		Type:      t,
		Email:     email,
		Path:      meta.Path,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   details,
	}
}

// NewLoginAllow records a successful browser-edge admission.
func NewLoginAllow(email string, meta RequestMeta) Event {
	return newEvent(EventLoginAllow, email, meta, nil)
}

// NewLoginDeny records a browser-edge denial with the reason code.
func NewLoginDeny(email string, meta RequestMeta, reason string) Event {
	return newEvent(EventLoginDeny, email, meta, map[string]string{"reason": reason})
}

// NewAPIAllow records a guard admission for an API request.
func NewAPIAllow(email string, meta RequestMeta) Event {
	return newEvent(EventAPIAllow, email, meta, nil)
}

// NewAPIDeny records a guard denial. extra merges event-specific fields
// (required_role, active, error) into the details alongside the reason.
func NewAPIDeny(email string, meta RequestMeta, reason string, extra map[string]string) Event {
	details := map[string]string{"reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	return newEvent(EventAPIDeny, email, meta, details)
}

// NewAdminAddUser records an admin creating or updating an entry.
func NewAdminAddUser(admin string, meta RequestMeta, target, role string) Event {
	return newEvent(EventAdminAddUser, admin, meta, map[string]string{
		"target": target,
		"role":   role,
	})
}

// NewAdminRemoveUser records an admin deleting an entry.
func NewAdminRemoveUser(admin string, meta RequestMeta, target string) Event {
	return newEvent(EventAdminRemoveUser, admin, meta, map[string]string{
		"target": target,
	})
}

// NewAdminToggleUser records an admin flipping an entry's active flag.
func NewAdminToggleUser(admin string, meta RequestMeta, target string, active bool) Event {
	state := "disabled"
	if active {
		state = "enabled"
	}
	return newEvent(EventAdminToggleUser, admin, meta, map[string]string{
		"target":    target,
		"new_state": state,
	})
}

// NewSessionCreated records a session-established notification.
func NewSessionCreated(email string, meta RequestMeta, sessionID string) Event {
	return newEvent(EventSessionCreated, email, meta, map[string]string{
		"session_id": sessionID,
	})
}

// NewSessionExpired records a session-expiry notification.
func NewSessionExpired(email string, meta RequestMeta, sessionID string) Event {
	return newEvent(EventSessionExpired, email, meta, map[string]string{
		"session_id": sessionID,
	})
}

// NewSessionInvalidated records an explicit session revocation.
func NewSessionInvalidated(email string, meta RequestMeta, sessionID string) Event {
	return newEvent(EventSessionInvalidated, email, meta, map[string]string{
		"session_id": sessionID,
	})
}
