package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/audit"
	"github.com/garnet-sec/garnet/pkg/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type addUserRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"displayName" validate:"max=100"`
	Role        string `json:"role" validate:"omitempty,oneof=admin viewer qa"`
}

type userResponse struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	InvitedBy   string `json:"invitedBy"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func entryToResponse(e *store.Entry) userResponse {
	return userResponse{
		Email:       e.Email,
		DisplayName: e.DisplayName,
		Role:        e.Role,
		InvitedBy:   e.InvitedBy,
		Active:      e.Active,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListUsers returns every allow-list entry, or the matching
// subset when a ?q= search term is present.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	var (
		entries []*store.Entry
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		entries, err = s.allow.SearchUsers(r.Context(), q)
	} else {
		entries, err = s.allow.GetAllUsers(r.Context())
	}
	if err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to list users")
		return
	}

	result := make([]userResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, entryToResponse(e))
	}
	writeJSON(s.logger, w, http.StatusOK, result)
}

// handleAddUser creates or updates an allow-list entry. Re-adding an
// existing email updates its details without resurrecting a revoked
// entry.
func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := PrincipalFrom(r.Context())

	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, r, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	req.Email = allowlist.Normalize(req.Email)
	if req.Role == "" {
		req.Role = store.RoleViewer
	}
	if err := validate.Struct(req); err != nil {
		writeError(s.logger, w, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	if err := s.allow.AddUser(r.Context(), req.Email, req.DisplayName, req.Role, admin.Email); err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to add user")
		return
	}

	s.recorder.Record(r.Context(), audit.NewAdminAddUser(admin.Email, requestMeta(r), req.Email, req.Role))
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   req.Email,
	})
}

// handleToggleUser flips an entry between active and revoked.
func (s *Server) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := PrincipalFrom(r.Context())
	email := allowlist.Normalize(r.PathValue("email"))

	active, err := s.allow.ToggleUserStatus(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(s.logger, w, r, http.StatusBadRequest, "User not found")
		return
	}
	if err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to toggle user")
		return
	}

	s.recorder.Record(r.Context(), audit.NewAdminToggleUser(admin.Email, requestMeta(r), email, active))
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"email":     email,
		"newStatus": active,
	})
}

// handleRemoveUser hard-deletes an allow-list entry. Deleting an
// absent email reports not found without an audit row, since no state
// changed.
func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := PrincipalFrom(r.Context())
	email := allowlist.Normalize(r.PathValue("email"))

	err := s.allow.RemoveUser(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(s.logger, w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeInternalError(s.logger, w, r, err, "Failed to remove user")
		return
	}

	s.recorder.Record(r.Context(), audit.NewAdminRemoveUser(admin.Email, requestMeta(r), email))
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   email,
	})
}
