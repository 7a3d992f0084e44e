package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"nvision.io/internal/audit"
	"nvision.io/internal/auth"
)

type roleSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Inherits    []string `json:"inherits,omitempty"`
	Permissions []string `json:"permissions"`
}

type defineRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	Inherits    []string `json:"inherits"`
}

type assignmentRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Action string `json:"action"`
}

type grantRequest struct {
	UserID     string `json:"user_id"`
	Permission string `json:"permission"`
	Action     string `json:"action"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermAPIAccess) {
			return
		}
		names := a.registry.RoleNames()
		out := make([]roleSummary, 0, len(names))
		for _, name := range names {
			def, ok := a.registry.Role(name)
			if !ok {
				continue
			}
			out = append(out, roleToSummary(def))
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": out})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermAPIAdmin) {
			return
		}
		var req defineRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perms := make([]auth.Permission, 0, len(req.Permissions))
		for _, p := range req.Permissions {
			perms = append(perms, auth.Permission(p))
		}
		if err := a.registry.DefineRole(req.Name, req.Description, perms, req.Inherits...); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.defined", map[string]any{
			"role": req.Name,
		})
		def, _ := a.registry.Role(req.Name)
		writeJSON(w, http.StatusCreated, roleToSummary(def))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermAPIAccess) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/rbac/roles/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "role not found")
		return
	}
	def, ok := a.registry.Role(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "role not found")
		return
	}
	writeJSON(w, http.StatusOK, roleToSummary(def))
}

func (a *API) handleAssignments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermAPIAdmin) {
		return
	}

	var req assignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.Role == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and role are required")
		return
	}

	var err error
	switch req.Action {
	case "", "assign":
		err = a.registry.AssignRole(req.UserID, req.Role)
	case "remove":
		err = a.registry.RemoveRole(req.UserID, req.Role)
	default:
		writeError(w, r, http.StatusBadRequest, "action must be assign or remove")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	_ = audit.LogEvent(r.Context(), "rbac.role.assignment", map[string]any{
		"target_user": req.UserID,
		"role":        req.Role,
		"action":      defaultAction(req.Action, "assign"),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": req.UserID,
		"roles":   a.registry.UserRoles(req.UserID),
	})
}

func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermAPIAdmin) {
		return
	}

	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.Permission == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and permission are required")
		return
	}

	var err error
	switch req.Action {
	case "", "grant":
		err = a.registry.GrantPermission(req.UserID, auth.Permission(req.Permission))
	case "revoke":
		err = a.registry.RevokePermission(req.UserID, auth.Permission(req.Permission))
	default:
		writeError(w, r, http.StatusBadRequest, "action must be grant or revoke")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	_ = audit.LogEvent(r.Context(), "rbac.permission.grant", map[string]any{
		"target_user": req.UserID,
		"permission":  req.Permission,
		"action":      defaultAction(req.Action, "grant"),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     req.UserID,
		"permissions": permissionKeys(a.registry.UserPermissions(req.UserID)),
	})
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.Subject
	}
	// Inspecting another user's permissions requires admin.
	if userID != claims.Subject && !a.ensurePermissions(w, r, auth.PermAPIAdmin) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"roles":       a.registry.UserRoles(userID),
		"permissions": permissionKeys(a.registry.UserPermissions(userID)),
	})
}

func (a *API) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermSystemLogs) {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": a.guard.RecentEvents(limit),
	})
}

func roleToSummary(def auth.RoleDefinition) roleSummary {
	return roleSummary{
		Name:        def.Name,
		Description: def.Description,
		Inherits:    def.InheritsFrom,
		Permissions: permissionSetKeys(def.Permissions),
	}
}

func permissionSetKeys(set map[auth.Permission]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

func defaultAction(action, fallback string) string {
	if action == "" {
		return fallback
	}
	return action
}
