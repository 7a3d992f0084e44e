package httpapi

import (
	"net/http"
	"strings"
	"time"

	"nvision.io/internal/audit"
	"nvision.io/internal/auth"
	"nvision.io/internal/store"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userPayload struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type loginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	SessionToken string      `json:"session_token"`
	CSRFToken    string      `json:"csrf_token"`
	User         userPayload `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "login and password are required")
		return
	}

	ip := clientIP(r)
	userAgent := r.UserAgent()

	user, err := a.dir.FindUserByLogin(r.Context(), login)
	if err != nil {
		a.guard.RecordFailedLogin(ip, login)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.Status != store.StatusActive {
		a.guard.RecordFailedLogin(ip, user.Username)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		a.guard.RecordFailedLogin(ip, user.Username)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	a.guard.ClearFailedAttempts(ip, user.Username)

	if err := a.syncAuthorization(r, user.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "authorization lookup failed")
		return
	}
	roles := a.registry.UserRoles(user.ID)
	perms := permissionKeys(a.registry.UserPermissions(user.ID))

	accessToken, err := a.tokens.CreateAccessToken(user.ID, user.Username, user.Email, roles, perms, 0)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	refreshToken, err := a.tokens.CreateRefreshToken(user.ID, 0)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	sessionToken, err := a.guard.CreateSecureSession(user.ID, ip, userAgent)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session creation failed")
		return
	}
	csrfToken := a.guard.GenerateCSRFToken(sessionToken)

	expiry, err := a.tokens.TokenExpiry(accessToken)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"user_id":   user.ID,
		"client_ip": ip,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(expiry).Seconds()),
		SessionToken: sessionToken,
		CSRFToken:    csrfToken,
		User: userPayload{
			ID:          user.ID,
			Username:    user.Username,
			Email:       user.Email,
			Roles:       roles,
			Permissions: perms,
		},
	})
}

// syncAuthorization mirrors the directory's bindings for the user into the
// in-memory registry so permission checks see current data.
func (a *API) syncAuthorization(r *http.Request, userID string) error {
	roles, err := a.dir.RoleBindings(r.Context(), userID)
	if err != nil {
		return err
	}
	grants, err := a.dir.DirectGrants(r.Context(), userID)
	if err != nil {
		return err
	}
	a.registry.ClearUser(userID)
	for _, role := range roles {
		if err := a.registry.AssignRole(userID, role); err != nil {
			return err
		}
	}
	for _, grant := range grants {
		if err := a.registry.GrantPermission(userID, auth.Permission(grant)); err != nil {
			return err
		}
	}
	return nil
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := a.tokens.VerifyToken(req.RefreshToken)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, err := a.dir.FindUserByID(r.Context(), claims.Subject)
	if err != nil || user.Status != store.StatusActive {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if err := a.syncAuthorization(r, user.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "authorization lookup failed")
		return
	}

	accessToken, err := a.tokens.RefreshAccessToken(req.RefreshToken, auth.UserData{
		Username:    user.Username,
		Email:       user.Email,
		Roles:       a.registry.UserRoles(user.ID),
		Permissions: permissionKeys(a.registry.UserPermissions(user.ID)),
	})
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	expiry, err := a.tokens.TokenExpiry(accessToken)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(expiry).Seconds()),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	if token, ok := auth.TokenFromContext(r.Context()); ok {
		_ = a.tokens.BlacklistToken(token)
	}
	if sess := strings.TrimSpace(r.Header.Get(sessionHeader)); sess != "" {
		a.guard.InvalidateSession(sess)
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	sess := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sess == "" {
		writeError(w, r, http.StatusUnauthorized, "session token required")
		return
	}
	userID, ok := a.guard.ValidateSession(sess, clientIP(r), r.UserAgent())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"active":  true,
	})
}

func (a *API) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	sess := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sess == "" {
		writeError(w, r, http.StatusUnauthorized, "session token required")
		return
	}
	if _, ok := a.guard.ValidateSession(sess, clientIP(r), r.UserAgent()); !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.guard.GenerateCSRFToken(sess),
	})
}

func permissionKeys(perms []auth.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
