package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nvision.io/internal/auth"
	"nvision.io/internal/guard"
	"nvision.io/internal/store"
)

type testEnv struct {
	api     *API
	handler http.Handler
	dir     *store.MemoryDirectory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	g, err := guard.NewGuard("0123456789abcdef0123456789abcdef", guard.WithCleanupInterval(0))
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	t.Cleanup(g.Close)

	tokens, err := auth.NewTokenService("0123456789abcdef0123456789abcdef",
		auth.WithIssuer("nvision-test"))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	dir := store.NewMemoryDirectory()
	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	dir.AddUser(store.User{
		ID:           "42",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Status:       store.StatusActive,
	}, []string{auth.RoleAdmin}, nil)
	dir.AddUser(store.User{
		ID:           "7",
		Username:     "bob",
		Email:        "bob@example.com",
		PasswordHash: hash,
		Status:       store.StatusActive,
	}, []string{auth.RoleViewer}, nil)
	dir.AddUser(store.User{
		ID:           "9",
		Username:     "mallory",
		Email:        "mallory@example.com",
		PasswordHash: hash,
		Status:       store.StatusDisabled,
	}, []string{auth.RoleViewer}, nil)

	api := New(Deps{
		Guard:     g,
		Tokens:    tokens,
		Registry:  auth.NewRegistry(),
		Directory: dir,
		Version:   "test",
	})
	return &testEnv{api: api, handler: api.Handler(), dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, login, password string) loginResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", loginRequest{
		Login:    login,
		Password: password,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nvision-api") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("tokens missing from login response")
	}
	if resp.SessionToken == "" || resp.CSRFToken == "" {
		t.Fatal("session or CSRF token missing from login response")
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("unexpected token type: %s", resp.TokenType)
	}
	if resp.ExpiresIn <= 0 {
		t.Fatalf("unexpected expires_in: %d", resp.ExpiresIn)
	}
	if resp.User.ID != "42" || resp.User.Username != "alice" {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
	if len(resp.User.Roles) != 1 || resp.User.Roles[0] != auth.RoleAdmin {
		t.Fatalf("unexpected roles: %v", resp.User.Roles)
	}
}

func TestLoginByEmail(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "Alice@Example.com", "correct-password")
	if resp.User.ID != "42" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/login", loginRequest{
		Login: "alice", Password: "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/login", loginRequest{
		Login: "no-such-user", Password: "whatever",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: status %d", rec.Code)
	}

	// Disabled accounts fail like bad credentials.
	rec = env.do(t, http.MethodPost, "/v1/auth/login", loginRequest{
		Login: "mallory", Password: "correct-password",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("disabled user: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/login", loginRequest{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body fields: status %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/v1/auth/login", loginRequest{
			Login: "alice", Password: "wrong",
		}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/v1/auth/login", loginRequest{
		Login: "alice", Password: "wrong",
	}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt: status %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rbac/roles", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/rbac/roles", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}
}

func TestRefreshTokenNotAcceptedAsBearer(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	rec := env.do(t, http.MethodGet, "/v1/rbac/roles", nil, map[string]string{
		"Authorization": "Bearer " + resp.RefreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token accepted as bearer: status %d", rec.Code)
	}
}

func TestPermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "bob", "correct-password")

	// Viewers cannot read system logs.
	rec := env.do(t, http.MethodGet, "/v1/security/events", nil, map[string]string{
		"Authorization": "Bearer " + resp.AccessToken,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSecurityEventsForAdmin(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	rec := env.do(t, http.MethodGet, "/v1/security/events?limit=10", nil, map[string]string{
		"Authorization": "Bearer " + resp.AccessToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Events []guard.SecurityEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	// At least the session_created event from login.
	if len(body.Events) == 0 {
		t.Fatal("expected recorded events")
	}
}

func TestRefreshFlow(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", refreshRequest{
		RefreshToken: resp.RefreshToken,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var refreshed refreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("missing access token")
	}

	// The refreshed token works as a bearer.
	rec = env.do(t, http.MethodGet, "/v1/rbac/roles", nil, map[string]string{
		"Authorization": "Bearer " + refreshed.AccessToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refreshed bearer rejected: status %d", rec.Code)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", refreshRequest{
		RefreshToken: resp.AccessToken,
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestLogoutRevokesTokenAndSession(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", nil, map[string]string{
		"Authorization":   "Bearer " + resp.AccessToken,
		"X-Session-Token": resp.SessionToken,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status %d: %s", rec.Code, rec.Body.String())
	}

	// The blacklisted access token no longer authenticates.
	rec = env.do(t, http.MethodGet, "/v1/rbac/roles", nil, map[string]string{
		"Authorization": "Bearer " + resp.AccessToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked bearer accepted: status %d", rec.Code)
	}

	// The session is gone too.
	rec = env.do(t, http.MethodGet, "/v1/auth/session", nil, map[string]string{
		"X-Session-Token": resp.SessionToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalidated session accepted: status %d", rec.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.login(t, "alice", "correct-password")

	rec := env.do(t, http.MethodGet, "/v1/auth/session", nil, map[string]string{
		"X-Session-Token": resp.SessionToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		UserID string `json:"user_id"`
		Active bool   `json:"active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if body.UserID != "42" || !body.Active {
		t.Fatalf("unexpected session payload: %+v", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/v1/auth/login", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected Allow header: %q", rec.Header().Get("Allow"))
	}
}

func TestUnknownPath(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/no-such-thing", nil, map[string]string{})
	// Unknown paths behind auth still require a token first.
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}
