package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"nvision.io/internal/auth"
	"nvision.io/internal/guard"
	"nvision.io/internal/obs"
	"nvision.io/internal/store"
)

// ReadyProbe is a simple readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps collects the services the HTTP layer fronts.
type Deps struct {
	Guard     *guard.Guard
	Tokens    *auth.TokenService
	Registry  *auth.Registry
	Directory store.Directory
	Ready     ReadyProbe
	Version   string
}

// API is the HTTP layer over the security subsystem.
type API struct {
	mux        *http.ServeMux
	guard      *guard.Guard
	tokens     *auth.TokenService
	registry   *auth.Registry
	dir        store.Directory
	readyProbe ReadyProbe
	version    string
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		guard:      deps.Guard,
		tokens:     deps.Tokens,
		registry:   deps.Registry,
		dir:        deps.Directory,
		readyProbe: deps.Ready,
		version:    deps.Version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// auth flows
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)
	a.mux.HandleFunc("/v1/auth/csrf", a.handleCSRF)

	// rbac administration
	a.mux.HandleFunc("/v1/rbac/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/rbac/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/rbac/assignments", a.handleAssignments)
	a.mux.HandleFunc("/v1/rbac/grants", a.handleGrants)
	a.mux.HandleFunc("/v1/rbac/permissions", a.handleUserPermissions)

	// security events
	a.mux.HandleFunc("/v1/security/events", a.handleSecurityEvents)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withCSRF(h)
	h = a.withGuardRateLimit(h)
	h = a.withAuth(h)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nvision-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "nvision-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
