package httpapi

import (
	"net/http"
	"strings"

	"nvision.io/internal/auth"
)

// endpointClass maps a request path onto the guard's rule table.
func endpointClass(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/auth/login"):
		return "login"
	case strings.HasPrefix(path, "/v1/auth/password-reset"):
		return "password_reset"
	case strings.HasPrefix(path, "/v1/search"):
		return "search"
	default:
		return "api"
	}
}

// withGuardRateLimit applies the sliding-window rules, keyed by user when the
// request is authenticated.
func (a *API) withGuardRateLimit(next http.Handler) http.Handler {
	if a == nil || a.guard == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metrics", "/healthz", "/readyz":
			next.ServeHTTP(w, r)
			return
		}

		userID, _ := auth.UserIDFromContext(r.Context())
		allowed, msg := a.guard.CheckRateLimit(clientIP(r), endpointClass(r.URL.Path), userID)
		if !allowed {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var csrfExemptPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
}

// withCSRF requires a valid CSRF token on mutating requests that carry a
// session. Safe methods and the login/refresh/logout flows are exempt.
func (a *API) withCSRF(next http.Handler) http.Handler {
	if a == nil || a.guard == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		for _, p := range csrfExemptPaths {
			if r.URL.Path == p {
				next.ServeHTTP(w, r)
				return
			}
		}

		sessionToken, ok := auth.SessionTokenFromContext(r.Context())
		if !ok {
			// Pure token callers (service-to-service) carry no session and
			// are not CSRF targets.
			next.ServeHTTP(w, r)
			return
		}
		csrfToken := strings.TrimSpace(r.Header.Get(csrfHeader))
		if csrfToken == "" {
			writeError(w, r, http.StatusForbidden, "CSRF token required")
			return
		}
		if !a.guard.ValidateCSRFToken(csrfToken, sessionToken, 0) {
			writeError(w, r, http.StatusForbidden, "invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
