package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nvision.io/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionHeader = "X-Session-Token"
	csrfHeader    = "X-CSRF-Token"
)

// Session and csrf endpoints authenticate with the opaque session token
// instead of a bearer token.
var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/session",
	"/v1/auth/csrf",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.tokens.VerifyToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.TokenType != auth.TokenTypeAccess {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		if sess := strings.TrimSpace(r.Header.Get(sessionHeader)); sess != "" {
			ctx = auth.ContextWithSessionToken(ctx, sess)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions gates a handler on the caller holding every listed
// permission in the registry.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, perms ...auth.Permission) bool {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !a.registry.HasAllPermissions(claims.Subject, perms...) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
