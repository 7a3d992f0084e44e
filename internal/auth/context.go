package auth

import "context"

type claimsContextKey struct{}
type tokenContextKey struct{}
type sessionContextKey struct{}

// ContextWithClaims attaches verified token claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts verified token claims from the context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// UserIDFromContext returns the authenticated subject, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithSessionToken stores the opaque session token inside the context.
func ContextWithSessionToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, token)
}

// SessionTokenFromContext returns the session token if present.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(sessionContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
