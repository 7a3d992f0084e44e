package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	svc, err := NewTokenService("0123456789abcdef0123456789abcdef", opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewTokenService("   "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestService(t, WithIssuer("nvision-test"))

	token, err := svc.CreateAccessToken("42", "alice", "alice@example.com",
		[]string{"analyst"}, []string{"customer:read", "analytics:view"}, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Username != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("identity not preserved: %s / %s", claims.Username, claims.Email)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Issuer != "nvision-test" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "analyst" {
		t.Fatalf("roles not preserved: %v", claims.Roles)
	}
	if len(claims.Permissions) != 2 {
		t.Fatalf("permissions not preserved: %v", claims.Permissions)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti")
	}

	ttl := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if ttl != 30*time.Minute {
		t.Fatalf("unexpected access ttl: %v", ttl)
	}
}

func TestCreateAccessTokenValidatesInput(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CreateAccessToken("  ", "x", "", nil, nil, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRefreshTokenCarriesOnlySubject(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.CreateRefreshToken("42", 0)
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.TokenType != TokenTypeRefresh {
		t.Fatalf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Username != "" || len(claims.Roles) != 0 || len(claims.Permissions) != 0 {
		t.Fatal("refresh token must not carry identity attributes")
	}
	ttl := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if ttl != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", ttl)
	}
}

func TestRefreshAccessTokenRequiresRefreshType(t *testing.T) {
	svc := newTestService(t)

	access, err := svc.CreateAccessToken("42", "alice", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.RefreshAccessToken(access, UserData{Username: "alice"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted for refresh: %v", err)
	}

	refresh, err := svc.CreateRefreshToken("42", 0)
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	token, err := svc.RefreshAccessToken(refresh, UserData{
		Username: "alice",
		Roles:    []string{"viewer"},
	})
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.TokenType != TokenTypeAccess || claims.Subject != "42" {
		t.Fatalf("unexpected refreshed claims: type=%s sub=%s", claims.TokenType, claims.Subject)
	}
	if claims.Username != "alice" {
		t.Fatalf("user data not applied: %s", claims.Username)
	}
}

func TestBlacklistToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.CreateAccessToken("42", "alice", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.VerifyToken(token); err != nil {
		t.Fatalf("token invalid before revocation: %v", err)
	}

	if err := svc.BlacklistToken(token); err != nil {
		t.Fatalf("BlacklistToken: %v", err)
	}
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token accepted: %v", err)
	}

	// Revoking twice is a no-op.
	if err := svc.BlacklistToken(token); err != nil {
		t.Fatalf("second BlacklistToken: %v", err)
	}

	// Other tokens of the same user stay valid.
	other, err := svc.CreateAccessToken("42", "alice", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.VerifyToken(other); err != nil {
		t.Fatalf("unrelated token rejected: %v", err)
	}
}

func TestBlacklistExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	svc := newTestService(t, WithClock(func() time.Time { return past }))

	token, err := svc.CreateAccessToken("42", "alice", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
	if err := svc.BlacklistToken(token); err != nil {
		t.Fatalf("expired token must still be revocable: %v", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(t)

	for _, token := range []string{"", "   ", "not-a-token", "a.b.c"} {
		if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q accepted: %v", token, err)
		}
	}
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.CreateAccessToken("42", "alice", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.VerifyToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token accepted: %v", err)
	}
}

func TestVerifyTokenRejectsForeignSecret(t *testing.T) {
	svc := newTestService(t)
	other, err := NewTokenService("ffffffffffffffffffffffffffffffff")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	token, err := other.CreateAccessToken("42", "alice", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token accepted: %v", err)
	}
}

func TestVerifyTokenHonorsServiceClock(t *testing.T) {
	now := time.Now()
	clock := now
	svc := newTestService(t, WithClock(func() time.Time { return clock }))

	token, err := svc.CreateAccessToken("42", "alice", "", nil, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, err := svc.VerifyToken(token); err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if svc.IsTokenExpired(token) {
		t.Fatal("fresh token reported expired")
	}

	clock = now.Add(2 * time.Hour)
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token accepted past service-clock expiry: %v", err)
	}
	if !svc.IsTokenExpired(token) {
		t.Fatal("expired token not reported expired")
	}
}

func TestTokenExpiry(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.CreateAccessToken("42", "alice", "", nil, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	expiry, err := svc.TokenExpiry(token)
	if err != nil {
		t.Fatalf("TokenExpiry: %v", err)
	}
	until := time.Until(expiry)
	if until < 59*time.Minute || until > time.Hour {
		t.Fatalf("unexpected expiry distance: %v", until)
	}
}
