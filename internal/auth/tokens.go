package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"nvision.io/internal/obs"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed claim set for access and refresh tokens.
type Claims struct {
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// UserData carries the identity attributes embedded into a refreshed access
// token. Refresh tokens hold only the subject, so the caller supplies the
// rest from its user store.
type UserData struct {
	Username    string
	Email       string
	Roles       []string
	Permissions []string
}

// TokenService issues and verifies signed tokens and maintains an in-memory
// revocation set keyed by jti.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]struct{}
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithIssuer sets the iss claim stamped into issued tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL overrides the default refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService constructs a TokenService signing with the given secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		revoked:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateAccessToken signs an access token for the given identity. A zero ttl
// uses the configured default.
func (s *TokenService) CreateAccessToken(userID, username, email string, roles []string, permissions []string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.accessTTL
	}

	now := s.now().UTC()
	claims := Claims{
		Username:    username,
		Email:       email,
		Roles:       append([]string(nil), roles...),
		Permissions: append([]string(nil), permissions...),
		TokenType:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	obs.TokensIssued.WithLabelValues(TokenTypeAccess).Inc()
	return signed, nil
}

// CreateRefreshToken signs a refresh token carrying only the subject. A zero
// ttl uses the configured default.
func (s *TokenService) CreateRefreshToken(userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.refreshTTL
	}

	now := s.now().UTC()
	claims := Claims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	obs.TokensIssued.WithLabelValues(TokenTypeRefresh).Inc()
	return signed, nil
}

// VerifyToken checks signature, expiry and the revocation set. Any failure
// yields ErrInvalidToken; no detail leaks to the caller.
func (s *TokenService) VerifyToken(token string) (*Claims, error) {
	claims, err := s.parse(token, true)
	if err != nil {
		obs.TokensRejected.Inc()
		return nil, ErrInvalidToken
	}
	if s.isRevoked(claims.ID) {
		obs.TokensRejected.Inc()
		return nil, ErrInvalidToken
	}
	// The parser enforces exp against wall-clock time; re-check against the
	// service clock.
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		obs.TokensRejected.Inc()
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshAccessToken issues a fresh access token from a valid refresh token.
// Tokens of any other type are rejected.
func (s *TokenService) RefreshAccessToken(refreshToken string, user UserData) (string, error) {
	claims, err := s.VerifyToken(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", ErrInvalidToken
	}
	return s.CreateAccessToken(claims.Subject, user.Username, user.Email, user.Roles, user.Permissions, 0)
}

// BlacklistToken adds the token's jti to the revocation set. The token is
// decoded without expiry validation so already-expired tokens can still be
// revoked; the signature must verify. Idempotent.
func (s *TokenService) BlacklistToken(token string) error {
	claims, err := s.parse(token, false)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.ID == "" {
		return ErrInvalidToken
	}
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// IsTokenExpired reports whether the token is expired or otherwise unusable.
func (s *TokenService) IsTokenExpired(token string) bool {
	_, err := s.VerifyToken(token)
	return err != nil
}

// TokenExpiry returns the expiry of a valid token.
func (s *TokenService) TokenExpiry(token string) (time.Time, error) {
	claims, err := s.VerifyToken(token)
	if err != nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

func (s *TokenService) parse(token string, validateClaims bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	keyfunc := func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}

	var opts []jwt.ParserOption
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, keyfunc, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}
