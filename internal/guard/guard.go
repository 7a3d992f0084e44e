// Package guard implements the request-facing security layer: sliding-window
// rate limiting, brute-force lockout, session lifecycle with hijack
// detection, CSRF token issuance and a bounded security-event audit buffer.
// All state is in-memory; each logical table is protected by its own mutex.
package guard

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultSessionTimeout      = 24 * time.Hour
	defaultFailureWindow       = 24 * time.Hour
	defaultBlockDuration       = time.Hour
	defaultMaxFailedAttempts   = 5
	defaultSuspiciousThreshold = 10
	defaultCSRFMaxAge          = time.Hour
	defaultCleanupInterval     = time.Hour
)

// RateLimitRule bounds one logical endpoint class.
type RateLimitRule struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultRules returns the built-in rule table.
func DefaultRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"login":          {MaxRequests: 5, Window: 300 * time.Second, BlockDuration: 15 * time.Minute},
		"api":            {MaxRequests: 100, Window: 60 * time.Second, BlockDuration: time.Minute},
		"search":         {MaxRequests: 20, Window: 60 * time.Second, BlockDuration: time.Minute},
		"password_reset": {MaxRequests: 3, Window: 3600 * time.Second, BlockDuration: time.Hour},
	}
}

// session is the stored record behind an opaque session token.
type session struct {
	UserID       string
	ClientIP     string
	UserAgent    string
	CreatedAt    time.Time
	LastActivity time.Time
	IsActive     bool
}

// Guard owns all security tables. Construct with NewGuard; call Close to stop
// the periodic cleanup sweep.
type Guard struct {
	secret              []byte
	now                 func() time.Time
	sessionTimeout      time.Duration
	failureWindow       time.Duration
	blockDuration       time.Duration
	maxFailedAttempts   int
	suspiciousThreshold int
	csrfMaxAge          time.Duration
	cleanupInterval     time.Duration

	// Rule table is fixed after construction.
	rules map[string]RateLimitRule

	rateMu    sync.Mutex
	history   map[string][]time.Time
	blocklist map[string]time.Time

	failMu       sync.Mutex
	failedByIP   map[string][]time.Time
	failedByUser map[string][]time.Time
	suspicious   map[string]time.Time

	sessMu   sync.Mutex
	sessions map[string]*session

	events *eventLog

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures Guard behavior.
type Option func(*Guard) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(g *Guard) error {
		if fn != nil {
			g.now = fn
		}
		return nil
	}
}

// WithRule adds or replaces the rule for one endpoint class.
func WithRule(endpoint string, rule RateLimitRule) Option {
	return func(g *Guard) error {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			return errors.New("guard: rule endpoint is required")
		}
		if rule.MaxRequests <= 0 || rule.Window <= 0 || rule.BlockDuration <= 0 {
			return fmt.Errorf("guard: malformed rule for %q", endpoint)
		}
		g.rules[endpoint] = rule
		return nil
	}
}

// WithSessionTimeout overrides the session inactivity timeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(g *Guard) error {
		if d > 0 {
			g.sessionTimeout = d
		}
		return nil
	}
}

// WithBruteForceThresholds overrides the lockout and suspicious-activity
// attempt counts.
func WithBruteForceThresholds(maxFailed, suspicious int) Option {
	return func(g *Guard) error {
		if maxFailed > 0 {
			g.maxFailedAttempts = maxFailed
		}
		if suspicious > 0 {
			g.suspiciousThreshold = suspicious
		}
		return nil
	}
}

// WithBlockDuration overrides how long a brute-forcing IP stays blocked.
func WithBlockDuration(d time.Duration) Option {
	return func(g *Guard) error {
		if d > 0 {
			g.blockDuration = d
		}
		return nil
	}
}

// WithCSRFMaxAge overrides the default CSRF token lifetime.
func WithCSRFMaxAge(d time.Duration) Option {
	return func(g *Guard) error {
		if d > 0 {
			g.csrfMaxAge = d
		}
		return nil
	}
}

// WithCleanupInterval overrides the sweep period. Zero disables the
// background sweep; Cleanup can still be called directly.
func WithCleanupInterval(d time.Duration) Option {
	return func(g *Guard) error {
		if d >= 0 {
			g.cleanupInterval = d
		}
		return nil
	}
}

// WithEventCapacity overrides the audit buffer size.
func WithEventCapacity(n int) Option {
	return func(g *Guard) error {
		if n > 0 {
			g.events = newEventLog(n)
		}
		return nil
	}
}

// NewGuard constructs a Guard keyed with the given CSRF signing secret and
// starts the periodic cleanup sweep.
func NewGuard(secret string, opts ...Option) (*Guard, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("guard: signing secret is required")
	}
	g := &Guard{
		secret:              []byte(secret),
		now:                 time.Now,
		sessionTimeout:      defaultSessionTimeout,
		failureWindow:       defaultFailureWindow,
		blockDuration:       defaultBlockDuration,
		maxFailedAttempts:   defaultMaxFailedAttempts,
		suspiciousThreshold: defaultSuspiciousThreshold,
		csrfMaxAge:          defaultCSRFMaxAge,
		cleanupInterval:     defaultCleanupInterval,
		rules:               DefaultRules(),
		history:             make(map[string][]time.Time),
		blocklist:           make(map[string]time.Time),
		failedByIP:          make(map[string][]time.Time),
		failedByUser:        make(map[string][]time.Time),
		suspicious:          make(map[string]time.Time),
		sessions:            make(map[string]*session),
		events:              newEventLog(defaultEventCapacity),
		stop:                make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.cleanupInterval > 0 {
		go g.run()
	}
	return g, nil
}

// Close stops the background cleanup sweep.
func (g *Guard) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *Guard) run() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.Cleanup()
		case <-g.stop:
			return
		}
	}
}

// randomToken returns an opaque URL-safe token from 32 random bytes.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
