// Package config reads service settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable of the security subsystem.
type Config struct {
	ListenAddr string
	PGDSN      string

	AuthSecret string
	CSRFSecret string
	Issuer     string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SessionTimeout      time.Duration
	MaxFailedAttempts   int
	SuspiciousThreshold int
	BlockDuration       time.Duration
	CSRFMaxAge          time.Duration
}

// Load reads configuration from NVISION_* environment variables, applying
// defaults for everything except the auth secret.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:          envString("NVISION_LISTEN", ":8080"),
		PGDSN:               os.Getenv("NVISION_PG_DSN"),
		AuthSecret:          strings.TrimSpace(os.Getenv("NVISION_AUTH_SECRET")),
		CSRFSecret:          strings.TrimSpace(os.Getenv("NVISION_CSRF_SECRET")),
		Issuer:              envString("NVISION_ISSUER", "nvision"),
		AccessTTL:           envMinutes("NVISION_ACCESS_TTL_MINUTES", 30),
		RefreshTTL:          envDays("NVISION_REFRESH_TTL_DAYS", 7),
		SessionTimeout:      envHours("NVISION_SESSION_TIMEOUT_HOURS", 24),
		MaxFailedAttempts:   envInt("NVISION_MAX_FAILED_ATTEMPTS", 5),
		SuspiciousThreshold: envInt("NVISION_SUSPICIOUS_THRESHOLD", 10),
		BlockDuration:       envMinutes("NVISION_BLOCK_DURATION_MINUTES", 60),
		CSRFMaxAge:          envMinutes("NVISION_CSRF_MAX_AGE_MINUTES", 60),
	}
	if cfg.AuthSecret == "" {
		return Config{}, errors.New("config: NVISION_AUTH_SECRET is required")
	}
	if len(cfg.AuthSecret) < 32 {
		return Config{}, errors.New("config: NVISION_AUTH_SECRET must be at least 32 characters")
	}
	if cfg.CSRFSecret == "" {
		cfg.CSRFSecret = cfg.AuthSecret
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envMinutes(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Minute
}

func envHours(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Hour
}

func envDays(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * 24 * time.Hour
}
