// Package config loads gateway configuration from the environment.
// Read once at startup and treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults.
const (
	DefaultBaseURL  = "https://api.communityhub.dev/v1"
	DefaultCacheTTL = 60 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// Config holds everything the gateway needs at startup.
type Config struct {
	// Upstream API
	BaseURL string
	Token   string

	// Transport
	CacheTTL time.Duration
	Timeout  time.Duration

	// Audit log; empty means in-memory (nothing persists).
	AuditDBPath string
}

// Load reads configuration from the environment. COMMBRIDGE_API_TOKEN
// is required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:     DefaultBaseURL,
		CacheTTL:    DefaultCacheTTL,
		Timeout:     DefaultTimeout,
		AuditDBPath: os.Getenv("COMMBRIDGE_AUDIT_DB"),
	}

	cfg.Token = os.Getenv("COMMBRIDGE_API_TOKEN")
	if cfg.Token == "" {
		return nil, fmt.Errorf("COMMBRIDGE_API_TOKEN is required")
	}

	if v := os.Getenv("COMMBRIDGE_API_URL"); v != "" {
		cfg.BaseURL = v
	}

	var err error
	if cfg.CacheTTL, err = durationEnv("COMMBRIDGE_CACHE_TTL_SECONDS", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = durationEnv("COMMBRIDGE_HTTP_TIMEOUT_SECONDS", cfg.Timeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationEnv reads an integer-seconds env var, keeping fallback when
// the variable is unset.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}
