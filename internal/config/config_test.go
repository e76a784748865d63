package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_RequiresToken(t *testing.T) {
	t.Setenv("COMMBRIDGE_API_TOKEN", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "COMMBRIDGE_API_TOKEN") {
		t.Fatalf("err = %v, want missing-token error", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COMMBRIDGE_API_TOKEN", "tok-123")
	t.Setenv("COMMBRIDGE_API_URL", "")
	t.Setenv("COMMBRIDGE_CACHE_TTL_SECONDS", "")
	t.Setenv("COMMBRIDGE_HTTP_TIMEOUT_SECONDS", "")
	t.Setenv("COMMBRIDGE_AUDIT_DB", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "tok-123" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.BaseURL)
	}
	if cfg.CacheTTL != DefaultCacheTTL || cfg.Timeout != DefaultTimeout {
		t.Errorf("durations = %v/%v, want defaults", cfg.CacheTTL, cfg.Timeout)
	}
	if cfg.AuditDBPath != "" {
		t.Errorf("AuditDBPath = %q, want empty (in-memory)", cfg.AuditDBPath)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("COMMBRIDGE_API_TOKEN", "tok-123")
	t.Setenv("COMMBRIDGE_API_URL", "https://staging.example.com/v1")
	t.Setenv("COMMBRIDGE_CACHE_TTL_SECONDS", "5")
	t.Setenv("COMMBRIDGE_HTTP_TIMEOUT_SECONDS", "10")
	t.Setenv("COMMBRIDGE_AUDIT_DB", "/tmp/audit.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://staging.example.com/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.CacheTTL != 5*time.Second || cfg.Timeout != 10*time.Second {
		t.Errorf("durations = %v/%v", cfg.CacheTTL, cfg.Timeout)
	}
	if cfg.AuditDBPath != "/tmp/audit.db" {
		t.Errorf("AuditDBPath = %q", cfg.AuditDBPath)
	}
}

func TestLoad_RejectsBadDurations(t *testing.T) {
	for _, bad := range []string{"abc", "-1", "0"} {
		t.Setenv("COMMBRIDGE_API_TOKEN", "tok-123")
		t.Setenv("COMMBRIDGE_CACHE_TTL_SECONDS", bad)
		t.Setenv("COMMBRIDGE_HTTP_TIMEOUT_SECONDS", "")

		if _, err := Load(); err == nil {
			t.Errorf("Load accepted TTL %q", bad)
		}
	}
}
