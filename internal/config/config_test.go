package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode by default")
	}
	if cfg.RecoveryWindow != 2*time.Minute {
		t.Errorf("RecoveryWindow = %v, want 2m", cfg.RecoveryWindow)
	}
	if cfg.RecoveryBuffer != 256 {
		t.Errorf("RecoveryBuffer = %d, want 256", cfg.RecoveryBuffer)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("RECOVERY_WINDOW", "45s")
	t.Setenv("RECOVERY_BUFFER", "32")
	t.Setenv("RATE_LIMIT", "not-a-number")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.IsDevelopment() {
		t.Error("production must not report development")
	}
	if cfg.RecoveryWindow != 45*time.Second {
		t.Errorf("RecoveryWindow = %v, want 45s", cfg.RecoveryWindow)
	}
	if cfg.RecoveryBuffer != 32 {
		t.Errorf("RecoveryBuffer = %d, want 32", cfg.RecoveryBuffer)
	}
	if cfg.RateLimit != 30 {
		t.Errorf("unparseable RATE_LIMIT should fall back to 30, got %d", cfg.RateLimit)
	}
}
