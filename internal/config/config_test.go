package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Keep a developer's real ~/.taskpilot/config.yaml out of the test.
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.MaxAttempts != 8 {
		t.Errorf("expected default max_attempts 8, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.BackoffBase != 10*time.Second {
		t.Errorf("expected default backoff_base 10s, got %v", cfg.Sync.BackoffBase)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server_url: https://tasks.example.com
auth_token: tok-123
dev_mode: true
sync:
  backoff_base: 2s
  backoff_max: 1m
  max_attempts: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "https://tasks.example.com" {
		t.Errorf("unexpected server_url %q", cfg.ServerURL)
	}
	if !cfg.DevMode {
		t.Error("dev_mode should be true")
	}
	if cfg.Sync.MaxAttempts != 3 || cfg.Sync.BackoffBase != 2*time.Second {
		t.Errorf("sync overrides not applied: %+v", cfg.Sync)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Sync.BackoffMax = time.Second
	cfg.Sync.BackoffBase = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when backoff_max < backoff_base")
	}

	cfg = Default()
	cfg.Sync.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero max_attempts")
	}
}

func TestDumpMasksToken(t *testing.T) {
	cfg := Default()
	cfg.AuthToken = "very-secret"

	out, err := cfg.Dump()
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if strings.Contains(out, "very-secret") {
		t.Error("dump leaked the auth token")
	}
	if !strings.Contains(out, "server_url") {
		t.Error("dump missing server_url")
	}
}
