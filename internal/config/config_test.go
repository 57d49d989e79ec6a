package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsYAML(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 15m
quiz:
  duration: 21m
  require_identity: true
  global_limit: 5
gemini:
  model: test-model
  retries: 2
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis config: %+v", cfg)
	}
	if !cfg.Quiz.RequireIdentity || cfg.Quiz.GlobalLimit != 5 {
		t.Fatalf("unexpected quiz config: %+v", cfg.Quiz)
	}
	if cfg.Gemini.Model != "test-model" || cfg.Gemini.Retries != 2 {
		t.Fatalf("unexpected gemini config: %+v", cfg.Gemini)
	}
	if got := TTLDuration(cfg.Quiz.Duration, time.Minute); got != 21*time.Minute {
		t.Fatalf("expected 21m, got %v", got)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gemini.APIKey != "from-env" || cfg.Postgres.URL != "postgres://env" || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("expected environment overrides, got %+v", cfg)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTTLDurationFallsBack(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Second); got != time.Second {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
	if got := TTLDuration("90s", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
