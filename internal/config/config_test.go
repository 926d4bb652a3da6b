package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("API_ADDR", "")
	t.Setenv("QUEUE_BATCH_SIZE", "")

	cfg := Load()

	if cfg.Redis.URL != "" {
		t.Errorf("expected empty redis url, got %q", cfg.Redis.URL)
	}
	if cfg.APIAddr != ":8080" {
		t.Errorf("expected api addr :8080, got %q", cfg.APIAddr)
	}
	if cfg.Redis.ReadTimeout != time.Second {
		t.Errorf("expected read timeout 1s, got %s", cfg.Redis.ReadTimeout)
	}
	if cfg.Queue.BatchSize != 0 {
		t.Errorf("expected unset batch size, got %d", cfg.Queue.BatchSize)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("QUEUE_BATCH_SIZE", "25")
	t.Setenv("QUEUE_BASE_BACKOFF", "250ms")
	t.Setenv("WORKER_POLL_INTERVAL", "1s")

	cfg := Load()

	if cfg.Redis.URL != "redis://localhost:6379/2" {
		t.Errorf("unexpected redis url %q", cfg.Redis.URL)
	}
	if cfg.Queue.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.BaseBackoff != 250*time.Millisecond {
		t.Errorf("expected base backoff 250ms, got %s", cfg.Queue.BaseBackoff)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("expected poll interval 1s, got %s", cfg.PollInterval)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "lots")
	t.Setenv("REDIS_POOL_SIZE", "-4")
	t.Setenv("REDIS_DIAL_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Queue.MaxAttempts != 0 {
		t.Errorf("expected fallback max attempts 0, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Redis.PoolSize != 50 {
		t.Errorf("expected fallback pool size 50, got %d", cfg.Redis.PoolSize)
	}
	if cfg.Redis.DialTimeout != 2*time.Second {
		t.Errorf("expected fallback dial timeout 2s, got %s", cfg.Redis.DialTimeout)
	}
}
