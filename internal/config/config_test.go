package config

import (
	"testing"
	"time"
)

func TestDatabaseURLPrecedence(t *testing.T) {
	t.Setenv("MEMORI_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	if got := DatabaseURL(); got != defaultDSN {
		t.Fatalf("expected fallback %q, got %q", defaultDSN, got)
	}

	t.Setenv("DATABASE_URL", "postgres-ish-dsn")
	if got := DatabaseURL(); got != "postgres-ish-dsn" {
		t.Fatalf("expected DATABASE_URL to win over fallback, got %q", got)
	}

	t.Setenv("MEMORI_DATABASE_URL", "memori-specific-dsn")
	if got := DatabaseURL(); got != "memori-specific-dsn" {
		t.Fatalf("expected MEMORI_DATABASE_URL to take precedence, got %q", got)
	}
}

func TestHookTimeoutDefaultsAndOverrides(t *testing.T) {
	t.Setenv("MEMORI_HOOK_TIMEOUT_SECONDS", "")
	if got := HookTimeout(); got != 30*time.Second {
		t.Fatalf("expected default 30s, got %v", got)
	}

	t.Setenv("MEMORI_HOOK_TIMEOUT_SECONDS", "5")
	if got := HookTimeout(); got != 5*time.Second {
		t.Fatalf("expected 5s override, got %v", got)
	}

	t.Setenv("MEMORI_HOOK_TIMEOUT_SECONDS", "not-a-number")
	if got := HookTimeout(); got != 30*time.Second {
		t.Fatalf("expected fallback on invalid value, got %v", got)
	}
}

func TestMetadataConfigDefaults(t *testing.T) {
	cfg := MetadataConfig()
	if cfg.Performance.CacheSize != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.Performance.CacheSize)
	}
	if !cfg.Aggregation.Enable {
		t.Errorf("expected aggregation enabled by default")
	}
}
