package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() without DATABASE_DSN must fail")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost dbname=zahlungsabgleich")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.GatewayTimeout != 5*time.Second {
		t.Errorf("GatewayTimeout = %v, want 5s", cfg.GatewayTimeout)
	}
	// Matching overrides stay zero so the engine falls back to its defaults.
	if cfg.MatchAutoAssignThreshold != 0 || cfg.MatchSuggestionFloor != 0 ||
		cfg.MatchAmountToleranceCents != 0 || cfg.MatchBatchWorkers != 0 {
		t.Errorf("matching overrides = %+v, want all zero without env", cfg)
	}
}

func TestLoadMatchingOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost dbname=zahlungsabgleich")
	t.Setenv("MATCH_AUTO_ASSIGN_THRESHOLD", "85")
	t.Setenv("MATCH_SUGGESTION_FLOOR", "40.5")
	t.Setenv("MATCH_AMOUNT_TOLERANCE_CENTS", "250")
	t.Setenv("MATCH_BATCH_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MatchAutoAssignThreshold != 85 {
		t.Errorf("MatchAutoAssignThreshold = %v, want 85", cfg.MatchAutoAssignThreshold)
	}
	if cfg.MatchSuggestionFloor != 40.5 {
		t.Errorf("MatchSuggestionFloor = %v, want 40.5", cfg.MatchSuggestionFloor)
	}
	if cfg.MatchAmountToleranceCents != 250 {
		t.Errorf("MatchAmountToleranceCents = %v, want 250", cfg.MatchAmountToleranceCents)
	}
	if cfg.MatchBatchWorkers != 8 {
		t.Errorf("MatchBatchWorkers = %v, want 8", cfg.MatchBatchWorkers)
	}
}

func TestLoadMalformedOverrideFallsBack(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost dbname=zahlungsabgleich")
	t.Setenv("MATCH_BATCH_WORKERS", "many")
	t.Setenv("GATEWAY_TIMEOUT", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MatchBatchWorkers != 0 {
		t.Errorf("MatchBatchWorkers = %v, want 0 for a malformed value", cfg.MatchBatchWorkers)
	}
	// Bare integers on durations are read as seconds.
	if cfg.GatewayTimeout != 10*time.Second {
		t.Errorf("GatewayTimeout = %v, want 10s", cfg.GatewayTimeout)
	}
}
