package config

import (
	"testing"
	"time"

	"partsmatch/internal/matcher"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARTS_API_RATE_LIMIT_RPS", "")
	t.Setenv("CACHE_EXPIRY_HOURS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PartsRateLimitRPS != 10 {
		t.Fatalf("rps=%d", cfg.PartsRateLimitRPS)
	}
	if cfg.CacheExpiry != 24*time.Hour {
		t.Fatalf("expiry=%s", cfg.CacheExpiry)
	}
	if err := cfg.MatchWeights().Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_EXPIRY_HOURS", "1.5")
	t.Setenv("PARTS_API_MAX_RETRIES", "not-a-number")
	t.Setenv("MATCH_USE_API", "yes")
	t.Setenv("MATCH_WEIGHT_MPN", "0.5")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheExpiry != 90*time.Minute {
		t.Fatalf("expiry=%s", cfg.CacheExpiry)
	}
	if cfg.PartsMaxRetries != 3 {
		t.Fatalf("retries=%d", cfg.PartsMaxRetries)
	}
	if !cfg.MatchUseAPI {
		t.Fatal("MATCH_USE_API not applied")
	}
	if cfg.MatchWeights()[matcher.FactorMPN] != 0.5 {
		t.Fatal("weight override not applied")
	}
	if err := cfg.MatchWeights().Validate(); err == nil {
		t.Fatal("expected weights summing above one to be rejected")
	}
}

func TestRequire(t *testing.T) {
	cfg := Config{}
	if err := cfg.Require("PARTS_API_KEY", "  "); err == nil {
		t.Fatal("expected error for blank value")
	}
	if err := cfg.Require("PARTS_API_KEY", "k"); err != nil {
		t.Fatal(err)
	}
}
