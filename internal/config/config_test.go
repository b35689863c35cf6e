package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range bindings {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.CacheTTL != 30*time.Second {
		t.Errorf("port=%q ttl=%v", cfg.Port, cfg.CacheTTL)
	}
	if !cfg.FeeBps.IsZero() || cfg.RejectCrossedBooks {
		t.Errorf("fee=%s reject=%v", cfg.FeeBps, cfg.RejectCrossedBooks)
	}
	if !cfg.MaxPerMarket.Equal(decimal.NewFromInt(1000)) || !cfg.MaxCorrelated.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("limits = %s / %s", cfg.MaxPerMarket, cfg.MaxCorrelated)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.DatabaseURL != "" || cfg.PebbleDir != "" {
		t.Errorf("unexpected infra settings: %+v", cfg)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FEE_BPS", "2.5")
	t.Setenv("REJECT_CROSSED_BOOKS", "true")
	t.Setenv("CACHE_TTL", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.CacheTTL != 5*time.Second || !cfg.RejectCrossedBooks {
		t.Errorf("got %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %q", cfg.KafkaBrokers)
	}
	if !cfg.FeeBps.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("fee = %s", cfg.FeeBps)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "shoken.yaml")
	yaml := `
server:
  port: "7000"
kafka:
  brokers: [a:9092, b:9092]
limits:
  max_per_market: "250.5"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7001" {
		t.Errorf("env should override file, port = %q", cfg.Port)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "a:9092" {
		t.Errorf("brokers = %q", cfg.KafkaBrokers)
	}
	if !cfg.MaxPerMarket.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("max per market = %s", cfg.MaxPerMarket)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	t.Setenv("FEE_BPS", "abc")
	if _, err := Load(""); err == nil {
		t.Error("expected error for bad decimal")
	}

	t.Setenv("FEE_BPS", "-1")
	if _, err := Load(""); err == nil {
		t.Error("expected error for negative fee")
	}
}
