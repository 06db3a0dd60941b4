package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	src := `
symbol: XAUUSD
timeframes: ["15m", "1h"]
dedup:
  window: 2h
  price_places: 1
validator:
  min_risk_reward: 2
strategy:
  swing_lookback: 4
`
	cfg, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Timeframes) != 2 || cfg.Timeframes[1] != "1h" {
		t.Fatalf("timeframes not decoded: %v", cfg.Timeframes)
	}
	if cfg.Dedup.Window != 2*time.Hour || cfg.Dedup.PricePlaces != 1 {
		t.Fatalf("dedup not decoded: %+v", cfg.Dedup)
	}
	if cfg.Validator.MinRiskReward != 2 {
		t.Fatalf("min rr not decoded: %v", cfg.Validator.MinRiskReward)
	}
	// не указанные в файле поля остаются дефолтными
	if cfg.Validator.MaxEntryDeviation != 0.05 {
		t.Fatalf("default lost: %v", cfg.Validator.MaxEntryDeviation)
	}
	if cfg.Strategy.SwingLookback != 4 || cfg.Strategy.TrendLookback != 50 {
		t.Fatalf("strategy params: %+v", cfg.Strategy)
	}
	if len(cfg.Strategy.Enabled) == 0 {
		t.Fatalf("enabled rules must keep defaults")
	}
}

func TestLoadEmptyUsesDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dedup.Window != 4*time.Hour || cfg.Dedup.PricePlaces != 2 {
		t.Fatalf("unexpected dedup defaults: %+v", cfg.Dedup)
	}
	if cfg.Validator.MinRiskReward != 1.5 {
		t.Fatalf("unexpected min rr: %v", cfg.Validator.MinRiskReward)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no timeframes":   "timeframes: []",
		"negative rr":     "validator:\n  min_risk_reward: -1",
		"backoff inverted": "worker:\n  backoff_base: 10s\n  backoff_max: 1s",
		"bad yaml":        "symbol: [",
	}
	for name, src := range cases {
		if _, err := Load(strings.NewReader(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEnvSecrets(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "tok")
	t.Setenv("DATABASE_DSN", "postgres://x")
	t.Setenv("DEDUP_PRICE_PLACES", "3")

	cfg, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "tok" || cfg.DB != "postgres://x" {
		t.Fatalf("env secrets not applied: %q %q", cfg.Telegram.Token, cfg.DB)
	}
	if cfg.Dedup.PricePlaces != 3 {
		t.Fatalf("env default not applied: %d", cfg.Dedup.PricePlaces)
	}
}
