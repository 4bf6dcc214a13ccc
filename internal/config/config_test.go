package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProfilesValidate(t *testing.T) {
	for _, p := range []Profile{Development, Staging, Production} {
		cfg := ProfileConfig(p)
		if err := cfg.Validate(); err != nil {
			t.Errorf("profile %s invalid out of the box: %v", p, err)
		}
	}
}

func TestProfileFromEnv(t *testing.T) {
	cases := map[string]Profile{
		"":            Development,
		"development": Development,
		"dev":         Development,
		"staging":     Staging,
		"production":  Production,
		"prod":        Production,
		"nonsense":    Development,
	}
	for val, want := range cases {
		t.Setenv("BOG_PROFILE", val)
		if got := ProfileFromEnv(); got != want {
			t.Errorf("BOG_PROFILE=%q → %s, want %s", val, got, want)
		}
	}
}

func TestProfileLimitsScaleUp(t *testing.T) {
	t.Parallel()

	dev := ProfileConfig(Development)
	prod := ProfileConfig(Production)

	devMax := MustParseAmount(dev.Risk.MaxPosition)
	prodMax := MustParseAmount(prod.Risk.MaxPosition)
	if prodMax <= devMax {
		t.Errorf("production max position %d should exceed development %d (real size, real limits)",
			prodMax, devMax)
	}
	if prod.Logging.Level == "debug" {
		t.Error("production must not log at debug")
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0.001", 1_000_000, false},
		{"1", 1_000_000_000, false},
		{"50000", 50_000_000_000_000, false},
		{"0.000000001", 1, false},
		{"0.123456789", 123_456_789, false},
		{"", 0, true},
		{"-1", 0, true},
		{"0.0000000001", 0, true}, // sub-nano precision
		{"abc", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) = %d, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("BOG_PROFILE", "development")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
market_id: 7
strategy:
  type: inventory_based
  spread_bps: 15
  order_size: "0.02"
risk:
  max_position: "0.2"
`)
	if err := os.WriteFile(path, yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MarketID != 7 {
		t.Errorf("market_id = %d, want 7", cfg.MarketID)
	}
	if cfg.Strategy.Type != "inventory_based" || cfg.Strategy.SpreadBps != 15 {
		t.Errorf("strategy = %+v", cfg.Strategy)
	}
	// File overrides merge over profile defaults: untouched fields keep
	// the profile values.
	if cfg.Risk.MinOrderSize != "0.001" {
		t.Errorf("min_order_size = %q, want profile default", cfg.Risk.MinOrderSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cfg := ProfileConfig(Development)
	cfg.Execution.Mode = "yolo"
	if err := cfg.Validate(); err == nil {
		t.Error("bad execution mode accepted")
	}

	cfg = ProfileConfig(Development)
	cfg.Risk.MaxPosition = "-5"
	if err := cfg.Validate(); err == nil {
		t.Error("negative limit accepted")
	}

	cfg = ProfileConfig(Development)
	cfg.MarketID = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero market_id accepted")
	}
}
