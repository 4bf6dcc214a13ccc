// Package config defines all configuration for the trading core.
//
// A built-in profile (selected by BOG_PROFILE: development, staging, or
// production) supplies every default; an optional YAML file overrides the
// profile, and the BOG_MARKET_ID, BOG_EXECUTION_MODE and BOG_WEBHOOK_URL
// environment variables override both; no other field is read from the
// environment. Human-entered
// prices and sizes are decimal strings converted exactly to 9-decimal
// fixed point — no float64 round trip touches a limit.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	MarketID uint64 `mapstructure:"market_id"`
	DexType  uint8  `mapstructure:"dex_type"`

	Execution ExecutionConfig `mapstructure:"execution"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Store     StoreConfig     `mapstructure:"store"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ExecutionConfig selects the executor and its realism.
type ExecutionConfig struct {
	// Mode: "simulated" (paper trading) or "live".
	Mode string `mapstructure:"mode"`
	// FillRealism: "instant", "realistic", or "conservative".
	FillRealism string `mapstructure:"fill_realism"`
}

// StrategyConfig selects and tunes the strategy.
type StrategyConfig struct {
	// Type: "simple_spread" or "inventory_based".
	Type string `mapstructure:"type"`
	// SpreadBps is the quoted spread.
	SpreadBps uint64 `mapstructure:"spread_bps"`
	// OrderSize is the per-side quantity as a decimal string, e.g. "0.01".
	OrderSize string `mapstructure:"order_size"`
	// MinMarketSpreadBps skips quoting into already-tight markets.
	MinMarketSpreadBps uint64 `mapstructure:"min_market_spread_bps"`
}

// RiskConfig sets the hard limits. Quantities are decimal strings.
type RiskConfig struct {
	MaxPosition  string `mapstructure:"max_position"`
	MaxShort     string `mapstructure:"max_short"`
	MaxOrderSize string `mapstructure:"max_order_size"`
	MinOrderSize string `mapstructure:"min_order_size"`
	// MaxDailyLoss in quote currency, decimal string.
	MaxDailyLoss string `mapstructure:"max_daily_loss"`
}

// FeedConfig tunes the shared-memory consumer.
type FeedConfig struct {
	// RingPath overrides the conventional /dev/shm path (tests, replay).
	RingPath     string        `mapstructure:"ring_path"`
	WarningAfter time.Duration `mapstructure:"warning_after"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	OfflineAfter time.Duration `mapstructure:"offline_after"`
}

// AlertsConfig wires the alert outputs.
type AlertsConfig struct {
	ConsoleMinSeverity string `mapstructure:"console_min_severity"`
	FileEnabled        bool   `mapstructure:"file_enabled"`
	FilePath           string `mapstructure:"file_path"`
	FileMinSeverity    string `mapstructure:"file_min_severity"`
	WebhookURL         string `mapstructure:"webhook_url"`
	WebhookMinSeverity string `mapstructure:"webhook_min_severity"`
	WebhookTimeoutMS   uint64 `mapstructure:"webhook_timeout_ms"`
	HaltOnCritical     bool   `mapstructure:"halt_on_critical"`
}

// StoreConfig sets where run state is persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// MonitorConfig controls the diagnostics server.
type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load resolves the configuration: profile defaults, then the optional
// YAML file at path (empty path = profile only), then the BOG_MARKET_ID,
// BOG_EXECUTION_MODE and BOG_WEBHOOK_URL env vars.
func Load(path string) (*Config, error) {
	profile := ProfileFromEnv()
	cfg := ProfileConfig(profile)

	v := viper.New()
	v.SetEnvPrefix("BOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	// Simple env overrides for the fields operators flip most.
	if id := v.GetUint64("market_id"); id != 0 {
		cfg.MarketID = id
	}
	if mode := os.Getenv("BOG_EXECUTION_MODE"); mode != "" {
		cfg.Execution.Mode = mode
	}
	if url := os.Getenv("BOG_WEBHOOK_URL"); url != "" {
		cfg.Alerts.WebhookURL = url
	}

	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.MarketID == 0 {
		return fmt.Errorf("market_id is required")
	}
	switch c.Execution.Mode {
	case "simulated", "live":
	default:
		return fmt.Errorf("execution.mode must be \"simulated\" or \"live\", got %q", c.Execution.Mode)
	}
	switch c.Execution.FillRealism {
	case "instant", "realistic", "conservative":
	default:
		return fmt.Errorf("execution.fill_realism must be instant, realistic, or conservative")
	}
	switch c.Strategy.Type {
	case "simple_spread", "inventory_based":
	default:
		return fmt.Errorf("strategy.type must be simple_spread or inventory_based")
	}
	if c.Strategy.SpreadBps == 0 {
		return fmt.Errorf("strategy.spread_bps must be > 0")
	}
	for name, val := range map[string]string{
		"strategy.order_size": c.Strategy.OrderSize,
		"risk.max_position":   c.Risk.MaxPosition,
		"risk.max_short":      c.Risk.MaxShort,
		"risk.max_order_size": c.Risk.MaxOrderSize,
		"risk.min_order_size": c.Risk.MinOrderSize,
		"risk.max_daily_loss": c.Risk.MaxDailyLoss,
	} {
		if _, err := ParseAmount(val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	return nil
}

// ParseAmount converts a decimal string ("0.001", "50000") to 9-decimal
// fixed point exactly. Rejects negatives, overflow, and sub-nano
// precision that would silently truncate.
func ParseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", s)
	}

	scaled := d.Mul(decimal.New(1, 9))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than 9 decimal places", s)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() || bi.Uint64() > math.MaxInt64 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return bi.Uint64(), nil
}

// MustParseAmount is ParseAmount for validated configs and tests.
func MustParseAmount(s string) uint64 {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}
