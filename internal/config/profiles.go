package config

import (
	"os"
	"time"
)

// Profile names an environment configuration set.
type Profile string

const (
	// Development: simulated execution, relaxed limits, verbose logging.
	Development Profile = "development"
	// Staging: production-like but smaller limits, simulated by default.
	Staging Profile = "staging"
	// Production: strict limits, warnings and up only, webhook alerts.
	Production Profile = "production"
)

// ProfileFromEnv reads BOG_PROFILE, defaulting to development.
func ProfileFromEnv() Profile {
	switch os.Getenv("BOG_PROFILE") {
	case "prod", "production":
		return Production
	case "stage", "staging":
		return Staging
	case "dev", "development", "":
		return Development
	default:
		return Development
	}
}

// ProfileConfig returns the built-in defaults for a profile.
func ProfileConfig(p Profile) Config {
	switch p {
	case Production:
		return productionConfig()
	case Staging:
		return stagingConfig()
	default:
		return developmentConfig()
	}
}

func developmentConfig() Config {
	return Config{
		MarketID: 1,
		DexType:  1,
		Execution: ExecutionConfig{
			Mode:        "simulated",
			FillRealism: "instant",
		},
		Strategy: StrategyConfig{
			Type:               "simple_spread",
			SpreadBps:          20, // wide spread for safety
			OrderSize:          "0.01",
			MinMarketSpreadBps: 5,
		},
		Risk: RiskConfig{
			MaxPosition:  "0.1",
			MaxShort:     "0.1",
			MaxOrderSize: "0.05",
			MinOrderSize: "0.001",
			MaxDailyLoss: "100",
		},
		Feed: FeedConfig{
			WarningAfter: 500 * time.Millisecond,
			StaleAfter:   2 * time.Second,
			OfflineAfter: 10 * time.Second,
		},
		Alerts: AlertsConfig{
			ConsoleMinSeverity: "info", // show everything in dev
			FileEnabled:        true,
			FilePath:           "./dev-data/alerts.jsonl",
			FileMinSeverity:    "info",
			WebhookMinSeverity: "critical",
			WebhookTimeoutMS:   5000,
			HaltOnCritical:     true,
		},
		Store:   StoreConfig{DataDir: "./dev-data"},
		Monitor: MonitorConfig{Enabled: true, Addr: "127.0.0.1:9090"},
		Logging: LoggingConfig{Level: "debug", Format: "text"},
	}
}

func stagingConfig() Config {
	cfg := developmentConfig()
	cfg.Execution.FillRealism = "realistic"
	cfg.Strategy.SpreadBps = 10
	cfg.Strategy.OrderSize = "0.05"
	cfg.Strategy.MinMarketSpreadBps = 2
	cfg.Risk = RiskConfig{
		MaxPosition:  "0.5",
		MaxShort:     "0.5",
		MaxOrderSize: "0.25",
		MinOrderSize: "0.0001",
		MaxDailyLoss: "500",
	}
	cfg.Alerts.ConsoleMinSeverity = "warning"
	cfg.Alerts.FilePath = "./staging-data/alerts.jsonl"
	cfg.Store.DataDir = "./staging-data"
	cfg.Logging.Level = "info"
	return cfg
}

func productionConfig() Config {
	cfg := stagingConfig()
	cfg.Execution.FillRealism = "conservative"
	cfg.Strategy.SpreadBps = 5
	cfg.Strategy.OrderSize = "0.1"
	cfg.Risk = RiskConfig{
		MaxPosition:  "1.0",
		MaxShort:     "1.0",
		MaxOrderSize: "0.5",
		MinOrderSize: "0.001",
		MaxDailyLoss: "1000",
	}
	cfg.Alerts.ConsoleMinSeverity = "warning"
	cfg.Alerts.FilePath = "/var/log/bog/alerts.jsonl"
	cfg.Alerts.FileMinSeverity = "warning"
	cfg.Store.DataDir = "/var/lib/bog"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}
