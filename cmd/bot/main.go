// bog — the execution core of a market-making bot for a perpetuals DEX.
//
// Architecture:
//
//	main.go                  — entry point: flags, profile config, wiring, signals
//	internal/shm             — shared-memory snapshot ring + feed consumer (seqlock, gaps, recovery protocol)
//	internal/data            — snapshot validator with adaptive thresholds + builder
//	internal/book            — L2 orderbook: full rebuild / incremental patch + depth analytics
//	internal/order           — order lifecycle FSM (typestate + runtime wrapper)
//	internal/position        — cache-aligned atomic position accumulator
//	internal/risk            — pre-signal limits, pre-trade gate, token-bucket rate limiter, market circuit breaker
//	internal/resilience      — kill switch + operational three-state breaker
//	internal/executor        — execution contract + simulated executor (fill realism, bounded fill queue)
//	internal/strategy        — strategy contract, simple-spread and inventory quoters, fees, volatility
//	internal/engine          — the tick engine, gap recovery manager, position reconciler
//	internal/alert           — severity-aware alerting (console / JSONL file / webhook)
//	internal/monitor         — prometheus metrics + diagnostics HTTP/WS server
//	internal/store           — crash-safe JSON persistence for positions and run stats
//
// One process trades one market: the feed consumes the producer's
// shared-memory ring, the engine runs the tick pipeline on a single
// pinned goroutine, and observers communicate through atomics only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"bog/internal/alert"
	"bog/internal/config"
	"bog/internal/data"
	"bog/internal/engine"
	"bog/internal/executor"
	"bog/internal/monitor"
	"bog/internal/position"
	"bog/internal/resilience"
	"bog/internal/risk"
	"bog/internal/shm"
	"bog/internal/store"
	"bog/internal/strategy"
)

// Exit codes per failure class.
const (
	exitOK              = 0
	exitInitFailure     = 1
	exitGapAbandoned    = 2
	exitDroppedFills    = 3
	exitConfigFailure   = 4
	exitValidationBurst = 5
)

// botEngine is the strategy-erased view main needs: the generic engine
// instantiations all satisfy it.
type botEngine interface {
	monitor.StatsProvider
	Run(*shm.Feed) (engine.Stats, error)
	Position() *position.Position
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		marketID   = flag.Uint64("market", 0, "market ID to trade (required)")
		cpuCore    = flag.Int("cpu", -1, "CPU core to pin the engine thread to")
		realtime   = flag.Bool("realtime", false, "request elevated scheduling priority")
		logLevel   = flag.String("log-level", "", "trace|debug|info|warn|error (overrides config)")
		configPath = flag.String("config", "", "optional YAML config overriding the BOG_PROFILE defaults")
	)
	flag.Parse()

	if *marketID == 0 {
		slog.Error("the -market flag is required")
		return exitConfigFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *configPath)
		return exitConfigFailure
	}
	if *marketID != 0 {
		cfg.MarketID = *marketID
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return exitConfigFailure
	}

	logger := newLogger(cfg.Logging)
	logger.Info("bog starting",
		"profile", string(config.ProfileFromEnv()),
		"market", cfg.MarketID,
		"execution", cfg.Execution.Mode,
		"strategy", cfg.Strategy.Type,
	)

	if *cpuCore >= 0 {
		if err := pinToCore(*cpuCore); err != nil {
			logger.Warn("CPU pinning failed", "core", *cpuCore, "error", err)
		} else {
			logger.Info("engine thread pinned", "core", *cpuCore)
		}
	}
	if *realtime {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
			logger.Warn("priority elevation failed (needs CAP_SYS_NICE)", "error", err)
		}
	}

	killSwitch := resilience.NewKillSwitch(logger)
	alerts := alert.NewManager(alertConfig(cfg.Alerts), logger)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return exitConfigFailure
	}
	defer st.Close()

	eng, err := buildEngine(cfg, killSwitch, alerts, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		return exitConfigFailure
	}

	// Connect the market data feed.
	feedCfg := shm.FeedConfig{
		WarningAfter: cfg.Feed.WarningAfter,
		StaleAfter:   cfg.Feed.StaleAfter,
		OfflineAfter: cfg.Feed.OfflineAfter,
		PollInterval: shm.DefaultFeedConfig().PollInterval,
	}
	ringPath := cfg.Feed.RingPath
	if ringPath == "" {
		ringPath = shm.RingPath(cfg.MarketID)
	}
	feed, err := shm.ConnectPath(ringPath, cfg.MarketID, feedCfg, logger)
	if err != nil {
		logger.Error("failed to connect to market data",
			"error", err, "path", ringPath,
			"hint", "is the producer running for this market?")
		return exitInitFailure
	}
	defer feed.Close()

	// Observer goroutines: diagnostics server and signal handling, off
	// the engine thread, talking to it through atomics only.
	g, ctx := errgroup.WithContext(context.Background())

	var mon *monitor.Server
	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(cfg.Monitor.Addr, fmt.Sprint(cfg.MarketID), eng, logger)
		g.Go(mon.Start)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			killSwitch.Shutdown("signal: " + sig.String())
		case <-ctx.Done():
		}
		return nil
	})

	// The engine owns the current goroutine. A panic anywhere on the
	// tick path upgrades to a kill-switch shutdown with orders
	// cancelled, never a bare crash.
	code := exitOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("PANIC in engine, upgrading to shutdown", "panic", r)
				killSwitch.Shutdown(fmt.Sprint("panic: ", r))
				alerts.Send(alert.New(alert.CategorySystem, "panic",
					alert.SeverityCritical, fmt.Sprint(r)))
				code = exitInitFailure
			}
		}()

		stats, err := eng.Run(feed)
		if err != nil {
			logger.Error("engine halted", "error", err)
			code = exitCodeFor(err)
		}
		persistRun(st, cfg.MarketID, eng, stats, logger)
	}()

	if mon != nil {
		if err := mon.Stop(); err != nil {
			logger.Warn("diagnostics server stop failed", "error", err)
		}
	}
	signal.Stop(sigCh)
	close(sigCh)
	_ = g.Wait()

	alerts.Flush()
	logger.Info("shutdown complete", "exit_code", code)
	return code
}

// buildEngine instantiates the generic engine for the configured strategy
// and execution mode.
func buildEngine(cfg *config.Config, ks *resilience.KillSwitch,
	alerts *alert.Manager, logger *slog.Logger) (botEngine, error) {

	if cfg.Execution.Mode != "simulated" {
		return nil, fmt.Errorf("live execution is provided by the exchange-specific binary; this core ships the simulated executor")
	}

	limits := risk.Limits{
		MinOrderSize: config.MustParseAmount(cfg.Risk.MinOrderSize),
		MaxOrderSize: config.MustParseAmount(cfg.Risk.MaxOrderSize),
		MaxPosition:  int64(config.MustParseAmount(cfg.Risk.MaxPosition)),
		MaxShort:     int64(config.MustParseAmount(cfg.Risk.MaxShort)),
		MaxDailyLoss: int64(config.MustParseAmount(cfg.Risk.MaxDailyLoss)),
	}

	var simCfg executor.SimulatedConfig
	switch cfg.Execution.FillRealism {
	case "realistic":
		simCfg = executor.RealisticConfig()
	case "conservative":
		simCfg = executor.ConservativeConfig()
	default:
		simCfg = executor.InstantConfig()
	}

	exec := executor.NewSimulated(simCfg, limits,
		risk.NewPreTradeValidatorWithKillSwitch(risk.DefaultExchangeRules(), ks),
		risk.NewRateLimiter(risk.ConservativeRateLimiterConfig()),
		logger)

	engCfg := engineConfig(cfg)

	switch cfg.Strategy.Type {
	case "inventory_based":
		invCfg := strategy.DefaultInventoryConfig()
		invCfg.OrderSize = config.MustParseAmount(cfg.Strategy.OrderSize)
		invCfg.BaseSpreadBps = cfg.Strategy.SpreadBps
		strat := strategy.NewInventory(invCfg)
		eng := engine.New(engCfg, strat, exec, ks, alerts, logger)
		strat.BindPosition(eng.Position())
		return eng, nil

	default:
		strat := strategy.NewSimpleSpread(strategy.SimpleSpreadConfig{
			SpreadBps:          cfg.Strategy.SpreadBps,
			OrderSize:          config.MustParseAmount(cfg.Strategy.OrderSize),
			MinMarketSpreadBps: cfg.Strategy.MinMarketSpreadBps,
		})
		return engine.New(engCfg, strat, exec, ks, alerts, logger), nil
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		MarketID:    cfg.MarketID,
		Validation:  data.DefaultValidationConfig(),
		Breaker:     risk.DefaultCircuitBreakerConfig(),
		GapRecovery: engine.DefaultGapRecoveryConfig(),
		Reconcile:   engine.DefaultReconcileConfig(),
	}
}

func alertConfig(a config.AlertsConfig) alert.ManagerConfig {
	cfg := alert.DefaultManagerConfig()
	cfg.HaltOnCritical = a.HaltOnCritical
	cfg.Outputs = []alert.Output{{Console: &alert.ConsoleOutput{
		MinSeverity: alert.ParseSeverity(a.ConsoleMinSeverity),
	}}}
	if a.FileEnabled && a.FilePath != "" {
		cfg.Outputs = append(cfg.Outputs, alert.Output{File: &alert.FileOutput{
			Path:        a.FilePath,
			MinSeverity: alert.ParseSeverity(a.FileMinSeverity),
		}})
	}
	if a.WebhookURL != "" {
		cfg.Outputs = append(cfg.Outputs, alert.Output{Webhook: &alert.WebhookOutput{
			URL:         a.WebhookURL,
			MinSeverity: alert.ParseSeverity(a.WebhookMinSeverity),
			TimeoutMS:   a.WebhookTimeoutMS,
		}})
	}
	return cfg
}

func persistRun(st *store.Store, marketID uint64, eng botEngine,
	stats engine.Stats, logger *slog.Logger) {

	pos := eng.Position()
	if err := st.SavePosition(marketID, store.PositionSnapshot{
		Quantity:    pos.Quantity(),
		EntryPrice:  pos.EntryPrice(),
		RealizedPnL: pos.RealizedPnL(),
		DailyPnL:    pos.DailyPnL(),
		TradeCount:  pos.TradeCount(),
	}); err != nil {
		logger.Error("failed to persist position", "error", err)
	}
	if err := st.SaveStats(marketID, store.RunStats{
		TicksProcessed:   stats.TicksProcessed,
		SignalsGenerated: stats.SignalsGenerated,
		FillsApplied:     stats.FillsApplied,
		FinalPosition:    stats.FinalPosition,
		RealizedPnL:      stats.RealizedPnL,
		GapsRecovered:    stats.GapsRecovered,
	}); err != nil {
		logger.Error("failed to persist stats", "error", err)
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrDroppedFills):
		return exitDroppedFills
	case errors.Is(err, engine.ErrGapRecoveryAbandoned):
		return exitGapAbandoned
	case errors.Is(err, engine.ErrValidationBurst):
		return exitValidationBurst
	default:
		return exitInitFailure
	}
}

func pinToCore(core int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
