// Package engine runs the tick-processing pipeline: feed → validator →
// circuit breaker → book → strategy → executor → fills → position →
// reconciler, with the kill switch and alert manager able to pause or
// halt it at any point.
//
// The engine is generic over its strategy and executor so the whole
// pipeline resolves at compile time — no interface dispatch sits between
// the change-detection early-out and the executor call on a steady tick.
// It runs on a single goroutine that exclusively owns the book, the
// position, the strategy, and the executor.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"bog/internal/alert"
	"bog/internal/book"
	"bog/internal/data"
	"bog/internal/executor"
	"bog/internal/position"
	"bog/internal/resilience"
	"bog/internal/risk"
	"bog/internal/shm"
	"bog/internal/strategy"
	"bog/pkg/types"
)

var (
	// ErrDroppedFills halts the engine: position tracking is corrupted.
	ErrDroppedFills = errors.New("dropped fills detected, position tracking corrupted")

	// ErrInitialization covers the failure to obtain a first valid
	// snapshot within the retry budget.
	ErrInitialization = errors.New("initialization failed")

	// ErrShutdownRequested is returned when the kill switch fires during
	// initialization.
	ErrShutdownRequested = errors.New("shutdown requested")

	// ErrValidationBurst is returned when too many consecutive snapshots
	// fail validation — the feed itself is broken, not one message.
	ErrValidationBurst = errors.New("validation error burst")
)

// validationBurstThreshold is the consecutive-failure count treated as a
// broken feed rather than bad ticks.
const validationBurstThreshold = 100

// Initialization gate bounds.
const (
	maxInitRetries = 100
	initRetryDelay = 100 * time.Millisecond
)

// queueDepthWarningThreshold flags a consumer that is falling behind.
const queueDepthWarningThreshold = 100

// hotData is the per-tick mutable state, exactly one cache line. The
// counters are atomics so observers can sample them; the change-detection
// fields are plain because only the engine goroutine touches them. All
// counter accesses are relaxed-equivalent.
type hotData struct {
	tickCount   atomic.Uint64
	signalCount atomic.Uint64
	lastBid     uint64
	lastAsk     uint64
	_           [32]byte
}

// marketChanged updates the change-detection pair and reports movement.
func (h *hotData) marketChanged(bid, ask uint64) bool {
	changed := h.lastBid != bid || h.lastAsk != ask
	h.lastBid, h.lastAsk = bid, ask
	return changed
}

// Stats is the engine's aggregate output.
type Stats struct {
	TicksProcessed   uint64
	SignalsGenerated uint64
	FillsApplied     uint64
	FinalPosition    int64
	RealizedPnL      int64
	MaxQueueDepth    uint64
	QueueWarnings    uint64
	GapsRecovered    uint64
}

// Config carries the engine's own knobs; component configs ride along.
type Config struct {
	MarketID    uint64
	Validation  data.ValidationConfig
	Breaker     risk.CircuitBreakerConfig
	GapRecovery GapRecoveryConfig
	Reconcile   ReconcileConfig
}

// Engine composes a strategy and an executor over the shared market state.
type Engine[S strategy.Strategy, E executor.Executor] struct {
	strategy S
	executor E

	position  *position.Position
	book      *book.L2Book
	validator *data.Validator
	breaker   *risk.CircuitBreaker
	gaps      *GapRecoveryManager
	reconcile *Reconciler

	killSwitch *resilience.KillSwitch
	alerts     *alert.Manager
	logger     *slog.Logger

	hot hotData

	// observer is the executor's optional market-price hook, resolved
	// once at construction so the tick path pays no type assertion.
	observer executor.MarketObserver

	// filledNet accumulates fill position deltas independently of the
	// position arithmetic; the reconciler compares the two.
	filledNet int64

	fillsApplied    uint64
	maxQueueDepth   uint64
	queueWarnings   uint64
	validationFails uint32 // consecutive, reset on any valid tick
}

// New wires an engine. The kill switch and alert manager are shared with
// the rest of the process; everything else is owned.
func New[S strategy.Strategy, E executor.Executor](
	cfg Config, strat S, exec E,
	ks *resilience.KillSwitch, alerts *alert.Manager, logger *slog.Logger,
) *Engine[S, E] {
	e := &Engine[S, E]{
		strategy:   strat,
		executor:   exec,
		position:   position.New(),
		book:       book.New(cfg.MarketID, logger),
		validator:  data.NewValidatorWithConfig(cfg.Validation),
		breaker:    risk.NewCircuitBreaker(cfg.Breaker, logger),
		gaps:       NewGapRecoveryManager(cfg.GapRecovery, logger),
		reconcile:  NewReconciler(cfg.Reconcile, logger),
		killSwitch: ks,
		alerts:     alerts,
		logger:     logger.With("component", "engine", "market", cfg.MarketID),
	}
	if obs, ok := any(exec).(executor.MarketObserver); ok {
		e.observer = obs
	}
	e.logger.Info("engine initialized",
		"strategy", strat.Name(), "executor", exec.Name())
	return e
}

// Position exposes the engine's position for observers.
func (e *Engine[S, E]) Position() *position.Position { return e.position }

// Book exposes the book for observers (engine goroutine only).
func (e *Engine[S, E]) Book() *book.L2Book { return e.book }

// Breaker exposes the market circuit breaker for operator controls.
func (e *Engine[S, E]) Breaker() *risk.CircuitBreaker { return e.breaker }

// TickCount returns the ticks processed so far.
func (e *Engine[S, E]) TickCount() uint64 { return e.hot.tickCount.Load() }

// SignalCount returns the signals generated so far.
func (e *Engine[S, E]) SignalCount() uint64 { return e.hot.signalCount.Load() }

// PositionQuantity samples the position for observers.
func (e *Engine[S, E]) PositionQuantity() int64 { return e.position.Quantity() }

// RealizedPnL samples realized PnL for observers.
func (e *Engine[S, E]) RealizedPnL() int64 { return e.position.RealizedPnL() }

// DailyPnL samples daily PnL for observers.
func (e *Engine[S, E]) DailyPnL() int64 { return e.position.DailyPnL() }

// TradeCount samples the fill count for observers.
func (e *Engine[S, E]) TradeCount() uint32 { return e.position.TradeCount() }

// ProcessTick runs the hot path for one snapshot. dataFresh gates
// execution: stale feeds still update state but never trade.
func (e *Engine[S, E]) ProcessTick(snap *shm.MarketSnapshot, dataFresh bool) error {
	e.hot.tickCount.Add(1)

	// Early-out when the top of book is unchanged: the common case on a
	// quiet market, and the cheapest.
	if !e.hot.marketChanged(snap.BestBidPrice, snap.BestAskPrice) {
		return nil
	}

	if !dataFresh {
		return nil
	}

	// A validation failure raises an alert and drops the tick. One bad
	// message is survivable; a long consecutive run means the feed is
	// broken and the engine must halt.
	if err := e.validator.Validate(snap); err != nil {
		e.alerts.Send(alert.New(alert.CategorySystem, "invalid_snapshot",
			alert.SeverityWarning, err.Error()).
			WithDetail("sequence", fmt.Sprint(snap.Sequence)).
			WithDetail("bid", fmt.Sprint(snap.BestBidPrice)).
			WithDetail("ask", fmt.Sprint(snap.BestAskPrice)))
		e.validationFails++
		if e.validationFails >= validationBurstThreshold {
			return fmt.Errorf("%w: %d consecutive invalid snapshots (last: %v)",
				ErrValidationBurst, e.validationFails, err)
		}
		return nil
	}
	e.validationFails = 0

	switch e.breaker.Check(snap) {
	case risk.Halted, risk.SkipTick:
		return nil
	}

	e.book.Sync(snap)
	if e.observer != nil {
		e.observer.ObserveMarket(snap.BestBidPrice, snap.BestAskPrice)
	}

	if sig, ok := e.strategy.Calculate(snap); ok {
		e.hot.signalCount.Add(1)
		if err := e.executor.Execute(sig, e.position); err != nil {
			// Risk and pre-trade rejections are counted, not fatal.
			var violation risk.ViolationError
			if errors.As(err, &violation) {
				e.logger.Debug("signal rejected by risk limits",
					"violation", violation.Violation.String())
			} else {
				e.logger.Warn("execution failed", "error", err)
			}
		}
	}

	return e.drainFills()
}

// drainFills applies executor fills to the position and halts on any
// dropped fill.
func (e *Engine[S, E]) drainFills() error {
	fills := e.executor.GetFills()
	for i := range fills {
		if err := e.applyFill(&fills[i]); err != nil {
			return err
		}
	}

	// A dropped fill means some execution never reached the position:
	// the book of record is corrupted and the process must exit.
	if dropped := e.executor.DroppedFillCount(); dropped > 0 {
		e.alerts.Send(alert.New(alert.CategoryTrading, "dropped_fills",
			alert.SeverityCritical, "fill queue overflow").
			WithDetail("dropped", fmt.Sprint(dropped)))
		return fmt.Errorf("%w: %d fills dropped", ErrDroppedFills, dropped)
	}

	if e.reconcile.ShouldReconcile() {
		if _, err := e.reconcile.Reconcile(e.position.Quantity(), e.filledNet); err != nil {
			e.alerts.Send(alert.New(alert.CategoryTrading, "reconciliation",
				alert.SeverityCritical, err.Error()))
			return err
		}
	}

	return nil
}

// applyFill feeds one fill into the position. The fee charged by the
// venue reduces realized and daily PnL on every fill; overflow on this
// path is fatal.
func (e *Engine[S, E]) applyFill(f *types.Fill) error {
	if err := e.position.ProcessFill(f.Side, f.Price, f.Size); err != nil {
		return fmt.Errorf("apply fill %s: %w", f.OrderID, err)
	}
	if f.Fee > 0 {
		if err := e.position.AddRealizedPnLChecked(-int64(f.Fee)); err != nil {
			return err
		}
		if err := e.position.AddDailyPnLChecked(-int64(f.Fee)); err != nil {
			return err
		}
	}
	e.filledNet += f.PositionChange()
	e.fillsApplied++
	e.reconcile.OnFill()
	return nil
}

// Run consumes the feed until shutdown. It waits for the first valid
// snapshot (bounded retry), then loops: recover gaps, process ticks,
// honor the kill switch and the alert halt latch.
func (e *Engine[S, E]) Run(feed *shm.Feed) (Stats, error) {
	if err := e.waitForInitialSnapshot(feed); err != nil {
		return e.stats(), err
	}

	e.logger.Info("entering main trading loop")

	for !e.killSwitch.ShouldStop() {
		if e.alerts.IsTradingHalted() {
			e.logger.Error("trading halted by critical alert, shutting down")
			e.killSwitch.Shutdown("critical alert halt")
			break
		}

		snap, err := feed.TryRecv()
		if err != nil {
			return e.stats(), err
		}

		if feed.EpochChanged() {
			e.alerts.Send(alert.New(alert.CategorySystem, "producer_restart",
				alert.SeverityError, "market data producer restarted"))
			e.validator.Reset()
		}

		if feed.GapDetected() {
			// Push the gap-triggering snapshot back: after the resync
			// rewind, the replay delivers it (and everything after)
			// in order.
			feed.UnreadLast()
			if err := e.recoverGap(feed); err != nil {
				e.killSwitch.Shutdown(err.Error())
				return e.stats(), err
			}
			continue
		}

		if snap == nil {
			// Nothing buffered; yield briefly rather than spinning the
			// core at 100%.
			time.Sleep(10 * time.Microsecond)
			continue
		}

		e.trackQueueDepth(feed.QueueDepth())

		if err := e.ProcessTick(snap, feed.IsFresh() && !e.gaps.ShouldPauseTrading()); err != nil {
			e.shutdownWith(err)
			return e.stats(), err
		}
	}

	e.Shutdown()
	return e.stats(), nil
}

// waitForInitialSnapshot is the initialization gate: trading must not
// start before one valid snapshot has populated the book.
func (e *Engine[S, E]) waitForInitialSnapshot(feed *shm.Feed) error {
	e.logger.Info("waiting for initial valid market snapshot")

	for retries := 0; retries < maxInitRetries; retries++ {
		if e.killSwitch.ShouldStop() {
			return ErrShutdownRequested
		}

		snap, err := feed.TryRecv()
		if err != nil {
			return err
		}

		switch {
		case snap != nil && e.validator.IsValid(snap):
			e.logger.Info("received valid initial snapshot",
				"attempt", retries+1,
				"sequence", snap.Sequence,
				"bid", snap.BestBidPrice,
				"ask", snap.BestAskPrice,
				"spread_bps", snap.SpreadBps())
			if err := e.ProcessTick(snap, true); err != nil {
				return err
			}
			e.logger.Info("initial orderbook populated, ready to trade")
			return nil

		case snap != nil:
			e.logger.Warn("rejecting invalid initial snapshot",
				"attempt", retries+1,
				"sequence", snap.Sequence,
				"bid", snap.BestBidPrice,
				"ask", snap.BestAskPrice)

		default:
			if retries%10 == 0 {
				e.logger.Info("ring buffer empty, waiting for producer",
					"attempt", retries+1, "max", maxInitRetries)
			}
			time.Sleep(initRetryDelay)
		}
	}

	return fmt.Errorf("%w: no valid snapshot after %d retries (%.1fs); "+
		"verify the producer is running, the market is active, and the "+
		"shared memory ring exists at %s",
		ErrInitialization, maxInitRetries,
		float64(maxInitRetries)*initRetryDelay.Seconds(),
		shm.RingPath(e.book.MarketID))
}

// recoverGap drives the gap-recovery manager and escalates abandonment to
// the kill switch.
func (e *Engine[S, E]) recoverGap(feed *shm.Feed) error {
	gapSize := feed.LastGapSize()
	_, err := e.gaps.HandleGap(feed, gapSize, feed.LastSequence())

	e.alerts.Send(alert.New(alert.CategorySystem, "sequence_gap",
		alert.SeverityError, "sequence gap in market data").
		WithDetail("gap_size", fmt.Sprint(gapSize)))

	if err != nil {
		if e.gaps.ShouldAbandon() {
			return fmt.Errorf("%w: %v", ErrGapRecoveryAbandoned, err)
		}
		e.logger.Error("gap recovery failed, continuing degraded", "error", err)
	}
	// On success the post-rewind replay rebuilds the book in order,
	// starting with the pushed-back trigger snapshot.
	return nil
}

func (e *Engine[S, E]) trackQueueDepth(depth uint64) {
	if depth > e.maxQueueDepth {
		e.maxQueueDepth = depth
	}
	if depth > queueDepthWarningThreshold {
		e.queueWarnings++
		e.logger.Warn("market data queue depth high",
			"depth", depth, "threshold", queueDepthWarningThreshold)
	}
}

func (e *Engine[S, E]) shutdownWith(err error) {
	e.alerts.Send(alert.New(alert.CategorySystem, "engine_halt",
		alert.SeverityCritical, err.Error()))
	e.killSwitch.Shutdown(err.Error())
	e.Shutdown()
}

// Shutdown cancels outstanding orders and flushes stats. Idempotent.
func (e *Engine[S, E]) Shutdown() {
	e.logger.Info("shutting down engine")
	if err := e.executor.CancelAll(); err != nil {
		e.logger.Error("cancel-all on shutdown failed", "error", err)
	}
	s := e.stats()
	e.logger.Info("engine stopped",
		"ticks", s.TicksProcessed,
		"signals", s.SignalsGenerated,
		"fills", s.FillsApplied,
		"final_position", s.FinalPosition,
		"realized_pnl", s.RealizedPnL,
		"max_queue_depth", s.MaxQueueDepth)
}

func (e *Engine[S, E]) stats() Stats {
	return Stats{
		TicksProcessed:   e.hot.tickCount.Load(),
		SignalsGenerated: e.hot.signalCount.Load(),
		FillsApplied:     e.fillsApplied,
		FinalPosition:    e.position.Quantity(),
		RealizedPnL:      e.position.RealizedPnL(),
		MaxQueueDepth:    e.maxQueueDepth,
		QueueWarnings:    e.queueWarnings,
		GapsRecovered:    e.gaps.Stats().TotalGapsRecovered,
	}
}

// Stats returns a point-in-time snapshot of the engine statistics.
func (e *Engine[S, E]) Stats() Stats { return e.stats() }
