package risk

import (
	"fmt"
	"log/slog"
	"time"

	"bog/internal/shm"
)

// Default circuit breaker thresholds.
const (
	// MaxSpreadBps trips the breaker: anything wider than 1% is treated
	// as a flash crash.
	MaxSpreadBps uint64 = 100

	// MaxPriceChangePct trips on a mid move larger than 10% in one tick.
	MaxPriceChangePct uint64 = 10

	// MinLiquidity (0.01 units) below which the tick is skipped, not
	// tripped.
	MinLiquidity uint64 = 10_000_000

	// MaxDataAgeNS (5s) beyond which the tick is skipped, not tripped.
	MaxDataAgeNS uint64 = 5_000_000_000

	// ConsecutiveViolationsThreshold guards against a single spurious
	// tick halting trading.
	ConsecutiveViolationsThreshold uint32 = 3
)

// HaltReason explains a circuit breaker trip.
type HaltReason uint8

const (
	HaltNone HaltReason = iota
	HaltExcessiveSpread
	HaltExcessivePriceMove
	HaltManual
)

func (r HaltReason) String() string {
	switch r {
	case HaltNone:
		return "NONE"
	case HaltExcessiveSpread:
		return "EXCESSIVE_SPREAD"
	case HaltExcessivePriceMove:
		return "EXCESSIVE_PRICE_MOVE"
	case HaltManual:
		return "MANUAL"
	}
	return "UNKNOWN"
}

// BreakerDecision is the per-tick outcome: trade, skip this tick, or halt.
type BreakerDecision uint8

const (
	// Proceed: conditions normal, safe to trade.
	Proceed BreakerDecision = iota
	// SkipTick: transient condition (thin book, stale data); don't trade
	// this tick but don't halt.
	SkipTick
	// Halted: the breaker has tripped and requires a manual reset.
	Halted
)

// CircuitBreakerConfig tunes the market-level breaker.
type CircuitBreakerConfig struct {
	MaxSpreadBps          uint64
	MaxPriceChangePct     uint64
	MinLiquidity          uint64
	MaxDataAgeNS          uint64
	ConsecutiveViolations uint32
}

// DefaultCircuitBreakerConfig returns the production thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxSpreadBps:          MaxSpreadBps,
		MaxPriceChangePct:     MaxPriceChangePct,
		MinLiquidity:          MinLiquidity,
		MaxDataAgeNS:          MaxDataAgeNS,
		ConsecutiveViolations: ConsecutiveViolationsThreshold,
	}
}

// CircuitBreaker is the trading-level flash-crash guard. Tripping-class
// violations (spread, price move) must occur on consecutive ticks to halt;
// a normal tick resets the count. Skip-class conditions (liquidity, data
// age) never trip. Once halted, only Reset restores trading.
type CircuitBreaker struct {
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	halted     bool
	haltReason HaltReason

	lastMid               uint64
	consecutiveViolations uint32
	totalTrips            uint64
	now                   func() uint64
}

// NewCircuitBreaker creates a breaker in the Normal state.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger.With("component", "circuit_breaker"),
		now:    func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// Check evaluates one snapshot and returns the per-tick decision.
func (cb *CircuitBreaker) Check(s *shm.MarketSnapshot) BreakerDecision {
	if cb.halted {
		return Halted
	}

	bid, ask := s.BestBidPrice, s.BestAskPrice

	// Invalid data is the validator's problem: skip, don't halt.
	if bid == 0 || ask == 0 || ask <= bid {
		return SkipTick
	}

	// Tripping class 1: spread.
	spreadBps := (ask - bid) * 10_000 / bid
	if spreadBps > cb.cfg.MaxSpreadBps {
		return cb.violation(HaltExcessiveSpread,
			fmt.Sprintf("spread %dbps > max %dbps", spreadBps, cb.cfg.MaxSpreadBps))
	}

	// Tripping class 2: price movement.
	mid := s.Mid()
	if cb.lastMid > 0 {
		change := mid - cb.lastMid
		if cb.lastMid > mid {
			change = cb.lastMid - mid
		}
		changePct := change * 100 / cb.lastMid
		if changePct > cb.cfg.MaxPriceChangePct {
			return cb.violation(HaltExcessivePriceMove,
				fmt.Sprintf("price moved %d%% > max %d%%", changePct, cb.cfg.MaxPriceChangePct))
		}
	}
	cb.lastMid = mid

	// Skip class 1: thin book on either side.
	if s.BestBidSize < cb.cfg.MinLiquidity || s.BestAskSize < cb.cfg.MinLiquidity {
		cb.logger.Warn("insufficient liquidity, skipping tick",
			"bid_size", s.BestBidSize, "ask_size", s.BestAskSize, "min", cb.cfg.MinLiquidity)
		cb.consecutiveViolations = 0
		return SkipTick
	}

	// Skip class 2: stale data.
	if now := cb.now(); now > s.ExchangeTS && now-s.ExchangeTS > cb.cfg.MaxDataAgeNS {
		cb.logger.Warn("stale market data, skipping tick",
			"age_ms", (now-s.ExchangeTS)/1e6)
		cb.consecutiveViolations = 0
		return SkipTick
	}

	// Normal tick resets the violation streak.
	cb.consecutiveViolations = 0
	return Proceed
}

// violation counts a tripping-class violation and halts once the streak
// reaches the threshold.
func (cb *CircuitBreaker) violation(reason HaltReason, detail string) BreakerDecision {
	cb.consecutiveViolations++
	if cb.consecutiveViolations < cb.cfg.ConsecutiveViolations {
		cb.logger.Warn("circuit breaker violation",
			"reason", reason, "detail", detail,
			"streak", cb.consecutiveViolations, "threshold", cb.cfg.ConsecutiveViolations)
		return SkipTick
	}

	cb.halted = true
	cb.haltReason = reason
	cb.totalTrips++
	cb.logger.Error("CIRCUIT BREAKER TRIPPED — trading halted",
		"reason", reason, "detail", detail, "total_trips", cb.totalTrips)
	return Halted
}

// IsHalted reports whether the breaker has tripped.
func (cb *CircuitBreaker) IsHalted() bool { return cb.halted }

// HaltReason returns why trading halted, or HaltNone.
func (cb *CircuitBreaker) HaltReason() HaltReason { return cb.haltReason }

// TotalTrips returns how many times the breaker has tripped.
func (cb *CircuitBreaker) TotalTrips() uint64 { return cb.totalTrips }

// Reset restores trading after a halt (manual operator action).
func (cb *CircuitBreaker) Reset() {
	cb.halted = false
	cb.haltReason = HaltNone
	cb.consecutiveViolations = 0
	cb.lastMid = 0
	cb.logger.Info("circuit breaker manually reset")
}

// ManualHalt trips the breaker by operator command.
func (cb *CircuitBreaker) ManualHalt() {
	cb.halted = true
	cb.haltReason = HaltManual
	cb.totalTrips++
	cb.logger.Warn("circuit breaker manually halted")
}
