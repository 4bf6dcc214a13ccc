// Package executor defines the execution contract and ships the simulated
// implementation used for paper trading and backtests.
//
// Any live executor must honor the same contract: Execute (with internal
// risk revalidation), CancelAll, GetFills with drain semantics, a
// monotone DroppedFillCount, and OpenExposure for reconciliation
// cross-checks. Live executors validate on their own path (signing,
// nonces) but must still run the pre-trade validator.
package executor

import (
	"errors"

	"bog/internal/position"
	"bog/pkg/types"
)

var (
	// ErrFillQueueOverflow is returned when the fill queue is full and
	// the overflow policy rejects rather than evicts.
	ErrFillQueueOverflow = errors.New("fill queue overflow")

	// ErrOrderNotFound is returned for operations on unknown order IDs.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotActive is returned for operations on terminal orders.
	ErrOrderNotActive = errors.New("order not active")

	// ErrNoMarketReference is returned when a market order arrives before
	// the executor has observed any market prices.
	ErrNoMarketReference = errors.New("no market reference price observed")

	// ErrRateLimited is returned when the order rate limiter refuses.
	ErrRateLimited = errors.New("order rate limit exceeded")
)

// Executor is the execution contract at the system boundary.
type Executor interface {
	// Execute places or cancels orders as the signal implies. The
	// executor performs its own risk revalidation before touching the
	// venue.
	Execute(sig types.Signal, pos *position.Position) error

	// CancelAll cancels every outstanding order.
	CancelAll() error

	// GetFills drains the fill queue: every returned fill is removed.
	GetFills() []types.Fill

	// DroppedFillCount returns the total fills dropped on queue
	// overflow. Monotone, non-decreasing; nonzero means position
	// tracking can no longer be trusted.
	DroppedFillCount() uint64

	// OpenExposure returns the total unfilled (long, short) order
	// quantity, for cross-checking against the position.
	OpenExposure() (long, short uint64)

	// Name identifies the executor in logs and stats.
	Name() string
}

// MarketObserver is implemented by executors that track reference prices
// from the feed (the simulated executor needs them to price market orders
// and run its pre-trade distance check). The engine feeds it each tick.
type MarketObserver interface {
	ObserveMarket(bestBid, bestAsk uint64)
}
