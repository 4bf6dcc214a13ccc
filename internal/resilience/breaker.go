package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState names the three circuit positions.
type BreakerState uint8

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// BreakerConfig tunes the operational circuit breaker.
type BreakerConfig struct {
	// FailureThreshold failures in Closed open the circuit.
	FailureThreshold uint64
	// Timeout is how long Open lasts before a HalfOpen probe is allowed.
	Timeout time.Duration
	// SuccessThreshold successes in HalfOpen close the circuit.
	SuccessThreshold uint64
}

// DefaultBreakerConfig returns the production tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is the operational circuit breaker guarding outbound calls:
//
//	Closed ──failures ≥ Nf──► Open
//	Open ──elapsed ≥ timeout──► HalfOpen   (performed inside IsCallPermitted)
//	HalfOpen ──successes ≥ Ns──► Closed
//	HalfOpen ──any failure────► Open
//
// Successes in Closed reset the failure counter; failures in Open are
// ignored. The FSM core is guarded by a mutex for thread-safe access.
type Breaker struct {
	cfg    BreakerConfig
	logger *slog.Logger

	mu           sync.Mutex
	state        BreakerState
	failureCount uint64
	successCount uint64
	openedAt     time.Time
}

// NewBreaker creates a breaker in Closed.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	return &Breaker{cfg: cfg, logger: logger.With("component", "breaker")}
}

// IsCallPermitted peeks at the state and, when Open has timed out,
// performs the single Open → HalfOpen transition.
func (b *Breaker) IsCallPermitted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.state = BreakerHalfOpen
			b.successCount = 0
			b.logger.Info("circuit breaker: OPEN → HALF_OPEN (timeout elapsed)")
			return true
		}
		return false
	}
	return false
}

// RecordSuccess feeds a successful call into the FSM.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failureCount = 0
	case BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = BreakerClosed
			b.failureCount = 0
			b.logger.Info("circuit breaker: HALF_OPEN → CLOSED (recovery confirmed)")
		}
	case BreakerOpen:
		// Successes are ignored while open.
	}
}

// RecordFailure feeds a failed call into the FSM.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open()
			b.logger.Warn("circuit breaker: CLOSED → OPEN (failure threshold reached)",
				"failures", b.failureCount)
		}
	case BreakerHalfOpen:
		b.open()
		b.logger.Warn("circuit breaker: HALF_OPEN → OPEN (failure during probe)")
	case BreakerOpen:
		// Failures are ignored while open.
	}
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.successCount = 0
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed (manual override).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
	b.successCount = 0
	b.logger.Info("circuit breaker manually reset to CLOSED")
}

// ForceOpen trips the breaker (manual override).
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open()
	b.logger.Warn("circuit breaker manually forced OPEN")
}
