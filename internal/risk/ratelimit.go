package risk

import (
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiterConfig tunes the order-submission token bucket.
type RateLimiterConfig struct {
	// BurstCapacity is the bucket size: the largest burst permitted.
	BurstCapacity uint64
	// RefillRate is how many tokens are added per RefillInterval.
	RefillRate float64
	// RefillInterval is the refill cadence.
	RefillInterval time.Duration
}

// ConservativeRateLimiterConfig returns the production tuning: 10 orders
// per second sustained with a burst of 20.
func ConservativeRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{BurstCapacity: 20, RefillRate: 10, RefillInterval: time.Second}
}

// StandardRateLimiterConfig returns the default tuning.
func StandardRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{BurstCapacity: 100, RefillRate: 100, RefillInterval: time.Second}
}

// RateLimiter is a token bucket sized for the order path: the token count
// lives in a single atomic (stored ×1000 so fractional refill accumulates)
// consumed by a CAS loop, with only the refill timestamp behind a mutex.
// AllowN never blocks.
type RateLimiter struct {
	cfg RateLimiterConfig

	tokens atomic.Uint64 // tokens × 1000

	refillMu   sync.Mutex
	lastRefill time.Time

	totalRequests atomic.Uint64
	totalAllowed  atomic.Uint64
	totalRejected atomic.Uint64
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{cfg: cfg, lastRefill: time.Now()}
	rl.tokens.Store(cfg.BurstCapacity * 1000)
	return rl
}

// Allow consumes one token if available.
func (rl *RateLimiter) Allow() bool { return rl.AllowN(1) }

// AllowN atomically consumes n tokens, or none. Returns false when the
// bucket holds fewer than n.
func (rl *RateLimiter) AllowN(n uint64) bool {
	rl.totalRequests.Add(1)
	rl.refill()

	needed := n * 1000
	for {
		current := rl.tokens.Load()
		if current < needed {
			rl.totalRejected.Add(1)
			return false
		}
		if rl.tokens.CompareAndSwap(current, current-needed) {
			rl.totalAllowed.Add(1)
			return true
		}
	}
}

// refill credits tokens for elapsed whole-or-partial refill intervals,
// capping at the burst capacity.
func (rl *RateLimiter) refill() {
	rl.refillMu.Lock()
	defer rl.refillMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed < rl.cfg.RefillInterval {
		return
	}

	intervals := float64(elapsed) / float64(rl.cfg.RefillInterval)
	add := uint64(intervals * rl.cfg.RefillRate * 1000)
	if add == 0 {
		return
	}
	rl.lastRefill = now

	cap1000 := rl.cfg.BurstCapacity * 1000
	for {
		current := rl.tokens.Load()
		next := current + add
		if next > cap1000 {
			next = cap1000
		}
		if rl.tokens.CompareAndSwap(current, next) {
			return
		}
	}
}

// RateLimiterStats is a point-in-time statistics sample.
type RateLimiterStats struct {
	TotalRequests uint64
	TotalAllowed  uint64
	TotalRejected uint64
	// AcceptanceRate is allowed / requests, 1.0 when no requests yet.
	AcceptanceRate float64
}

// Stats samples the counters.
func (rl *RateLimiter) Stats() RateLimiterStats {
	s := RateLimiterStats{
		TotalRequests: rl.totalRequests.Load(),
		TotalAllowed:  rl.totalAllowed.Load(),
		TotalRejected: rl.totalRejected.Load(),
	}
	if s.TotalRequests > 0 {
		s.AcceptanceRate = float64(s.TotalAllowed) / float64(s.TotalRequests)
	} else {
		s.AcceptanceRate = 1.0
	}
	return s
}

// AvailableTokens returns the current whole-token count (telemetry).
func (rl *RateLimiter) AvailableTokens() uint64 {
	return rl.tokens.Load() / 1000
}
