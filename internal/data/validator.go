// Package data provides snapshot validation and construction.
//
// Validator is the single validation point for every snapshot entering the
// tick pipeline: basic sanity, timestamps, book integrity, spread bounds,
// adaptive price-spike detection, liquidity, and (on full snapshots only)
// depth monotonicity.
package data

import (
	"fmt"
	"time"

	"bog/internal/shm"
)

// ————————————————————————————————————————————————————————————————————————
// Validation errors
// ————————————————————————————————————————————————————————————————————————

type ErrZeroSequence struct{}

func (ErrZeroSequence) Error() string { return "sequence number is zero" }

type ErrZeroBidPrice struct{}

func (ErrZeroBidPrice) Error() string { return "bid price is zero" }

type ErrZeroAskPrice struct{}

func (ErrZeroAskPrice) Error() string { return "ask price is zero" }

type ErrCrossed struct {
	Bid, Ask uint64
}

func (e ErrCrossed) Error() string {
	return fmt.Sprintf("orderbook crossed: bid=%d > ask=%d", e.Bid, e.Ask)
}

type ErrLocked struct {
	Price uint64
}

func (e ErrLocked) Error() string {
	return fmt.Sprintf("orderbook locked at price=%d", e.Price)
}

type ErrSpreadTooWide struct {
	SpreadBps, MaxBps uint64
}

func (e ErrSpreadTooWide) Error() string {
	return fmt.Sprintf("spread too wide: %dbps (max: %dbps)", e.SpreadBps, e.MaxBps)
}

type ErrSpreadTooNarrow struct {
	SpreadBps, MinBps uint64
}

func (e ErrSpreadTooNarrow) Error() string {
	return fmt.Sprintf("spread too narrow: %dbps (min: %dbps, possible data error)", e.SpreadBps, e.MinBps)
}

type ErrStaleData struct {
	AgeNS, MaxAgeNS uint64
}

func (e ErrStaleData) Error() string {
	return fmt.Sprintf("stale data: age=%dms > max=%dms", e.AgeNS/1e6, e.MaxAgeNS/1e6)
}

type ErrFutureTimestamp struct {
	TimestampNS, NowNS uint64
}

func (e ErrFutureTimestamp) Error() string {
	return fmt.Sprintf("future timestamp: %d > %d (clock skew)", e.TimestampNS, e.NowNS)
}

type ErrInvalidDepthLevel struct {
	Level  int
	Reason string
}

func (e ErrInvalidDepthLevel) Error() string {
	return fmt.Sprintf("invalid depth level %d: %s", e.Level, e.Reason)
}

type ErrPriceSpike struct {
	ChangeBps, MaxBps uint64
}

func (e ErrPriceSpike) Error() string {
	return fmt.Sprintf("price spike: %dbps > max %dbps", e.ChangeBps, e.MaxBps)
}

type ErrLowLiquidity struct {
	TotalBidSize, TotalAskSize, MinSize uint64
}

func (e ErrLowLiquidity) Error() string {
	return fmt.Sprintf("low liquidity: bid=%d, ask=%d (min=%d)", e.TotalBidSize, e.TotalAskSize, e.MinSize)
}

type ErrInvalidPrice struct{}

func (ErrInvalidPrice) Error() string { return "invalid price (zero or corrupt)" }

// ————————————————————————————————————————————————————————————————————————
// Validator
// ————————————————————————————————————————————————————————————————————————

// ValidationConfig enumerates every validator threshold.
type ValidationConfig struct {
	// MaxAgeNS is the maximum snapshot age in nanoseconds.
	MaxAgeNS uint64
	// MaxSpreadBps is the widest acceptable spread (1% = 100bps).
	MaxSpreadBps uint64
	// MinSpreadBps flags suspiciously tight spreads as data errors.
	MinSpreadBps uint64
	// MaxPriceChangeBps bounds mid movement between snapshots.
	MaxPriceChangeBps uint64
	// MinTotalLiquidity is the minimum aggregated size per side.
	MinTotalLiquidity uint64
	// ValidateDepth enables depth monotonicity checks on full snapshots.
	ValidateDepth bool
	// AllowLocked permits bid == ask.
	AllowLocked bool
}

// DefaultValidationConfig returns the production thresholds.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxAgeNS:          5_000_000_000, // 5 seconds
		MaxSpreadBps:      1000,          // 10%
		MinSpreadBps:      1,             // 1bp
		MaxPriceChangeBps: 500,           // 5% per snapshot
		MinTotalLiquidity: 100_000_000,   // 0.1 units
		ValidateDepth:     true,
		AllowLocked:       false,
	}
}

// Validator validates snapshots and tracks the state behind its adaptive
// price-spike threshold: an EMA of absolute mid changes and a snapshot
// counter. Owned by the engine thread; not concurrency safe.
type Validator struct {
	cfg           ValidationConfig
	lastMid       uint64
	snapshotCount uint64
	volatilityBps uint64 // EMA of per-snapshot mid change, alpha = 0.1
	now           func() uint64
}

// NewValidator creates a validator with the default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidationConfig())
}

// NewValidatorWithConfig creates a validator with explicit thresholds.
func NewValidatorWithConfig(cfg ValidationConfig) *Validator {
	return &Validator{
		cfg: cfg,
		now: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// Reset clears the adaptive state (last mid, counter, volatility EMA).
func (v *Validator) Reset() {
	v.lastMid = 0
	v.snapshotCount = 0
	v.volatilityBps = 0
}

// IsValid is the boolean form of Validate.
func (v *Validator) IsValid(s *shm.MarketSnapshot) bool {
	return v.Validate(s) == nil
}

// Validate runs every check in order and returns the first failure.
// On success it updates the adaptive tracking state.
func (v *Validator) Validate(s *shm.MarketSnapshot) error {
	if err := v.validateBasic(s); err != nil {
		return err
	}
	if err := v.validateTimestamp(s); err != nil {
		return err
	}
	if err := v.validateBook(s); err != nil {
		return err
	}
	if err := v.validateSpread(s); err != nil {
		return err
	}
	if err := v.validatePriceChange(s); err != nil {
		return err
	}
	if err := v.validateLiquidity(s); err != nil {
		return err
	}
	// Depth monotonicity only applies to full snapshots: incremental
	// snapshots carry stale depth from the previous full one.
	if v.cfg.ValidateDepth && s.IsFullSnapshot() {
		if err := v.validateDepth(s); err != nil {
			return err
		}
	}

	mid := s.Mid()
	if v.lastMid != 0 {
		change := absDiff(mid, v.lastMid)
		changeBps := change * 10_000 / v.lastMid
		v.volatilityBps = (v.volatilityBps*9 + changeBps) / 10
	}
	v.lastMid = mid
	v.snapshotCount++

	return nil
}

func (v *Validator) validateBasic(s *shm.MarketSnapshot) error {
	if s.Sequence == 0 {
		return ErrZeroSequence{}
	}
	if s.BestBidPrice == 0 {
		return ErrZeroBidPrice{}
	}
	if s.BestAskPrice == 0 {
		return ErrZeroAskPrice{}
	}
	return nil
}

func (v *Validator) validateTimestamp(s *shm.MarketSnapshot) error {
	now := v.now()
	if s.ExchangeTS > now {
		return ErrFutureTimestamp{TimestampNS: s.ExchangeTS, NowNS: now}
	}
	if age := now - s.ExchangeTS; age > v.cfg.MaxAgeNS {
		return ErrStaleData{AgeNS: age, MaxAgeNS: v.cfg.MaxAgeNS}
	}
	return nil
}

func (v *Validator) validateBook(s *shm.MarketSnapshot) error {
	if s.BestBidPrice > s.BestAskPrice {
		return ErrCrossed{Bid: s.BestBidPrice, Ask: s.BestAskPrice}
	}
	if !v.cfg.AllowLocked && s.BestBidPrice == s.BestAskPrice {
		return ErrLocked{Price: s.BestBidPrice}
	}
	return nil
}

func (v *Validator) validateSpread(s *shm.MarketSnapshot) error {
	if s.BestBidPrice == 0 {
		return ErrInvalidPrice{}
	}
	spreadBps := (s.BestAskPrice - s.BestBidPrice) * 10_000 / s.BestBidPrice
	if spreadBps > v.cfg.MaxSpreadBps {
		return ErrSpreadTooWide{SpreadBps: spreadBps, MaxBps: v.cfg.MaxSpreadBps}
	}
	if spreadBps < v.cfg.MinSpreadBps {
		return ErrSpreadTooNarrow{SpreadBps: spreadBps, MinBps: v.cfg.MinSpreadBps}
	}
	return nil
}

// validatePriceChange applies the adaptive spike threshold: 2× during the
// first ten snapshots, 1.5× in high-volatility regimes, configured value
// otherwise.
func (v *Validator) validatePriceChange(s *shm.MarketSnapshot) error {
	if v.lastMid == 0 {
		return nil
	}
	mid := s.Mid()
	changeBps := absDiff(mid, v.lastMid) * 10_000 / v.lastMid

	maxBps := v.cfg.MaxPriceChangeBps
	switch {
	case v.snapshotCount < 10:
		maxBps *= 2
	case v.volatilityBps > 200:
		maxBps = maxBps * 3 / 2
	}

	if changeBps > maxBps {
		return ErrPriceSpike{ChangeBps: changeBps, MaxBps: maxBps}
	}
	return nil
}

func (v *Validator) validateLiquidity(s *shm.MarketSnapshot) error {
	totalBid := s.BestBidSize
	for _, size := range s.BidSizes {
		totalBid += size
	}
	totalAsk := s.BestAskSize
	for _, size := range s.AskSizes {
		totalAsk += size
	}
	if totalBid < v.cfg.MinTotalLiquidity || totalAsk < v.cfg.MinTotalLiquidity {
		return ErrLowLiquidity{
			TotalBidSize: totalBid,
			TotalAskSize: totalAsk,
			MinSize:      v.cfg.MinTotalLiquidity,
		}
	}
	return nil
}

// validateDepth enforces strictly descending bids and strictly ascending
// asks among non-zero entries, anchored at the top-of-book fields.
func (v *Validator) validateDepth(s *shm.MarketSnapshot) error {
	lastBid := s.BestBidPrice
	for i := 0; i < shm.Depth; i++ {
		price, size := s.BidPrices[i], s.BidSizes[i]
		if price == 0 && size == 0 {
			continue
		}
		if i == 0 && price == lastBid {
			// Level 0 mirrors the top-of-book fields.
			continue
		}
		if price >= lastBid {
			return ErrInvalidDepthLevel{Level: i + 1,
				Reason: fmt.Sprintf("bid price %d must be < previous %d", price, lastBid)}
		}
		if size == 0 {
			return ErrInvalidDepthLevel{Level: i + 1, Reason: "size is zero but price is set"}
		}
		lastBid = price
	}

	lastAsk := s.BestAskPrice
	for i := 0; i < shm.Depth; i++ {
		price, size := s.AskPrices[i], s.AskSizes[i]
		if price == 0 && size == 0 {
			continue
		}
		if i == 0 && price == lastAsk {
			continue
		}
		if price <= lastAsk {
			return ErrInvalidDepthLevel{Level: i + 1,
				Reason: fmt.Sprintf("ask price %d must be > previous %d", price, lastAsk)}
		}
		if size == 0 {
			return ErrInvalidDepthLevel{Level: i + 1, Reason: "size is zero but price is set"}
		}
		lastAsk = price
	}

	return nil
}

// SnapshotCount returns the number of snapshots validated since creation or
// the last Reset.
func (v *Validator) SnapshotCount() uint64 { return v.snapshotCount }

// VolatilityBps returns the current volatility EMA in basis points.
func (v *Validator) VolatilityBps() uint64 { return v.volatilityBps }

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
