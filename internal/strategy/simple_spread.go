package strategy

import (
	"bog/internal/shm"
	"bog/pkg/types"
)

// SimpleSpreadConfig tunes the fixed-spread quoter.
type SimpleSpreadConfig struct {
	// SpreadBps is the full quoted spread around mid.
	SpreadBps uint64
	// OrderSize is the quantity per side, 9-dec fixed point.
	OrderSize uint64
	// MinMarketSpreadBps skips quoting when the market spread is already
	// tighter than this (no edge left after fees).
	MinMarketSpreadBps uint64
}

// DefaultSimpleSpreadConfig quotes 20bps wide with 0.01 per side.
func DefaultSimpleSpreadConfig() SimpleSpreadConfig {
	return SimpleSpreadConfig{
		SpreadBps:          20,
		OrderSize:          10_000_000,
		MinMarketSpreadBps: 5,
	}
}

// SimpleSpread quotes both sides a fixed half-spread away from mid.
// It only re-quotes when the top of book moves.
type SimpleSpread struct {
	cfg     SimpleSpreadConfig
	lastBid uint64
	lastAsk uint64
}

// NewSimpleSpread creates the quoter.
func NewSimpleSpread(cfg SimpleSpreadConfig) *SimpleSpread {
	return &SimpleSpread{cfg: cfg}
}

// Calculate quotes mid ± spread/2 when the book moved and the market
// spread clears the configured floor and the fee round trip.
func (s *SimpleSpread) Calculate(snap *shm.MarketSnapshot) (types.Signal, bool) {
	bid, ask := snap.BestBidPrice, snap.BestAskPrice
	if bid == 0 || ask == 0 || ask <= bid {
		return types.Signal{}, false
	}

	if bid == s.lastBid && ask == s.lastAsk {
		return types.Signal{}, false
	}
	s.lastBid, s.lastAsk = bid, ask

	marketSpreadBps := (ask - bid) * 10_000 / bid
	if marketSpreadBps < s.cfg.MinMarketSpreadBps || !SpreadCoversFees(s.cfg.SpreadBps) {
		return types.Signal{}, false
	}

	mid := snap.Mid()
	half := mid * s.cfg.SpreadBps / 20_000 // spread/2 in price units
	if half == 0 {
		return types.Signal{}, false
	}

	return types.QuoteBoth(mid-half, mid+half, s.cfg.OrderSize), true
}

// Name implements Strategy.
func (s *SimpleSpread) Name() string { return "simple_spread" }

// Reset implements Strategy.
func (s *SimpleSpread) Reset() {
	s.lastBid, s.lastAsk = 0, 0
}
