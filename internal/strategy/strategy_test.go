package strategy

import (
	"testing"

	"bog/internal/position"
	"bog/internal/shm"
	"bog/pkg/types"
)

func snap(bid, ask uint64) *shm.MarketSnapshot {
	return &shm.MarketSnapshot{
		Sequence:     1,
		BestBidPrice: bid,
		BestBidSize:  1_000_000_000,
		BestAskPrice: ask,
		BestAskSize:  1_000_000_000,
	}
}

func TestSimpleSpreadQuotesAroundMid(t *testing.T) {
	t.Parallel()

	s := NewSimpleSpread(DefaultSimpleSpreadConfig())
	sig, ok := s.Calculate(snap(50_000_000_000_000, 50_010_000_000_000))
	if !ok {
		t.Fatal("no signal on a fresh book")
	}
	if sig.Kind != types.SignalQuoteBoth {
		t.Fatalf("kind = %v, want QUOTE_BOTH", sig.Kind)
	}

	mid := uint64(50_005_000_000_000)
	if sig.Bid >= mid || sig.Ask <= mid {
		t.Errorf("quotes %d/%d not around mid %d", sig.Bid, sig.Ask, mid)
	}
	if sig.Bid >= sig.Ask {
		t.Error("quoted bid crosses quoted ask")
	}
	if sig.Size != DefaultSimpleSpreadConfig().OrderSize {
		t.Errorf("size = %d", sig.Size)
	}
}

func TestSimpleSpreadChangeDetection(t *testing.T) {
	t.Parallel()

	s := NewSimpleSpread(DefaultSimpleSpreadConfig())
	if _, ok := s.Calculate(snap(50_000_000_000_000, 50_010_000_000_000)); !ok {
		t.Fatal("first tick should signal")
	}
	// Identical top of book: no new signal.
	if _, ok := s.Calculate(snap(50_000_000_000_000, 50_010_000_000_000)); ok {
		t.Error("unchanged book should not re-signal")
	}
	// Moved book signals again.
	if _, ok := s.Calculate(snap(50_001_000_000_000, 50_011_000_000_000)); !ok {
		t.Error("moved book should signal")
	}
}

func TestSimpleSpreadSkipsBadBooks(t *testing.T) {
	t.Parallel()

	s := NewSimpleSpread(DefaultSimpleSpreadConfig())
	if _, ok := s.Calculate(snap(0, 50_010_000_000_000)); ok {
		t.Error("zero bid should not signal")
	}
	if _, ok := s.Calculate(snap(50_020_000_000_000, 50_010_000_000_000)); ok {
		t.Error("crossed book should not signal")
	}
}

func TestSimpleSpreadFeeFloor(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimpleSpreadConfig()
	cfg.SpreadBps = 2 // 200 sub-bps, below the 220 round trip
	s := NewSimpleSpread(cfg)
	if _, ok := s.Calculate(snap(50_000_000_000_000, 50_050_000_000_000)); ok {
		t.Error("spread below round-trip fees should not quote")
	}
}

func TestSpreadCoversFees(t *testing.T) {
	t.Parallel()

	if SpreadCoversFees(2) {
		t.Error("2bps < 2.2bps round trip")
	}
	if !SpreadCoversFees(3) {
		t.Error("3bps > 2.2bps round trip")
	}
}

func TestVolatilityEMA(t *testing.T) {
	t.Parallel()

	v := NewVolatility()
	if v.Observe(50_000_000_000_000) != 0 {
		t.Error("first observation has no change")
	}

	// 1% move = 100bps; EMA steps toward it at alpha 0.1.
	ema := v.Observe(50_500_000_000_000)
	if ema != 10 {
		t.Errorf("EMA after one 100bp move = %d, want 10", ema)
	}
	if v.Samples() != 2 {
		t.Errorf("samples = %d", v.Samples())
	}

	v.Reset()
	if v.EMABps() != 0 || v.Samples() != 0 {
		t.Error("reset failed")
	}
}

func TestInventorySkew(t *testing.T) {
	t.Parallel()

	pos := position.New()
	s := NewInventory(DefaultInventoryConfig())
	s.BindPosition(pos)

	flat, ok := s.Calculate(snap(50_000_000_000_000, 50_010_000_000_000))
	if !ok {
		t.Fatal("flat inventory should quote")
	}

	// Load a long half of MaxInventory and re-quote a moved book: both
	// quotes shift down.
	pos.ProcessFill(types.Buy, 50_000_000_000_000, 500_000_000)
	s2 := NewInventory(DefaultInventoryConfig())
	s2.BindPosition(pos)
	long, ok := s2.Calculate(snap(50_000_000_000_000, 50_010_000_000_000))
	if !ok {
		t.Fatal("long inventory should still quote")
	}
	if long.Bid >= flat.Bid || long.Ask >= flat.Ask {
		t.Errorf("long skew should lower both quotes: flat %d/%d long %d/%d",
			flat.Bid, flat.Ask, long.Bid, long.Ask)
	}
}

func TestInventorySaturationDropsLoadedSide(t *testing.T) {
	t.Parallel()

	cfg := DefaultInventoryConfig()
	pos := position.New()
	pos.ProcessFill(types.Buy, 50_000_000_000_000, cfg.MaxInventory)

	s := NewInventory(cfg)
	s.BindPosition(pos)
	sig, ok := s.Calculate(snap(50_000_000_000_000, 50_010_000_000_000))
	if !ok {
		t.Fatal("saturated inventory should still quote the exit side")
	}
	if sig.Kind != types.SignalQuoteAsk {
		t.Errorf("kind = %v, want QUOTE_ASK only at full long inventory", sig.Kind)
	}
}
