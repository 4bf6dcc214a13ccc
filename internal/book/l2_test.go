package book

import (
	"io"
	"log/slog"
	"testing"

	"bog/internal/shm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fullSnap(seq uint64) *shm.MarketSnapshot {
	s := &shm.MarketSnapshot{
		MarketID:     1,
		Sequence:     seq,
		ExchangeTS:   1_000,
		BestBidPrice: 50_000_000_000_000,
		BestBidSize:  1_000_000_000,
		BestAskPrice: 50_010_000_000_000,
		BestAskSize:  1_000_000_000,
		Flags:        shm.FlagFullSnapshot,
	}
	for i := 0; i < 5; i++ {
		s.BidPrices[i] = s.BestBidPrice - uint64(i)*10_000_000_000
		s.BidSizes[i] = uint64(i+1) * 1_000_000_000
		s.AskPrices[i] = s.BestAskPrice + uint64(i)*10_000_000_000
		s.AskSizes[i] = uint64(i+1) * 1_000_000_000
	}
	return s
}

func incrSnap(seq uint64, bid, ask uint64) *shm.MarketSnapshot {
	return &shm.MarketSnapshot{
		MarketID:     1,
		Sequence:     seq,
		ExchangeTS:   2_000,
		BestBidPrice: bid,
		BestBidSize:  2_000_000_000,
		BestAskPrice: ask,
		BestAskSize:  2_000_000_000,
	}
}

func TestFullRebuild(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	if !b.DepthStale {
		t.Error("new book should start depth-stale")
	}

	b.Sync(fullSnap(1))

	if b.DepthStale {
		t.Error("full rebuild must clear depth_stale")
	}
	if b.LastSequence != 1 || b.LastUpdateNS != 1_000 {
		t.Errorf("sequence/timestamp not updated: seq=%d ts=%d", b.LastSequence, b.LastUpdateNS)
	}
	if b.BidDepth() != 5 || b.AskDepth() != 5 {
		t.Errorf("depth = %d/%d, want 5/5", b.BidDepth(), b.AskDepth())
	}
	if b.BestBidPrice() != 50_000_000_000_000 || b.BestAskPrice() != 50_010_000_000_000 {
		t.Errorf("top of book wrong: %d/%d", b.BestBidPrice(), b.BestAskPrice())
	}
}

// P3: an incremental update with no gap leaves levels 1..D untouched and
// sets level 0 to the snapshot's best fields.
func TestIncrementalPreservesDepth(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1))

	beforeBidPrices := b.BidPrices
	beforeBidSizes := b.BidSizes
	beforeAskPrices := b.AskPrices
	beforeAskSizes := b.AskSizes

	b.Sync(incrSnap(2, 50_001_000_000_000, 50_011_000_000_000))

	if b.DepthStale {
		t.Error("gapless incremental update must not mark depth stale")
	}
	if b.BidPrices[0] != 50_001_000_000_000 || b.AskPrices[0] != 50_011_000_000_000 {
		t.Errorf("level 0 not updated: %d/%d", b.BidPrices[0], b.AskPrices[0])
	}
	for i := 1; i < Depth; i++ {
		if b.BidPrices[i] != beforeBidPrices[i] || b.BidSizes[i] != beforeBidSizes[i] ||
			b.AskPrices[i] != beforeAskPrices[i] || b.AskSizes[i] != beforeAskSizes[i] {
			t.Fatalf("level %d changed across gapless incremental update", i)
		}
	}
}

func TestIncrementalGapClearsDepth(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1))

	// Jump from 1 to 5: gap of 3.
	b.Sync(incrSnap(5, 50_001_000_000_000, 50_011_000_000_000))

	if !b.DepthStale {
		t.Error("incremental update across a gap must mark depth stale")
	}
	for i := 1; i < Depth; i++ {
		if b.BidPrices[i] != 0 || b.AskPrices[i] != 0 {
			t.Fatalf("level %d not cleared after gap", i)
		}
	}
	// Level 0 still tracks the snapshot.
	if b.BidPrices[0] != 50_001_000_000_000 {
		t.Errorf("level 0 = %d, want snapshot best bid", b.BidPrices[0])
	}

	// The next full rebuild restores depth and clears the flag.
	b.Sync(fullSnap(6))
	if b.DepthStale {
		t.Error("full rebuild must clear depth_stale")
	}
}

func TestDefensiveBestPrices(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	s := fullSnap(1)
	// Producer emitted levels out of order: a better bid hides at level 3.
	s.BidPrices[3] = 50_005_000_000_000
	b.Sync(s)

	if got := b.BestBidPrice(); got != 50_005_000_000_000 {
		t.Errorf("BestBidPrice = %d, want the max across levels", got)
	}

	// A lower ask hiding deeper.
	s2 := fullSnap(2)
	s2.AskPrices[4] = 50_002_000_000_000
	b.Sync(s2)
	if got := b.BestAskPrice(); got != 50_002_000_000_000 {
		t.Errorf("BestAskPrice = %d, want the min non-zero across levels", got)
	}
}

func TestMidAndSpread(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	if b.Mid() != 0 {
		t.Error("empty book mid should be 0")
	}
	if b.SpreadBps() != 0 {
		t.Error("empty book spread should be 0")
	}

	b.Sync(fullSnap(1))
	want := uint64(50_005_000_000_000)
	if got := b.Mid(); got != want {
		t.Errorf("Mid = %d, want %d", got, want)
	}
	// 10_000_000_000_000 / 50_000_000_000_000 * 10_000 = 2 bps
	if got := b.SpreadBps(); got != 2 {
		t.Errorf("SpreadBps = %d, want 2", got)
	}
}

func TestImbalance(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	s := fullSnap(1)
	// Bid side three times the ask side over the top two levels.
	s.BidSizes[0], s.BidSizes[1] = 3_000_000_000, 3_000_000_000
	s.AskSizes[0], s.AskSizes[1] = 1_000_000_000, 1_000_000_000
	s.BestBidSize = s.BidSizes[0]
	s.BestAskSize = s.AskSizes[0]
	b.Sync(s)

	// (6 - 2) / 8 = +50
	if got := b.Imbalance(2); got != 50 {
		t.Errorf("Imbalance = %d, want 50", got)
	}

	empty := New(1, testLogger())
	if got := empty.Imbalance(5); got != 0 {
		t.Errorf("empty book imbalance = %d, want 0", got)
	}
}

func TestVWAP(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	s := fullSnap(1)
	// Two bid levels: 100 @ 1.0, 99 @ 3.0 → VWAP 99.25
	s.BidPrices[0], s.BidSizes[0] = 100_000_000_000, 1_000_000_000
	s.BidPrices[1], s.BidSizes[1] = 99_000_000_000, 3_000_000_000
	for i := 2; i < Depth; i++ {
		s.BidPrices[i], s.BidSizes[i] = 0, 0
	}
	s.BestBidPrice, s.BestBidSize = s.BidPrices[0], s.BidSizes[0]
	b.Sync(s)

	got, ok := b.VWAP(Bid, 5)
	if !ok {
		t.Fatal("VWAP returned no liquidity")
	}
	if want := uint64(99_250_000_000); got != want {
		t.Errorf("VWAP = %d, want %d", got, want)
	}

	if _, ok := New(1, testLogger()).VWAP(Ask, 5); ok {
		t.Error("VWAP on empty side should report no liquidity")
	}
}

func TestTotalLiquidity(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1))

	// Sizes 1+2+3 = 6.0 over the top three bid levels.
	if got := b.TotalLiquidity(Bid, 3); got != 6_000_000_000 {
		t.Errorf("TotalLiquidity = %d, want 6000000000", got)
	}
}

func TestLiquidityWithinBps(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1))

	// Mid ≈ 50_005e9; 10bps ≈ 50e9 price units: only the top few levels
	// (10e9 apart) fall inside the band.
	bidLiq, askLiq := b.LiquidityWithinBps(10)
	if bidLiq == 0 || askLiq == 0 {
		t.Errorf("liquidity within 10bps = %d/%d, want both nonzero", bidLiq, askLiq)
	}

	// A zero-bps band around mid excludes both sides.
	bidLiq, askLiq = b.LiquidityWithinBps(0)
	if bidLiq != 0 || askLiq != 0 {
		t.Errorf("liquidity within 0bps = %d/%d, want 0/0", bidLiq, askLiq)
	}
}

func TestQueuePosition(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1))

	pos, ok := b.QueuePositionAt(Bid, b.BidPrices[2])
	if !ok {
		t.Fatal("queue position not found for visible level")
	}
	if pos.Level != 2 || pos.PositionRatio != 1.0 || pos.SizeAhead != b.BidSizes[2] {
		t.Errorf("queue position = %+v", pos)
	}

	if _, ok := b.QueuePositionAt(Ask, 123); ok {
		t.Error("queue position for unseen price should not resolve")
	}
}

func TestStateChecks(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1))
	if b.IsCrossed() || b.IsLocked() || !b.IsValid() {
		t.Error("normal book misclassified")
	}

	crossed := New(1, testLogger())
	s := fullSnap(1)
	s.BestBidPrice = s.BestAskPrice + 1
	for i := range s.BidPrices {
		s.BidPrices[i] = 0
	}
	crossed.Sync(s)
	if !crossed.IsCrossed() || crossed.IsValid() {
		t.Error("crossed book not detected")
	}
}

func TestAgeNS(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	b.Sync(fullSnap(1)) // LastUpdateNS = 1000

	if got := b.AgeNS(5_000); got != 4_000 {
		t.Errorf("AgeNS = %d, want 4000", got)
	}
	if got := b.AgeNS(500); got != 0 {
		t.Errorf("AgeNS under clock skew = %d, want 0", got)
	}
}

func TestCheckSequenceGap(t *testing.T) {
	t.Parallel()

	b := New(1, testLogger())
	if _, ok := b.CheckSequenceGap(100); ok {
		t.Error("first update must not gap")
	}

	b.Sync(fullSnap(10))
	if gap, ok := b.CheckSequenceGap(11); ok || gap != 0 {
		t.Error("consecutive sequence reported as gap")
	}
	gap, ok := b.CheckSequenceGap(15)
	if !ok || gap != 4 {
		t.Errorf("gap = %d, %v; want 4, true", gap, ok)
	}
}
