package data

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func validSnapshot(seq uint64) *SnapshotBuilder {
	return NewSnapshotBuilder().
		Sequence(seq).
		BestBid(50_000_000_000_000, 1_000_000_000).
		BestAsk(50_010_000_000_000, 1_000_000_000)
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	snap := validSnapshot(1).TopDepth().Build()
	if err := v.Validate(&snap); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}
	if !v.IsValid(&snap) {
		t.Error("IsValid disagrees with Validate")
	}
	if v.SnapshotCount() != 2 {
		t.Errorf("SnapshotCount = %d, want 2", v.SnapshotCount())
	}
}

func TestValidateBasicChecks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		build func() *SnapshotBuilder
		want  error
	}{
		{"zero_sequence", func() *SnapshotBuilder {
			return validSnapshot(0)
		}, ErrZeroSequence{}},
		{"zero_bid", func() *SnapshotBuilder {
			return validSnapshot(1).BestBid(0, 1_000_000_000)
		}, ErrZeroBidPrice{}},
		{"zero_ask", func() *SnapshotBuilder {
			return validSnapshot(1).BestAsk(0, 1_000_000_000)
		}, ErrZeroAskPrice{}},
		{"crossed", func() *SnapshotBuilder {
			return validSnapshot(1).
				BestBid(50_020_000_000_000, 1_000_000_000).
				BestAsk(50_010_000_000_000, 1_000_000_000)
		}, ErrCrossed{}},
		{"locked", func() *SnapshotBuilder {
			return validSnapshot(1).
				BestBid(50_000_000_000_000, 1_000_000_000).
				BestAsk(50_000_000_000_000, 1_000_000_000)
		}, ErrLocked{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValidator()
			snap := tc.build().Build()
			err := v.Validate(&snap)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if reflect.TypeOf(err) != reflect.TypeOf(tc.want) {
				t.Errorf("error = %v (%T), want %T", err, err, tc.want)
			}
		})
	}
}

func TestValidateAllowLocked(t *testing.T) {
	t.Parallel()

	cfg := DefaultValidationConfig()
	cfg.AllowLocked = true
	cfg.MinSpreadBps = 0
	v := NewValidatorWithConfig(cfg)

	snap := validSnapshot(1).
		BestBid(50_000_000_000_000, 1_000_000_000).
		BestAsk(50_000_000_000_000, 1_000_000_000).
		Build()
	if err := v.Validate(&snap); err != nil {
		t.Errorf("locked book rejected with AllowLocked: %v", err)
	}
}

func TestValidateTimestamps(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	future := validSnapshot(1).
		Timestamp(uint64(time.Now().Add(time.Hour).UnixNano())).Build()
	var wantFuture ErrFutureTimestamp
	if err := v.Validate(&future); !errors.As(err, &wantFuture) {
		t.Errorf("future timestamp: error = %v, want ErrFutureTimestamp", err)
	}

	stale := validSnapshot(1).
		Timestamp(uint64(time.Now().Add(-time.Minute).UnixNano())).Build()
	var wantStale ErrStaleData
	if err := v.Validate(&stale); !errors.As(err, &wantStale) {
		t.Errorf("stale timestamp: error = %v, want ErrStaleData", err)
	}
}

func TestValidateSpreadBounds(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	// 5% spread at default 10% max passes; 11% fails.
	wide := validSnapshot(1).
		BestBid(50_000_000_000_000, 1_000_000_000).
		BestAsk(55_500_000_000_000, 1_000_000_000).Build()
	var wantWide ErrSpreadTooWide
	if err := v.Validate(&wide); !errors.As(err, &wantWide) {
		t.Errorf("11%% spread: error = %v, want ErrSpreadTooWide", err)
	}
}

func TestAdaptivePriceSpikeThreshold(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	// First snapshot establishes the mid.
	first := validSnapshot(1).Build()
	if err := v.Validate(&first); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}

	// Within the first ten snapshots the threshold is doubled (2×500bps):
	// an 8% jump passes.
	jump8 := validSnapshot(2).
		BestBid(54_000_000_000_000, 1_000_000_000).
		BestAsk(54_010_000_000_000, 1_000_000_000).Build()
	if err := v.Validate(&jump8); err != nil {
		t.Errorf("8%% move during warmup rejected: %v", err)
	}

	// An 11% jump exceeds even the doubled threshold.
	jump11 := validSnapshot(3).
		BestBid(60_000_000_000_000, 1_000_000_000).
		BestAsk(60_010_000_000_000, 1_000_000_000).Build()
	var wantSpike ErrPriceSpike
	if err := v.Validate(&jump11); !errors.As(err, &wantSpike) {
		t.Errorf("11%% move: error = %v, want ErrPriceSpike", err)
	}
}

func TestPostWarmupSpikeThreshold(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	// Warm up past ten snapshots with a steady book.
	for seq := uint64(1); seq <= 12; seq++ {
		snap := validSnapshot(seq).Build()
		if err := v.Validate(&snap); err != nil {
			t.Fatalf("warmup seq %d: %v", seq, err)
		}
	}

	// Now the configured 5% bound applies: a 6% move is rejected.
	jump := validSnapshot(13).
		BestBid(53_000_000_000_000, 1_000_000_000).
		BestAsk(53_010_000_000_000, 1_000_000_000).Build()
	var wantSpike ErrPriceSpike
	if err := v.Validate(&jump); !errors.As(err, &wantSpike) {
		t.Errorf("6%% move after warmup: error = %v, want ErrPriceSpike", err)
	}
}

func TestValidateLiquidity(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	thin := validSnapshot(1).
		BestBid(50_000_000_000_000, 1_000_000).
		BestAsk(50_010_000_000_000, 1_000_000).Build()
	var want ErrLowLiquidity
	if err := v.Validate(&thin); !errors.As(err, &want) {
		t.Errorf("thin book: error = %v, want ErrLowLiquidity", err)
	}
}

// P2: depth monotonicity is enforced only on full snapshots.
func TestValidateDepthMonotonicity(t *testing.T) {
	t.Parallel()

	bidP := []uint64{50_000_000_000_000, 49_990_000_000_000, 49_980_000_000_000}
	bidS := []uint64{1_000_000_000, 1_000_000_000, 1_000_000_000}
	askP := []uint64{50_010_000_000_000, 50_020_000_000_000, 50_030_000_000_000}
	askS := []uint64{1_000_000_000, 1_000_000_000, 1_000_000_000}

	v := NewValidator()
	good := validSnapshot(1).Depth(bidP, bidS, askP, askS).Build()
	if err := v.Validate(&good); err != nil {
		t.Fatalf("monotonic depth rejected: %v", err)
	}

	// Out-of-order bid level.
	badBidP := []uint64{50_000_000_000_000, 50_005_000_000_000}
	badBidS := []uint64{1_000_000_000, 1_000_000_000}
	bad := validSnapshot(2).Depth(badBidP, badBidS, askP, askS).Build()
	var want ErrInvalidDepthLevel
	if err := NewValidator().Validate(&bad); !errors.As(err, &want) {
		t.Errorf("non-monotonic bids: error = %v, want ErrInvalidDepthLevel", err)
	}

	// The same broken arrays on an incremental snapshot pass: only
	// top-of-book is authoritative there.
	incr := validSnapshot(3).Depth(badBidP, badBidS, askP, askS).Incremental().Build()
	if err := NewValidator().Validate(&incr); err != nil {
		t.Errorf("incremental snapshot with stale depth rejected: %v", err)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	snap := validSnapshot(1).Build()
	if err := v.Validate(&snap); err != nil {
		t.Fatal(err)
	}

	v.Reset()
	if v.SnapshotCount() != 0 || v.VolatilityBps() != 0 {
		t.Error("Reset did not clear adaptive state")
	}
}
