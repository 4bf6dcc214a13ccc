package data

import (
	"time"

	"bog/internal/shm"
)

// SnapshotBuilder constructs MarketSnapshots with sensible defaults.
// Used by tests, the feed simulator, and recovery tooling; all depth arrays
// are sized by shm.Depth so nothing is hardcoded.
type SnapshotBuilder struct {
	snap shm.MarketSnapshot
}

// NewSnapshotBuilder returns a builder primed with a 10bps-spread book at
// $100 and the current timestamps, marked incremental.
func NewSnapshotBuilder() *SnapshotBuilder {
	now := uint64(time.Now().UnixNano())
	return &SnapshotBuilder{snap: shm.MarketSnapshot{
		MarketID:     1000001,
		Sequence:     1,
		ExchangeTS:   now,
		LocalRecvTS:  now,
		BestBidPrice: 100_000_000_000, // $100
		BestBidSize:  1_000_000_000,   // 1.0
		BestAskPrice: 100_100_000_000, // $100.10
		BestAskSize:  1_000_000_000,
		DexType:      1,
	}}
}

// MarketID sets the market identifier.
func (b *SnapshotBuilder) MarketID(id uint64) *SnapshotBuilder {
	b.snap.MarketID = id
	return b
}

// Sequence sets the sequence number.
func (b *SnapshotBuilder) Sequence(seq uint64) *SnapshotBuilder {
	b.snap.Sequence = seq
	return b
}

// BestBid sets the top-of-book bid.
func (b *SnapshotBuilder) BestBid(price, size uint64) *SnapshotBuilder {
	b.snap.BestBidPrice = price
	b.snap.BestBidSize = size
	return b
}

// BestAsk sets the top-of-book ask.
func (b *SnapshotBuilder) BestAsk(price, size uint64) *SnapshotBuilder {
	b.snap.BestAskPrice = price
	b.snap.BestAskSize = size
	return b
}

// Timestamp sets every timestamp field to the same value.
func (b *SnapshotBuilder) Timestamp(ns uint64) *SnapshotBuilder {
	b.snap.ExchangeTS = ns
	b.snap.LocalRecvTS = ns
	b.snap.LocalPublishTS = ns
	return b
}

// Full marks this as a full snapshot.
func (b *SnapshotBuilder) Full() *SnapshotBuilder {
	b.snap.Flags |= shm.FlagFullSnapshot
	return b
}

// Incremental clears the full-snapshot flag.
func (b *SnapshotBuilder) Incremental() *SnapshotBuilder {
	b.snap.Flags &^= shm.FlagFullSnapshot
	return b
}

// Depth fills the depth arrays from slices (best first) and marks the
// snapshot full. Level 0 of each side is forced to mirror the top-of-book
// fields the way the producer guarantees.
func (b *SnapshotBuilder) Depth(bidPrices, bidSizes, askPrices, askSizes []uint64) *SnapshotBuilder {
	for i := 0; i < shm.Depth; i++ {
		b.snap.BidPrices[i], b.snap.BidSizes[i] = 0, 0
		b.snap.AskPrices[i], b.snap.AskSizes[i] = 0, 0
	}
	for i, p := range bidPrices {
		if i >= shm.Depth {
			break
		}
		b.snap.BidPrices[i] = p
		b.snap.BidSizes[i] = bidSizes[i]
	}
	for i, p := range askPrices {
		if i >= shm.Depth {
			break
		}
		b.snap.AskPrices[i] = p
		b.snap.AskSizes[i] = askSizes[i]
	}
	if len(bidPrices) > 0 {
		b.snap.BestBidPrice = bidPrices[0]
		b.snap.BestBidSize = bidSizes[0]
	}
	if len(askPrices) > 0 {
		b.snap.BestAskPrice = askPrices[0]
		b.snap.BestAskSize = askSizes[0]
	}
	return b.Full()
}

// TopDepth mirrors the top-of-book into level 0 of the depth arrays and
// marks the snapshot full. Convenience for single-level full snapshots.
func (b *SnapshotBuilder) TopDepth() *SnapshotBuilder {
	b.snap.BidPrices[0] = b.snap.BestBidPrice
	b.snap.BidSizes[0] = b.snap.BestBidSize
	b.snap.AskPrices[0] = b.snap.BestAskPrice
	b.snap.AskSizes[0] = b.snap.BestAskSize
	return b.Full()
}

// Build returns the snapshot by value.
func (b *SnapshotBuilder) Build() shm.MarketSnapshot {
	return b.snap
}
