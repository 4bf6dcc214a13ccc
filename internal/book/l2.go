// Package book maintains the L2 orderbook for one market, rebuilt or
// patched from each shared-memory snapshot.
//
// Two update paths exist: a full rebuild (snapshot depth arrays replace all
// levels) and an incremental update (only level 0 changes). When an
// incremental update arrives across a sequence gap, the deeper levels are
// cleared and flagged stale so no strategy quotes against phantom depth.
//
// The book is owned by the engine thread; there is no concurrent mutator.
package book

import (
	"log/slog"
	"math/bits"

	"bog/internal/shm"
)

// Depth is the number of price levels tracked per side.
const Depth = shm.Depth

// QueuePosition estimates where a resting order sits at a price level,
// assuming FIFO and joining at the back.
type QueuePosition struct {
	Level         int
	SizeAhead     uint64
	TotalSize     uint64
	PositionRatio float64 // 0.0 = front of queue, 1.0 = back
}

// L2Book stores full market depth in parallel fixed-size arrays.
// Bid side is descending, ask side ascending; a zero price terminates a
// side. All prices and sizes are 9-decimal fixed point.
type L2Book struct {
	MarketID uint64

	BidPrices [Depth]uint64
	BidSizes  [Depth]uint64
	AskPrices [Depth]uint64
	AskSizes  [Depth]uint64

	LastSequence uint64
	LastUpdateNS uint64

	// DepthStale is set when levels 1..Depth-1 may no longer reflect the
	// market (incremental update across a gap). Cleared by a full rebuild.
	DepthStale bool

	logger *slog.Logger
}

// New creates an empty book. Depth starts stale until the first full
// snapshot arrives.
func New(marketID uint64, logger *slog.Logger) *L2Book {
	return &L2Book{
		MarketID:   marketID,
		DepthStale: true,
		logger:     logger.With("component", "book", "market", marketID),
	}
}

// Sync applies a snapshot, choosing the full-rebuild or incremental path by
// the snapshot's flag. No validation happens here — the validator and
// circuit breaker run earlier in the pipeline.
func (b *L2Book) Sync(s *shm.MarketSnapshot) {
	if s.IsFullSnapshot() {
		b.FullRebuild(s)
	} else {
		b.IncrementalUpdate(s)
	}
}

// FullRebuild replaces every level from the snapshot's depth arrays.
// Level 0 is anchored to the dedicated top-of-book fields, which the
// producer keeps consistent with the arrays.
func (b *L2Book) FullRebuild(s *shm.MarketSnapshot) {
	b.BidPrices = s.BidPrices
	b.BidSizes = s.BidSizes
	b.AskPrices = s.AskPrices
	b.AskSizes = s.AskSizes

	b.BidPrices[0] = s.BestBidPrice
	b.BidSizes[0] = s.BestBidSize
	b.AskPrices[0] = s.BestAskPrice
	b.AskSizes[0] = s.BestAskSize

	b.LastSequence = s.Sequence
	b.LastUpdateNS = s.ExchangeTS
	b.DepthStale = false
}

// IncrementalUpdate patches level 0 from the snapshot's best fields,
// preserving deeper levels. A detected sequence gap means updates to levels
// 1..Depth-1 may have been missed: those levels are cleared and the book is
// flagged stale until the next full rebuild.
func (b *L2Book) IncrementalUpdate(s *shm.MarketSnapshot) {
	if gap, ok := b.CheckSequenceGap(s.Sequence); ok && gap >= 1 {
		b.logger.Warn("sequence gap in incremental update, clearing depth",
			"last_sequence", b.LastSequence, "sequence", s.Sequence, "gap", gap)
		for i := 1; i < Depth; i++ {
			b.BidPrices[i], b.BidSizes[i] = 0, 0
			b.AskPrices[i], b.AskSizes[i] = 0, 0
		}
		b.DepthStale = true
	}

	b.BidPrices[0] = s.BestBidPrice
	b.BidSizes[0] = s.BestBidSize
	b.AskPrices[0] = s.BestAskPrice
	b.AskSizes[0] = s.BestAskSize

	b.LastSequence = s.Sequence
	b.LastUpdateNS = s.ExchangeTS
}

// CheckSequenceGap reports the gap size if newSequence skips ahead of the
// expected next sequence. The first update never gaps.
func (b *L2Book) CheckSequenceGap(newSequence uint64) (uint64, bool) {
	if b.LastSequence == 0 {
		return 0, false
	}
	expected := b.LastSequence + 1
	if newSequence > expected {
		return newSequence - expected, true
	}
	return 0, false
}

// BestBidPrice returns the best bid, computed defensively as the max across
// levels to tolerate producers that emit levels out of order.
func (b *L2Book) BestBidPrice() uint64 {
	best := b.BidPrices[0]
	for _, p := range b.BidPrices[1:] {
		if p > best {
			best = p
		}
	}
	return best
}

// BestAskPrice returns the best ask: the min across non-zero levels.
func (b *L2Book) BestAskPrice() uint64 {
	best := b.AskPrices[0]
	for _, p := range b.AskPrices[1:] {
		if p > 0 && (best == 0 || p < best) {
			best = p
		}
	}
	return best
}

// BestBidSize returns the size at bid level 0.
func (b *L2Book) BestBidSize() uint64 { return b.BidSizes[0] }

// BestAskSize returns the size at ask level 0.
func (b *L2Book) BestAskSize() uint64 { return b.AskSizes[0] }

// Mid returns the overflow-safe midpoint, or 0 when a side is empty.
func (b *L2Book) Mid() uint64 {
	bid, ask := b.BestBidPrice(), b.BestAskPrice()
	if bid == 0 || ask == 0 {
		return 0
	}
	return bid/2 + ask/2 + (bid%2+ask%2)/2
}

// SpreadBps returns the spread in basis points relative to the bid, or 0
// when the bid is zero or the book is crossed.
func (b *L2Book) SpreadBps() uint64 {
	bid, ask := b.BestBidPrice(), b.BestAskPrice()
	if bid == 0 || ask <= bid {
		return 0
	}
	return (ask - bid) * 10_000 / bid
}

// Imbalance returns signed buy-vs-sell pressure in [-100, +100] over the
// top levels levels: +100 is all bid size, -100 all ask size, 0 balanced.
func (b *L2Book) Imbalance(levels int) int64 {
	levels = clampLevels(levels)

	var bidVol, askVol uint64
	for i := 0; i < levels; i++ {
		if b.BidSizes[i] == 0 {
			break
		}
		bidVol += b.BidSizes[i]
	}
	for i := 0; i < levels; i++ {
		if b.AskSizes[i] == 0 {
			break
		}
		askVol += b.AskSizes[i]
	}

	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (int64(bidVol) - int64(askVol)) * 100 / int64(total)
}

// VWAP returns the volume-weighted average price over the top levels on one
// side, or false when that side has no liquidity. Accumulation happens in
// 128-bit precision: price×size carries 18 decimals.
func (b *L2Book) VWAP(side Side, levels int) (uint64, bool) {
	levels = clampLevels(levels)
	prices, sizes := b.side(side)

	var totalValueHi, totalValueLo, totalSize uint64
	for i := 0; i < levels; i++ {
		if sizes[i] == 0 {
			break
		}
		hi, lo := bits.Mul64(prices[i], sizes[i])
		var carry uint64
		totalValueLo, carry = bits.Add64(totalValueLo, lo, 0)
		totalValueHi += hi + carry
		totalSize += sizes[i]
	}
	if totalSize == 0 {
		return 0, false
	}
	// price×size carries 18 decimals, size 9: the quotient is a 9-decimal
	// price and always fits 64 bits, so Div64 cannot panic here.
	q, _ := bits.Div64(totalValueHi, totalValueLo, totalSize)
	return q, true
}

// TotalLiquidity sums the sizes over the top levels on one side.
func (b *L2Book) TotalLiquidity(side Side, levels int) uint64 {
	levels = clampLevels(levels)
	_, sizes := b.side(side)

	var total uint64
	for i := 0; i < levels; i++ {
		total += sizes[i]
	}
	return total
}

// LiquidityWithinBps returns (bid, ask) size resting within bps of mid.
func (b *L2Book) LiquidityWithinBps(bps uint64) (uint64, uint64) {
	mid := b.Mid()
	if mid == 0 {
		return 0, 0
	}

	distance := mid * bps / 10_000
	bidThreshold := mid - min64(mid, distance)
	askThreshold := mid + distance

	var bidLiq uint64
	for i := 0; i < Depth; i++ {
		if b.BidPrices[i] < bidThreshold {
			break // sorted descending, nothing closer follows
		}
		bidLiq += b.BidSizes[i]
	}

	var askLiq uint64
	for i := 0; i < Depth; i++ {
		if b.AskPrices[i] == 0 || b.AskPrices[i] > askThreshold {
			break
		}
		askLiq += b.AskSizes[i]
	}

	return bidLiq, askLiq
}

// QueuePositionAt estimates our queue position for an order at price,
// assuming a FIFO book and a join at the back of the level. Returns false
// when the price is not in visible depth.
func (b *L2Book) QueuePositionAt(side Side, price uint64) (QueuePosition, bool) {
	prices, sizes := b.side(side)
	for i := 0; i < Depth; i++ {
		if prices[i] == price {
			return QueuePosition{
				Level:         i,
				SizeAhead:     sizes[i],
				TotalSize:     sizes[i],
				PositionRatio: 1.0,
			}, true
		}
	}
	return QueuePosition{}, false
}

// IsCrossed reports bid >= ask, an invalid state.
func (b *L2Book) IsCrossed() bool {
	bid, ask := b.BestBidPrice(), b.BestAskPrice()
	return bid > 0 && ask > 0 && bid >= ask
}

// IsLocked reports bid == ask, rare but valid on some venues.
func (b *L2Book) IsLocked() bool {
	bid, ask := b.BestBidPrice(), b.BestAskPrice()
	return bid > 0 && bid == ask
}

// IsValid reports whether both sides exist with size and are not crossed.
func (b *L2Book) IsValid() bool {
	bid, ask := b.BestBidPrice(), b.BestAskPrice()
	return bid > 0 && ask > 0 && b.BestBidSize() > 0 && b.BestAskSize() > 0 && !b.IsCrossed()
}

// AgeNS returns nanoseconds since the last update, 0 under clock skew.
func (b *L2Book) AgeNS(nowNS uint64) uint64 {
	if nowNS < b.LastUpdateNS {
		return 0
	}
	return nowNS - b.LastUpdateNS
}

// BidDepth returns the number of populated bid levels.
func (b *L2Book) BidDepth() int {
	n := 0
	for _, p := range b.BidPrices {
		if p == 0 {
			break
		}
		n++
	}
	return n
}

// AskDepth returns the number of populated ask levels.
func (b *L2Book) AskDepth() int {
	n := 0
	for _, p := range b.AskPrices {
		if p == 0 {
			break
		}
		n++
	}
	return n
}

// Side selects a book side for the analytics accessors.
type Side uint8

const (
	Bid Side = 0
	Ask Side = 1
)

func (b *L2Book) side(s Side) (*[Depth]uint64, *[Depth]uint64) {
	if s == Bid {
		return &b.BidPrices, &b.BidSizes
	}
	return &b.AskPrices, &b.AskSizes
}

func clampLevels(levels int) int {
	if levels < 1 {
		return 1
	}
	if levels > Depth {
		return Depth
	}
	return levels
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

