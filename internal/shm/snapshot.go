// Package shm implements the shared-memory market-data transport: the
// fixed-layout MarketSnapshot record, the per-market ring buffer it travels
// through, and the Feed consumer with gap detection, freshness tracking, and
// the snapshot request/replay recovery protocol.
//
// The producer (the market-data daemon) is a separate process that appends
// 512-byte snapshot records into a ring mapped at /dev/shm/bog_m<market_id>.
// Each record is protected by a seqlock: generation_start is odd while the
// writer is mid-update, and a reader retries until generation_start is even
// and equal to generation_end.
package shm

import (
	"encoding/binary"
	"fmt"
)

// Depth is the number of depth levels carried per side in every snapshot.
const Depth = 10

// SnapshotSize is the fixed on-wire size of one snapshot record.
// 11 u64 header/top-of-book fields + 4×Depth u64 depth arrays + flags +
// dex type, padded to 512 bytes (8 cache lines).
const SnapshotSize = 512

// FlagFullSnapshot marks a snapshot whose depth arrays fully describe the
// book. When clear, only the top-of-book fields are authoritative.
const FlagFullSnapshot uint8 = 1 << 0

// Byte offsets of each field inside the record. All fields little-endian.
const (
	offGenerationStart = 0
	offGenerationEnd   = 8
	offMarketID        = 16
	offSequence        = 24
	offExchangeTS      = 32
	offLocalRecvTS     = 40
	offLocalPublishTS  = 48
	offBestBidPrice    = 56
	offBestBidSize     = 64
	offBestAskPrice    = 72
	offBestAskSize     = 80
	offBidPrices       = 88
	offBidSizes        = offBidPrices + 8*Depth
	offAskPrices       = offBidSizes + 8*Depth
	offAskSizes        = offAskPrices + 8*Depth
	offFlags           = offAskSizes + 8*Depth // 408
	offDexType         = offFlags + 1
)

// MarketSnapshot is the in-memory form of one ring-buffer record.
// All prices and sizes are 9-decimal fixed point. Bid depth is descending,
// ask depth ascending; a zero price terminates a side.
type MarketSnapshot struct {
	GenerationStart uint64
	GenerationEnd   uint64
	MarketID        uint64
	Sequence        uint64
	ExchangeTS      uint64 // exchange event time, ns
	LocalRecvTS     uint64 // producer receive time, ns
	LocalPublishTS  uint64 // producer publish time, ns
	BestBidPrice    uint64
	BestBidSize     uint64
	BestAskPrice    uint64
	BestAskSize     uint64
	BidPrices       [Depth]uint64
	BidSizes        [Depth]uint64
	AskPrices       [Depth]uint64
	AskSizes        [Depth]uint64
	Flags           uint8
	DexType         uint8
}

// IsFullSnapshot reports whether the depth arrays fully replace the book.
func (s *MarketSnapshot) IsFullSnapshot() bool {
	return s.Flags&FlagFullSnapshot != 0
}

// Mid returns the overflow-safe midpoint of the top of book, or 0 when
// either side is empty.
func (s *MarketSnapshot) Mid() uint64 {
	bid, ask := s.BestBidPrice, s.BestAskPrice
	if bid == 0 || ask == 0 {
		return 0
	}
	return bid/2 + ask/2 + (bid%2+ask%2)/2
}

// SpreadBps returns the bid/ask spread in basis points relative to the bid,
// or 0 when the bid is zero.
func (s *MarketSnapshot) SpreadBps() uint64 {
	if s.BestBidPrice == 0 || s.BestAskPrice <= s.BestBidPrice {
		return 0
	}
	return (s.BestAskPrice - s.BestBidPrice) * 10_000 / s.BestBidPrice
}

// encode serializes the snapshot body (everything except the seqlock
// counters) into buf, which must be at least SnapshotSize bytes.
func (s *MarketSnapshot) encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint64(buf[offMarketID:], s.MarketID)
	le.PutUint64(buf[offSequence:], s.Sequence)
	le.PutUint64(buf[offExchangeTS:], s.ExchangeTS)
	le.PutUint64(buf[offLocalRecvTS:], s.LocalRecvTS)
	le.PutUint64(buf[offLocalPublishTS:], s.LocalPublishTS)
	le.PutUint64(buf[offBestBidPrice:], s.BestBidPrice)
	le.PutUint64(buf[offBestBidSize:], s.BestBidSize)
	le.PutUint64(buf[offBestAskPrice:], s.BestAskPrice)
	le.PutUint64(buf[offBestAskSize:], s.BestAskSize)
	for i := 0; i < Depth; i++ {
		le.PutUint64(buf[offBidPrices+8*i:], s.BidPrices[i])
		le.PutUint64(buf[offBidSizes+8*i:], s.BidSizes[i])
		le.PutUint64(buf[offAskPrices+8*i:], s.AskPrices[i])
		le.PutUint64(buf[offAskSizes+8*i:], s.AskSizes[i])
	}
	buf[offFlags] = s.Flags
	buf[offDexType] = s.DexType
}

// decode deserializes the snapshot body from buf.
func (s *MarketSnapshot) decode(buf []byte) {
	le := binary.LittleEndian
	s.MarketID = le.Uint64(buf[offMarketID:])
	s.Sequence = le.Uint64(buf[offSequence:])
	s.ExchangeTS = le.Uint64(buf[offExchangeTS:])
	s.LocalRecvTS = le.Uint64(buf[offLocalRecvTS:])
	s.LocalPublishTS = le.Uint64(buf[offLocalPublishTS:])
	s.BestBidPrice = le.Uint64(buf[offBestBidPrice:])
	s.BestBidSize = le.Uint64(buf[offBestBidSize:])
	s.BestAskPrice = le.Uint64(buf[offBestAskPrice:])
	s.BestAskSize = le.Uint64(buf[offBestAskSize:])
	for i := 0; i < Depth; i++ {
		s.BidPrices[i] = le.Uint64(buf[offBidPrices+8*i:])
		s.BidSizes[i] = le.Uint64(buf[offBidSizes+8*i:])
		s.AskPrices[i] = le.Uint64(buf[offAskPrices+8*i:])
		s.AskSizes[i] = le.Uint64(buf[offAskSizes+8*i:])
	}
	s.Flags = buf[offFlags]
	s.DexType = buf[offDexType]
}

func (s *MarketSnapshot) String() string {
	return fmt.Sprintf("snapshot{market=%d seq=%d bid=%d/%d ask=%d/%d full=%v}",
		s.MarketID, s.Sequence, s.BestBidPrice, s.BestBidSize,
		s.BestAskPrice, s.BestAskSize, s.IsFullSnapshot())
}
