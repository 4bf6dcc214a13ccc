// Package position tracks the per-market position as a single cache line
// of atomics: quantity, volume-weighted entry price, realized and daily
// PnL, and trade count.
//
// The engine thread is the only mutator; observers (risk reports, metrics,
// the diagnostics stream) read through the atomic accessors. Accounting
// mutations use the checked API — the saturating variants exist for
// telemetry only and silently clamp.
package position

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"

	"bog/pkg/fixed"
	"bog/pkg/types"
)

// ————————————————————————————————————————————————————————————————————————
// Overflow errors
// ————————————————————————————————————————————————————————————————————————

type ErrQuantityOverflow struct {
	Old, Delta int64
}

func (e ErrQuantityOverflow) Error() string {
	return fmt.Sprintf("quantity overflow: old=%d delta=%d", e.Old, e.Delta)
}

type ErrRealizedPnLOverflow struct {
	Old, Delta int64
}

func (e ErrRealizedPnLOverflow) Error() string {
	return fmt.Sprintf("realized PnL overflow: old=%d delta=%d", e.Old, e.Delta)
}

type ErrDailyPnLOverflow struct {
	Old, Delta int64
}

func (e ErrDailyPnLOverflow) Error() string {
	return fmt.Sprintf("daily PnL overflow: old=%d delta=%d", e.Old, e.Delta)
}

type ErrTradeCountOverflow struct {
	Old uint32
}

func (e ErrTradeCountOverflow) Error() string {
	return fmt.Sprintf("trade count overflow: old=%d", e.Old)
}

// ————————————————————————————————————————————————————————————————————————
// Position
// ————————————————————————————————————————————————————————————————————————

// Position is exactly one cache line. Quantity sign encodes side
// (positive long, negative short); entry price is the volume-weighted
// average and is zero iff quantity is zero.
type Position struct {
	quantity    atomic.Int64  // fixed point, 9 decimals
	entryPrice  atomic.Uint64 // fixed point, 9 decimals
	realizedPnL atomic.Int64
	dailyPnL    atomic.Int64
	tradeCount  atomic.Uint32
	_           [28]byte // pad to 64 bytes
}

// New creates an empty position.
func New() *Position { return &Position{} }

// Quantity returns the current signed quantity.
func (p *Position) Quantity() int64 { return p.quantity.Load() }

// EntryPrice returns the volume-weighted average entry price.
func (p *Position) EntryPrice() uint64 { return p.entryPrice.Load() }

// RealizedPnL returns the cumulative realized PnL.
func (p *Position) RealizedPnL() int64 { return p.realizedPnL.Load() }

// DailyPnL returns the realized PnL accumulated since the last daily reset.
func (p *Position) DailyPnL() int64 { return p.dailyPnL.Load() }

// TradeCount returns the number of fills applied.
func (p *Position) TradeCount() uint32 { return p.tradeCount.Load() }

// ResetDailyPnL zeroes the daily PnL. Called on the day boundary, never
// elsewhere.
func (p *Position) ResetDailyPnL() { p.dailyPnL.Store(0) }

// ————————————————————————————————————————————————————————————————————————
// Checked updates (accounting path)
// ————————————————————————————————————————————————————————————————————————

// AddQuantityChecked adds delta to quantity, failing on int64 overflow.
func (p *Position) AddQuantityChecked(delta int64) (int64, error) {
	old := p.quantity.Load()
	sum, ok := fixed.AddChecked(old, delta)
	if !ok {
		return 0, ErrQuantityOverflow{Old: old, Delta: delta}
	}
	p.quantity.Store(sum)
	return sum, nil
}

// AddRealizedPnLChecked adds delta to realized PnL, failing on overflow.
func (p *Position) AddRealizedPnLChecked(delta int64) error {
	old := p.realizedPnL.Load()
	sum, ok := fixed.AddChecked(old, delta)
	if !ok {
		return ErrRealizedPnLOverflow{Old: old, Delta: delta}
	}
	p.realizedPnL.Store(sum)
	return nil
}

// AddDailyPnLChecked adds delta to daily PnL, failing on overflow.
func (p *Position) AddDailyPnLChecked(delta int64) error {
	old := p.dailyPnL.Load()
	sum, ok := fixed.AddChecked(old, delta)
	if !ok {
		return ErrDailyPnLOverflow{Old: old, Delta: delta}
	}
	p.dailyPnL.Store(sum)
	return nil
}

// IncrementTradesChecked bumps the trade count, failing on uint32 overflow.
func (p *Position) IncrementTradesChecked() (uint32, error) {
	old := p.tradeCount.Load()
	if old == math.MaxUint32 {
		return 0, ErrTradeCountOverflow{Old: old}
	}
	p.tradeCount.Store(old + 1)
	return old + 1, nil
}

// ————————————————————————————————————————————————————————————————————————
// Saturating updates — telemetry only, never accounting
// ————————————————————————————————————————————————————————————————————————

// AddQuantitySaturating clamps at the int64 bounds instead of failing.
func (p *Position) AddQuantitySaturating(delta int64) int64 {
	old := p.quantity.Load()
	sum, ok := fixed.AddChecked(old, delta)
	if !ok {
		if delta > 0 {
			sum = math.MaxInt64
		} else {
			sum = math.MinInt64
		}
	}
	p.quantity.Store(sum)
	return sum
}

// AddRealizedPnLSaturating clamps at the int64 bounds instead of failing.
func (p *Position) AddRealizedPnLSaturating(delta int64) int64 {
	old := p.realizedPnL.Load()
	sum, ok := fixed.AddChecked(old, delta)
	if !ok {
		if delta > 0 {
			sum = math.MaxInt64
		} else {
			sum = math.MinInt64
		}
	}
	p.realizedPnL.Store(sum)
	return sum
}

// ————————————————————————————————————————————————————————————————————————
// Fill processing
// ————————————————————————————————————————————————————————————————————————

// ProcessFillWithFee applies a fill to the position, in order: determine
// the position delta sign from the side; realize PnL (net of fee) against
// the existing entry price when the position reduces or reverses; update
// quantity under overflow check; recompute the weighted-average entry when
// increasing in the same direction; zero the entry when flat; accumulate
// realized and daily PnL under checked addition; bump the trade count.
//
// feeSubBps is the fee in sub-basis points (1 sub-bp = 0.01 bp): the fee
// charged is price × closing_qty × feeSubBps / (Scale × 1e6).
func (p *Position) ProcessFillWithFee(side types.Side, price, size uint64, feeSubBps uint32) error {
	delta := int64(size)
	if side == types.Sell {
		delta = -delta
	}

	oldQty := p.quantity.Load()

	// Realized PnL when reducing or reversing.
	var pnl int64
	if (oldQty > 0 && delta < 0) || (oldQty < 0 && delta > 0) {
		closingQty := absI64(delta)
		if a := absI64(oldQty); a < closingQty {
			closingQty = a
		}

		if entry := p.entryPrice.Load(); entry > 0 {
			var priceDiff int64
			if oldQty > 0 {
				priceDiff = int64(price) - int64(entry) // long: profit if exit > entry
			} else {
				priceDiff = int64(entry) - int64(price) // short: profit if exit < entry
			}

			gross := mulDivI128(priceDiff, closingQty, fixed.Scale)
			fee := feeOn(price, uint64(closingQty), feeSubBps)
			pnl = gross - int64(fee)
		}
	}

	newQty, err := p.addQuantityCAS(oldQty, delta)
	if err != nil {
		return err
	}

	// Weighted-average entry price on same-direction increases; opening from
	// flat or reversing through zero enters at the fill price.
	if (newQty > 0 && delta > 0) || (newQty < 0 && delta < 0) {
		oldEntry := p.entryPrice.Load()
		if oldEntry == 0 || oldQty == 0 || (oldQty > 0) != (newQty > 0) {
			p.entryPrice.Store(price)
		} else {
			p.entryPrice.Store(weightedEntry(oldEntry, absI64(oldQty), price, absI64(delta)))
		}
	} else if newQty == 0 {
		p.entryPrice.Store(0)
	}

	if pnl != 0 {
		if err := p.AddRealizedPnLChecked(pnl); err != nil {
			return err
		}
		if err := p.AddDailyPnLChecked(pnl); err != nil {
			return err
		}
	}

	_, err = p.IncrementTradesChecked()
	return err
}

// ProcessFill applies a fill with no fee.
func (p *Position) ProcessFill(side types.Side, price, size uint64) error {
	return p.ProcessFillWithFee(side, price, size, 0)
}

func (p *Position) addQuantityCAS(old, delta int64) (int64, error) {
	sum, ok := fixed.AddChecked(old, delta)
	if !ok {
		return 0, ErrQuantityOverflow{Old: old, Delta: delta}
	}
	p.quantity.Store(sum)
	return sum, nil
}

// UnrealizedPnL marks the open quantity against marketPrice. Returns 0 when
// there is no position or the entry price is zero — a zero entry with
// nonzero quantity is corrupted state and must not panic the hot path.
func (p *Position) UnrealizedPnL(marketPrice uint64) int64 {
	qty := p.quantity.Load()
	if qty == 0 {
		return 0
	}
	entry := p.entryPrice.Load()
	if entry == 0 {
		return 0
	}

	var priceDiff int64
	if qty > 0 {
		priceDiff = int64(marketPrice) - int64(entry)
	} else {
		priceDiff = int64(entry) - int64(marketPrice)
	}
	return mulDivI128(priceDiff, absI64(qty), fixed.Scale)
}

// feeOn computes price × qty × feeSubBps / (Scale × 1e6) in 128-bit
// intermediates.
func feeOn(price, qty uint64, feeSubBps uint32) uint64 {
	notional := fixed.MulDivScale(price, qty)
	hi, lo := bits.Mul64(notional, uint64(feeSubBps))
	if hi >= 1_000_000 {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, 1_000_000)
	return q
}

// weightedEntry computes (oldEntry×oldQty + price×addQty) / (oldQty+addQty)
// in 128-bit intermediates, clamping to MaxUint64 on the (absurd) overflow.
func weightedEntry(oldEntry uint64, oldQty int64, price uint64, addQty int64) uint64 {
	oldHi, oldLo := bits.Mul64(oldEntry, uint64(oldQty))
	addHi, addLo := bits.Mul64(price, uint64(addQty))

	lo, carry := bits.Add64(oldLo, addLo, 0)
	hi := oldHi + addHi + carry

	totalQty := uint64(oldQty) + uint64(addQty)
	if hi >= totalQty {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, totalQty)
	return q
}

// mulDivI128 computes a×b/d with a signed, b and d positive, through
// 128-bit intermediates.
func mulDivI128(a, b, d int64) int64 {
	neg := a < 0
	ua := uint64(a)
	if neg {
		ua = uint64(-a)
	}
	hi, lo := bits.Mul64(ua, uint64(b))
	if hi >= uint64(d) {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(d))
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
