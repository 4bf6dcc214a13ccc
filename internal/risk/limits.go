// Package risk enforces the pre-execution validation chain: pre-signal
// limits, the pre-trade gate, the order rate limiter, and the market
// circuit breaker.
//
// The chain in pipeline order:
//
//	CircuitBreaker → Strategy → Limits → RateLimiter → PreTradeValidator → venue
//	flash crash                 position  not spam      final checks
//	spread                      size
//	liquidity                   daily loss
package risk

import (
	"fmt"

	"bog/internal/position"
	"bog/pkg/types"
)

// Violation identifies which pre-signal limit a signal breached.
type Violation uint8

const (
	ViolationNone Violation = iota
	ViolationOrderTooSmall
	ViolationOrderTooLarge
	ViolationPositionLimitLong
	ViolationPositionLimitShort
	ViolationDailyLossLimit
)

func (v Violation) String() string {
	switch v {
	case ViolationNone:
		return "NONE"
	case ViolationOrderTooSmall:
		return "ORDER_TOO_SMALL"
	case ViolationOrderTooLarge:
		return "ORDER_TOO_LARGE"
	case ViolationPositionLimitLong:
		return "POSITION_LIMIT_LONG"
	case ViolationPositionLimitShort:
		return "POSITION_LIMIT_SHORT"
	case ViolationDailyLossLimit:
		return "DAILY_LOSS_LIMIT"
	}
	return "UNKNOWN"
}

// ViolationError carries the violation tag plus the offending values.
type ViolationError struct {
	Violation Violation
	Value     int64
	Limit     int64
}

func (e ViolationError) Error() string {
	return fmt.Sprintf("risk violation %s: value=%d limit=%d", e.Violation, e.Value, e.Limit)
}

// Limits is the pre-signal risk gate, checked before every actionable
// signal on the hot path. All values are 9-decimal fixed point.
type Limits struct {
	MinOrderSize uint64
	MaxOrderSize uint64
	MaxPosition  int64 // max long quantity
	MaxShort     int64 // max short magnitude (positive number)
	MaxDailyLoss int64 // positive number; daily PnL below -MaxDailyLoss trips
}

// ValidateSignal checks a signal against the limits given the current
// position. NoAction and CancelAll always pass. QuoteBoth is checked
// bilaterally: either side filling alone must stay inside the band.
func (l Limits) ValidateSignal(sig types.Signal, pos *position.Position) error {
	switch sig.Kind {
	case types.SignalNoAction, types.SignalCancelAll:
		return nil
	}

	if sig.Size < l.MinOrderSize {
		return ViolationError{Violation: ViolationOrderTooSmall, Value: int64(sig.Size), Limit: int64(l.MinOrderSize)}
	}
	if sig.Size > l.MaxOrderSize {
		return ViolationError{Violation: ViolationOrderTooLarge, Value: int64(sig.Size), Limit: int64(l.MaxOrderSize)}
	}

	qty := pos.Quantity()
	size := int64(sig.Size)

	switch sig.Kind {
	case types.SignalQuoteBoth:
		// Bid filling adds, ask filling subtracts; both projections must
		// stay inside [-MaxShort, +MaxPosition].
		if err := l.checkProjection(qty + size); err != nil {
			return err
		}
		if err := l.checkProjection(qty - size); err != nil {
			return err
		}
	case types.SignalQuoteBid:
		if err := l.checkProjection(qty + size); err != nil {
			return err
		}
	case types.SignalQuoteAsk:
		if err := l.checkProjection(qty - size); err != nil {
			return err
		}
	case types.SignalTakePosition:
		projected := qty + size
		if sig.Side == types.Sell {
			projected = qty - size
		}
		if err := l.checkProjection(projected); err != nil {
			return err
		}
	}

	if daily := pos.DailyPnL(); daily < -l.MaxDailyLoss {
		return ViolationError{Violation: ViolationDailyLossLimit, Value: daily, Limit: l.MaxDailyLoss}
	}

	return nil
}

func (l Limits) checkProjection(projected int64) error {
	if projected > l.MaxPosition {
		return ViolationError{Violation: ViolationPositionLimitLong, Value: projected, Limit: l.MaxPosition}
	}
	if projected < -l.MaxShort {
		return ViolationError{Violation: ViolationPositionLimitShort, Value: projected, Limit: l.MaxShort}
	}
	return nil
}
