package risk

import (
	"fmt"
	"math/bits"

	"bog/internal/resilience"
)

// Rejection identifies why the pre-trade gate refused an order.
type Rejection uint8

const (
	RejectKillSwitchActive Rejection = iota + 1
	RejectTradingPaused
	RejectConnectionUnhealthy
	RejectInsufficientBalance
	RejectInsufficientMargin
	RejectSizeBelowMinimum
	RejectSizeAboveMaximum
	RejectInvalidTick
	RejectPriceTooFarFromMarket
)

func (r Rejection) String() string {
	switch r {
	case RejectKillSwitchActive:
		return "KILL_SWITCH_ACTIVE"
	case RejectTradingPaused:
		return "TRADING_PAUSED"
	case RejectConnectionUnhealthy:
		return "CONNECTION_UNHEALTHY"
	case RejectInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case RejectInsufficientMargin:
		return "INSUFFICIENT_MARGIN"
	case RejectSizeBelowMinimum:
		return "SIZE_BELOW_MINIMUM"
	case RejectSizeAboveMaximum:
		return "SIZE_ABOVE_MAXIMUM"
	case RejectInvalidTick:
		return "INVALID_TICK"
	case RejectPriceTooFarFromMarket:
		return "PRICE_TOO_FAR_FROM_MARKET"
	}
	return "UNKNOWN"
}

// PreTradeResult is Allowed or Rejected with a reason.
type PreTradeResult struct {
	Rejection Rejection // zero value means allowed
	Detail    string
}

// Allowed reports whether the order may go to the venue.
func (r PreTradeResult) Allowed() bool { return r.Rejection == 0 }

func (r PreTradeResult) String() string {
	if r.Allowed() {
		return "ALLOWED"
	}
	if r.Detail != "" {
		return fmt.Sprintf("REJECTED(%s: %s)", r.Rejection, r.Detail)
	}
	return fmt.Sprintf("REJECTED(%s)", r.Rejection)
}

// ExchangeRules holds the venue's order constraints. All prices and sizes
// are 9-decimal fixed point.
type ExchangeRules struct {
	MinOrderSize        uint64
	MaxOrderSize        uint64
	TickSize            uint64
	MaxPriceDistanceBps uint32
}

// DefaultExchangeRules returns BTC-perp rules: 0.001 minimum, 10 maximum,
// $0.01 tick, 5% price collar.
func DefaultExchangeRules() ExchangeRules {
	return ExchangeRules{
		MinOrderSize:        1_000_000,
		MaxOrderSize:        10_000_000_000,
		TickSize:            10_000_000,
		MaxPriceDistanceBps: 500,
	}
}

// PreTradeValidator is the last gate before any exchange call. Live
// executors run their own signing path but still call this; the simulated
// executor calls it on every placement.
//
// Balance, margin, and connection-health checks are stubbed: the contract
// is preserved for the live executor, which wires real account state in.
type PreTradeValidator struct {
	rules      ExchangeRules
	killSwitch *resilience.KillSwitch
}

// NewPreTradeValidator creates a validator without kill-switch integration.
func NewPreTradeValidator(rules ExchangeRules) *PreTradeValidator {
	return &PreTradeValidator{rules: rules}
}

// NewPreTradeValidatorWithKillSwitch creates a validator that refuses
// orders while the switch is stopped or paused.
func NewPreTradeValidatorWithKillSwitch(rules ExchangeRules, ks *resilience.KillSwitch) *PreTradeValidator {
	return &PreTradeValidator{rules: rules, killSwitch: ks}
}

// Validate runs the pre-trade checks in order: kill switch, pause, size
// bounds, tick alignment, and price distance from mid (measured in 128-bit
// arithmetic so price×bps cannot overflow).
func (v *PreTradeValidator) Validate(price, size, mid uint64) PreTradeResult {
	if v.killSwitch != nil {
		if v.killSwitch.ShouldStop() {
			return PreTradeResult{Rejection: RejectKillSwitchActive}
		}
		if v.killSwitch.IsPaused() {
			return PreTradeResult{Rejection: RejectTradingPaused}
		}
	}

	if size < v.rules.MinOrderSize {
		return PreTradeResult{
			Rejection: RejectSizeBelowMinimum,
			Detail:    fmt.Sprintf("size %d < min %d", size, v.rules.MinOrderSize),
		}
	}
	if size > v.rules.MaxOrderSize {
		return PreTradeResult{
			Rejection: RejectSizeAboveMaximum,
			Detail:    fmt.Sprintf("size %d > max %d", size, v.rules.MaxOrderSize),
		}
	}

	if v.rules.TickSize > 0 && price%v.rules.TickSize != 0 {
		return PreTradeResult{
			Rejection: RejectInvalidTick,
			Detail:    fmt.Sprintf("price %d not on tick %d", price, v.rules.TickSize),
		}
	}

	if mid > 0 && v.rules.MaxPriceDistanceBps > 0 {
		distance := price - mid
		if mid > price {
			distance = mid - price
		}
		// distance×10_000 ≤ mid×maxBps, compared in 128 bits.
		lhsHi, lhsLo := bits.Mul64(distance, 10_000)
		rhsHi, rhsLo := bits.Mul64(mid, uint64(v.rules.MaxPriceDistanceBps))
		if lhsHi > rhsHi || (lhsHi == rhsHi && lhsLo > rhsLo) {
			return PreTradeResult{
				Rejection: RejectPriceTooFarFromMarket,
				Detail:    fmt.Sprintf("price %d vs mid %d exceeds %dbps", price, mid, v.rules.MaxPriceDistanceBps),
			}
		}
	}

	return PreTradeResult{}
}

// Rules returns the configured exchange rules.
func (v *PreTradeValidator) Rules() ExchangeRules { return v.rules }
