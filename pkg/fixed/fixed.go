// Package fixed implements 9-decimal fixed-point arithmetic for prices,
// sizes, and PnL.
//
// All money math in the bot runs on integer units with nine implicit decimal
// digits (Scale = 1e9). Prices and sizes are uint64; signed quantities and
// PnL are int64. Conversions from float64 go through checked functions that
// reject NaN, infinities, and out-of-range values — the unchecked variants
// exist for legacy call sites and are forbidden on accounting paths.
package fixed

import (
	"fmt"
	"math"
	"math/bits"
)

// Scale is the fixed-point scale factor: 9 decimal places.
const Scale int64 = 1_000_000_000

// MaxSafeFloat64 is the largest float64 that converts without overflowing
// int64: i64 max / Scale ≈ 9.2 billion.
const MaxSafeFloat64 = float64(math.MaxInt64 / Scale)

// MinSafeFloat64 is the smallest (most negative) safe float64.
const MinSafeFloat64 = float64(math.MinInt64 / Scale)

// ————————————————————————————————————————————————————————————————————————
// Conversion errors
// ————————————————————————————————————————————————————————————————————————

// ErrNotANumber is returned when converting a NaN.
type ErrNotANumber struct{}

func (ErrNotANumber) Error() string { return "value is NaN" }

// ErrInfinite is returned when converting ±Inf.
type ErrInfinite struct {
	Positive bool
}

func (e ErrInfinite) Error() string {
	if e.Positive {
		return "value is +Inf"
	}
	return "value is -Inf"
}

// ErrOutOfRange is returned when a value cannot be represented in 9-decimal
// fixed point without overflowing int64.
type ErrOutOfRange struct {
	Value float64
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("value %g out of fixed-point range [%g, %g]", e.Value, MinSafeFloat64, MaxSafeFloat64)
}

// ————————————————————————————————————————————————————————————————————————
// Checked conversions (use these on anything touching money)
// ————————————————————————————————————————————————————————————————————————

// FromFloat64 converts a float64 to fixed point, rejecting NaN, infinities,
// and values outside the representable range.
func FromFloat64(value float64) (int64, error) {
	if math.IsNaN(value) {
		return 0, ErrNotANumber{}
	}
	if math.IsInf(value, 0) {
		return 0, ErrInfinite{Positive: value > 0}
	}
	if value > MaxSafeFloat64 || value < MinSafeFloat64 {
		return 0, ErrOutOfRange{Value: value}
	}
	return int64(value * float64(Scale)), nil
}

// FromUint64 converts a uint64 fixed-point value to int64, rejecting values
// above math.MaxInt64.
func FromUint64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, ErrOutOfRange{Value: float64(value) / float64(Scale)}
	}
	return int64(value), nil
}

// ToFloat64 converts a fixed-point value back to float64.
func ToFloat64(value int64) float64 {
	return float64(value) / float64(Scale)
}

// UintToFloat64 converts an unsigned fixed-point value to float64.
func UintToFloat64(value uint64) float64 {
	return float64(value) / float64(Scale)
}

// ToUint64 converts a signed fixed-point value to unsigned, clamping
// negatives to zero.
func ToUint64(value int64) uint64 {
	if value < 0 {
		return 0
	}
	return uint64(value)
}

// ————————————————————————————————————————————————————————————————————————
// Unchecked conversions — telemetry and display only, never accounting
// ————————————————————————————————————————————————————————————————————————

// FromFloat64Unchecked converts without range checks. It silently truncates
// out-of-range inputs and must not be used on the accounting path.
func FromFloat64Unchecked(value float64) int64 {
	return int64(value * float64(Scale))
}

// FromUint64Unchecked converts without checking for int64 overflow. It can
// silently truncate and must not be used on the accounting path.
func FromUint64Unchecked(value uint64) int64 {
	return int64(value)
}

// ————————————————————————————————————————————————————————————————————————
// Checked arithmetic
// ————————————————————————————————————————————————————————————————————————

// AddChecked adds two fixed-point values, reporting overflow.
func AddChecked(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// MulDivScale computes a*b/Scale in 128-bit intermediate precision.
// This is the canonical "price × size = notional" operation: both operands
// carry 9 decimals, the product carries 18, dividing by Scale restores 9.
// Quotients that overflow uint64 saturate to math.MaxUint64; callers on the
// accounting path bound their inputs so this never triggers there.
func MulDivScale(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= uint64(Scale) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(Scale))
	return q
}
