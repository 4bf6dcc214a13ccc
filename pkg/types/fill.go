package types

import (
	"time"

	"bog/pkg/fixed"
)

// Fill records a single execution against one of our orders.
// Price, Size, and Fee are 9-decimal fixed point.
type Fill struct {
	OrderID     OrderID
	Side        Side
	Price       uint64
	Size        uint64
	Timestamp   time.Time
	Fee         uint64
	FeeCurrency string
}

// NewFill creates a fill stamped with the current time.
func NewFill(id OrderID, side Side, price, size uint64) Fill {
	return Fill{
		OrderID:     id,
		Side:        side,
		Price:       price,
		Size:        size,
		Timestamp:   time.Now(),
		FeeCurrency: "USD",
	}
}

// WithFee returns a copy of the fill carrying the given fee.
func (f Fill) WithFee(fee uint64) Fill {
	f.Fee = fee
	return f
}

// Notional returns price × size in fixed point.
func (f Fill) Notional() uint64 {
	return fixed.MulDivScale(f.Price, f.Size)
}

// PositionChange returns the signed position delta: +size for buys,
// -size for sells.
func (f Fill) PositionChange() int64 {
	if f.Side == Buy {
		return int64(f.Size)
	}
	return -int64(f.Size)
}

// CashFlow returns the signed cash delta excluding fees: buys cost cash,
// sells receive it.
func (f Fill) CashFlow() int64 {
	n := int64(f.Notional())
	if f.Side == Buy {
		return -n
	}
	return n
}
