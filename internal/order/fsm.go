// Package order implements the order lifecycle state machine.
//
// The typestate form (Pending, Open, PartiallyFilled, ...) makes illegal
// transitions unrepresentable: each state type only carries methods for the
// transitions the lifecycle admits, and terminal states carry none.
//
//	Pending ──Acknowledge──► Open
//	Pending ──Reject───────► Rejected          (terminal)
//	Open ──Fill(q,p)───────► PartiallyFilled | Filled
//	Open ──Cancel──────────► Cancelled         (terminal)
//	PartiallyFilled ──Fill─► PartiallyFilled | Filled
//	PartiallyFilled ──Cancel► Cancelled        (terminal)
//
// StateMachine (machine.go) wraps the same rules behind a runtime-mutable
// value for containers that need a uniform key→value shape.
package order

import (
	"errors"
	"fmt"
	"time"

	"bog/pkg/types"
)

var (
	// ErrInvalidOrderID rejects the reserved zero order ID.
	ErrInvalidOrderID = errors.New("order ID cannot be zero (reserved value)")

	// ErrZeroFillQuantity rejects fills with no quantity.
	ErrZeroFillQuantity = errors.New("fill quantity is zero")

	// ErrZeroFillPrice rejects fills with no price.
	ErrZeroFillPrice = errors.New("fill price is zero")

	// ErrFillExceedsRemaining rejects fills larger than what is left.
	ErrFillExceedsRemaining = errors.New("fill quantity exceeds remaining")

	// ErrOrderNotActive is returned by the wrapper when a transition is
	// requested on a terminal order.
	ErrOrderNotActive = errors.New("order is not active")

	// ErrInvalidTransition is returned by the wrapper for a transition the
	// current state does not admit.
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// Data is the immutable core every state carries: identity, economics, and
// cumulative fill progress. Invariant: FilledQuantity ≤ Quantity.
type Data struct {
	ID             types.OrderID
	Side           types.Side
	Type           types.OrderType
	Price          uint64 // limit price, 9-dec fixed point
	Quantity       uint64 // original quantity
	FilledQuantity uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RejectReason   string
}

// Remaining returns the unfilled quantity.
func (d Data) Remaining() uint64 { return d.Quantity - d.FilledQuantity }

// validateFill enforces the strict fill rules shared by both the typestate
// and wrapper forms.
func (d Data) validateFill(quantity, price uint64) error {
	if quantity == 0 {
		return ErrZeroFillQuantity
	}
	if price == 0 {
		return ErrZeroFillPrice
	}
	if quantity > d.Remaining() {
		return fmt.Errorf("%w: fill=%d remaining=%d", ErrFillExceedsRemaining, quantity, d.Remaining())
	}
	return nil
}

func (d Data) applyFill(quantity uint64) Data {
	d.FilledQuantity += quantity
	d.UpdatedAt = time.Now()
	return d
}

// ————————————————————————————————————————————————————————————————————————
// Typestate forms
// ————————————————————————————————————————————————————————————————————————

// Pending is an order submitted but not yet acknowledged.
type Pending struct{ data Data }

// Open is an acknowledged order resting on the book.
type Open struct{ data Data }

// PartiallyFilled is an open order with some quantity executed.
type PartiallyFilled struct{ data Data }

// Filled is terminal: FilledQuantity == Quantity.
type Filled struct{ data Data }

// Cancelled is terminal.
type Cancelled struct{ data Data }

// Rejected is terminal.
type Rejected struct{ data Data }

// Expired is terminal.
type Expired struct{ data Data }

func (o Pending) Data() Data         { return o.data }
func (o Open) Data() Data            { return o.data }
func (o PartiallyFilled) Data() Data { return o.data }
func (o Filled) Data() Data          { return o.data }
func (o Cancelled) Data() Data       { return o.data }
func (o Rejected) Data() Data        { return o.data }
func (o Expired) Data() Data         { return o.data }

// NewPending creates an order in its initial state. The zero ID is
// rejected as reserved.
func NewPending(id types.OrderID, side types.Side, typ types.OrderType, price, quantity uint64) (Pending, error) {
	if id.IsZero() {
		return Pending{}, ErrInvalidOrderID
	}
	now := time.Now()
	return Pending{data: Data{
		ID:        id,
		Side:      side,
		Type:      typ,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}}, nil
}

// Acknowledge moves Pending → Open.
func (o Pending) Acknowledge() Open {
	o.data.UpdatedAt = time.Now()
	return Open{data: o.data}
}

// Reject moves Pending → Rejected with a reason.
func (o Pending) Reject(reason string) Rejected {
	o.data.RejectReason = reason
	o.data.UpdatedAt = time.Now()
	return Rejected{data: o.data}
}

// FillOutcome is the result of a valid fill: exactly one of Partial or
// Complete is set.
type FillOutcome struct {
	Partial  *PartiallyFilled
	Complete *Filled
}

// Fill applies an execution to an open order. Invalid fills return an error
// and the state is unchanged (the receiver is a value).
func (o Open) Fill(quantity, price uint64) (FillOutcome, error) {
	return fill(o.data, quantity, price)
}

// Cancel moves Open → Cancelled.
func (o Open) Cancel() Cancelled {
	o.data.UpdatedAt = time.Now()
	return Cancelled{data: o.data}
}

// Fill applies a further execution to a partially filled order.
func (o PartiallyFilled) Fill(quantity, price uint64) (FillOutcome, error) {
	return fill(o.data, quantity, price)
}

// Cancel moves PartiallyFilled → Cancelled; the filled portion stands.
func (o PartiallyFilled) Cancel() Cancelled {
	o.data.UpdatedAt = time.Now()
	return Cancelled{data: o.data}
}

func fill(d Data, quantity, price uint64) (FillOutcome, error) {
	if err := d.validateFill(quantity, price); err != nil {
		return FillOutcome{}, err
	}
	d = d.applyFill(quantity)
	if d.FilledQuantity == d.Quantity {
		return FillOutcome{Complete: &Filled{data: d}}, nil
	}
	return FillOutcome{Partial: &PartiallyFilled{data: d}}, nil
}
