package order

import (
	"fmt"
	"time"

	"bog/pkg/types"
)

// StateMachine is the runtime-mutable form of the order FSM, for contexts
// where the typestate cannot be threaded — an executor's map keyed by order
// ID needs one value type. Every transition enforces the same rules as the
// typestate form; a rejected transition returns an error and leaves the
// state unchanged.
type StateMachine struct {
	status types.OrderStatus
	data   Data
}

// NewStateMachine creates a machine in Pending holding the given order.
func NewStateMachine(id types.OrderID, side types.Side, typ types.OrderType, price, quantity uint64) (*StateMachine, error) {
	p, err := NewPending(id, side, typ, price, quantity)
	if err != nil {
		return nil, err
	}
	return &StateMachine{status: types.StatusPending, data: p.Data()}, nil
}

// Status returns the current lifecycle status.
func (m *StateMachine) Status() types.OrderStatus { return m.status }

// Data returns a copy of the order core.
func (m *StateMachine) Data() Data { return m.data }

// IsActive reports whether the order can still transition.
func (m *StateMachine) IsActive() bool { return m.status.IsActive() }

// IsTerminal reports whether the order reached a terminal state.
func (m *StateMachine) IsTerminal() bool { return m.status.IsTerminal() }

// Remaining returns the unfilled quantity.
func (m *StateMachine) Remaining() uint64 { return m.data.Remaining() }

// Acknowledge performs Pending → Open.
func (m *StateMachine) Acknowledge() error {
	if m.status != types.StatusPending {
		return fmt.Errorf("%w: acknowledge from %s", ErrInvalidTransition, m.status)
	}
	m.status = types.StatusOpen
	m.data.UpdatedAt = time.Now()
	return nil
}

// Reject performs Pending → Rejected.
func (m *StateMachine) Reject(reason string) error {
	if m.status != types.StatusPending {
		return fmt.Errorf("%w: reject from %s", ErrInvalidTransition, m.status)
	}
	m.status = types.StatusRejected
	m.data.RejectReason = reason
	return nil
}

// ApplyFill performs Open/PartiallyFilled → PartiallyFilled/Filled with
// strict validation. The state is unchanged on error.
func (m *StateMachine) ApplyFill(quantity, price uint64) error {
	switch m.status {
	case types.StatusOpen, types.StatusPartiallyFilled:
	case types.StatusPending:
		return fmt.Errorf("%w: fill before acknowledge", ErrInvalidTransition)
	default:
		return fmt.Errorf("%w: %s", ErrOrderNotActive, m.status)
	}

	if err := m.data.validateFill(quantity, price); err != nil {
		return err
	}

	m.data = m.data.applyFill(quantity)
	if m.data.FilledQuantity == m.data.Quantity {
		m.status = types.StatusFilled
	} else {
		m.status = types.StatusPartiallyFilled
	}
	return nil
}

// Cancel performs Open/PartiallyFilled → Cancelled. Pending orders cancel
// too (the venue never saw them).
func (m *StateMachine) Cancel() error {
	switch m.status {
	case types.StatusPending, types.StatusOpen, types.StatusPartiallyFilled:
		m.status = types.StatusCancelled
		return nil
	default:
		return fmt.Errorf("%w: cancel from %s", ErrOrderNotActive, m.status)
	}
}

// Expire performs Open/PartiallyFilled → Expired.
func (m *StateMachine) Expire() error {
	switch m.status {
	case types.StatusOpen, types.StatusPartiallyFilled:
		m.status = types.StatusExpired
		return nil
	default:
		return fmt.Errorf("%w: expire from %s", ErrOrderNotActive, m.status)
	}
}
