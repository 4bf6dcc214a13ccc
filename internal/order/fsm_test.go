package order

import (
	"errors"
	"testing"

	"bog/pkg/types"
)

func newPendingOrder(t *testing.T) Pending {
	t.Helper()
	p, err := NewPending(types.NewOrderID(), types.Buy, types.Limit, 50_000_000_000_000, 1_000_000_000)
	if err != nil {
		t.Fatalf("NewPending: %v", err)
	}
	return p
}

func TestZeroOrderIDRejected(t *testing.T) {
	t.Parallel()

	if _, err := NewPending(types.OrderID{}, types.Buy, types.Limit, 1, 1); !errors.Is(err, ErrInvalidOrderID) {
		t.Errorf("zero ID: error = %v, want ErrInvalidOrderID", err)
	}
	if _, err := NewStateMachine(types.OrderID{}, types.Buy, types.Limit, 1, 1); !errors.Is(err, ErrInvalidOrderID) {
		t.Errorf("zero ID wrapper: error = %v, want ErrInvalidOrderID", err)
	}
}

func TestTypestateHappyPath(t *testing.T) {
	t.Parallel()

	open := newPendingOrder(t).Acknowledge()

	out, err := open.Fill(400_000_000, 50_000_000_000_000)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if out.Partial == nil || out.Complete != nil {
		t.Fatal("40% fill should be partial")
	}
	if got := out.Partial.Data().FilledQuantity; got != 400_000_000 {
		t.Errorf("FilledQuantity = %d, want 400000000", got)
	}

	out2, err := out.Partial.Fill(600_000_000, 50_000_000_000_000)
	if err != nil {
		t.Fatalf("second Fill: %v", err)
	}
	if out2.Complete == nil {
		t.Fatal("remaining fill should complete the order")
	}
	// P5: terminal Filled implies filled == quantity.
	d := out2.Complete.Data()
	if d.FilledQuantity != d.Quantity {
		t.Errorf("Filled order has filled=%d quantity=%d", d.FilledQuantity, d.Quantity)
	}
}

func TestTypestateReject(t *testing.T) {
	t.Parallel()

	r := newPendingOrder(t).Reject("size below minimum")
	if r.Data().RejectReason != "size below minimum" {
		t.Errorf("reject reason = %q", r.Data().RejectReason)
	}
}

func TestFillValidation(t *testing.T) {
	t.Parallel()

	open := newPendingOrder(t).Acknowledge()

	cases := []struct {
		name     string
		quantity uint64
		price    uint64
		want     error
	}{
		{"zero_quantity", 0, 50_000_000_000_000, ErrZeroFillQuantity},
		{"zero_price", 100, 0, ErrZeroFillPrice},
		{"exceeds_remaining", 2_000_000_000, 50_000_000_000_000, ErrFillExceedsRemaining},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := open.Fill(tc.quantity, tc.price); !errors.Is(err, tc.want) {
				t.Errorf("Fill error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWrapperLifecycle(t *testing.T) {
	t.Parallel()

	m, err := NewStateMachine(types.NewOrderID(), types.Sell, types.Limit, 50_010_000_000_000, 1_000_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status() != types.StatusPending || !m.IsActive() {
		t.Fatalf("initial status = %v", m.Status())
	}

	if err := m.Acknowledge(); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if m.Status() != types.StatusOpen {
		t.Fatalf("status after ack = %v", m.Status())
	}

	if err := m.ApplyFill(300_000_000, 50_010_000_000_000); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if m.Status() != types.StatusPartiallyFilled || m.Remaining() != 700_000_000 {
		t.Fatalf("after partial: status=%v remaining=%d", m.Status(), m.Remaining())
	}

	if err := m.ApplyFill(700_000_000, 50_010_000_000_000); err != nil {
		t.Fatalf("completing fill: %v", err)
	}
	if m.Status() != types.StatusFilled || !m.IsTerminal() {
		t.Fatalf("after complete: status=%v", m.Status())
	}
}

func TestWrapperRejectedFillLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	m, _ := NewStateMachine(types.NewOrderID(), types.Buy, types.Limit, 100, 1_000)
	m.Acknowledge()
	m.ApplyFill(400, 100)

	before := m.Data()
	if err := m.ApplyFill(700, 100); !errors.Is(err, ErrFillExceedsRemaining) {
		t.Fatalf("oversized fill error = %v", err)
	}
	after := m.Data()
	if before.FilledQuantity != after.FilledQuantity || m.Status() != types.StatusPartiallyFilled {
		t.Error("rejected fill mutated state")
	}
}

// P6: no transition exists from a terminal state.
func TestTerminalStatesRefuseTransitions(t *testing.T) {
	t.Parallel()

	terminalMachines := map[string]func(t *testing.T) *StateMachine{
		"filled": func(t *testing.T) *StateMachine {
			m, _ := NewStateMachine(types.NewOrderID(), types.Buy, types.Limit, 100, 1_000)
			m.Acknowledge()
			m.ApplyFill(1_000, 100)
			return m
		},
		"cancelled": func(t *testing.T) *StateMachine {
			m, _ := NewStateMachine(types.NewOrderID(), types.Buy, types.Limit, 100, 1_000)
			m.Acknowledge()
			m.Cancel()
			return m
		},
		"rejected": func(t *testing.T) *StateMachine {
			m, _ := NewStateMachine(types.NewOrderID(), types.Buy, types.Limit, 100, 1_000)
			m.Reject("test")
			return m
		},
		"expired": func(t *testing.T) *StateMachine {
			m, _ := NewStateMachine(types.NewOrderID(), types.Buy, types.Limit, 100, 1_000)
			m.Acknowledge()
			m.Expire()
			return m
		},
	}

	for name, build := range terminalMachines {
		t.Run(name, func(t *testing.T) {
			m := build(t)
			if !m.IsTerminal() {
				t.Fatalf("setup did not reach terminal state: %v", m.Status())
			}
			status := m.Status()

			if err := m.ApplyFill(1, 100); err == nil {
				t.Error("fill allowed from terminal state")
			}
			if err := m.Cancel(); err == nil {
				t.Error("cancel allowed from terminal state")
			}
			if err := m.Acknowledge(); err == nil {
				t.Error("acknowledge allowed from terminal state")
			}
			if err := m.Expire(); err == nil {
				t.Error("expire allowed from terminal state")
			}
			if m.Status() != status {
				t.Errorf("terminal status changed: %v → %v", status, m.Status())
			}
		})
	}
}

// P5: the sum of accepted fill sizes never exceeds the original size.
func TestFillConservation(t *testing.T) {
	t.Parallel()

	m, _ := NewStateMachine(types.NewOrderID(), types.Buy, types.Limit, 100, 10_000)
	m.Acknowledge()

	var total uint64
	fills := []uint64{3_000, 4_000, 5_000, 3_000, 2_000}
	for _, f := range fills {
		if err := m.ApplyFill(f, 100); err == nil {
			total += f
		}
	}
	if total > 10_000 {
		t.Errorf("accepted fills total %d > original 10000", total)
	}
	if m.Status() == types.StatusFilled && total != 10_000 {
		t.Errorf("Filled order with fills totalling %d", total)
	}
}
