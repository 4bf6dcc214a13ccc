package resilience

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKillSwitchLifecycle(t *testing.T) {
	t.Parallel()

	ks := NewKillSwitch(testLogger())
	if ks.ShouldStop() || ks.IsPaused() {
		t.Error("new switch should be running")
	}

	ks.Pause()
	if !ks.IsPaused() || ks.ShouldStop() {
		t.Error("pause should not stop")
	}

	ks.Resume()
	if ks.IsPaused() {
		t.Error("resume failed")
	}

	ks.Shutdown("test reason")
	if !ks.ShouldStop() {
		t.Error("shutdown not observed")
	}
	if ks.ShutdownReason() != "test reason" {
		t.Errorf("reason = %q", ks.ShutdownReason())
	}
}

func TestKillSwitchShutdownIsTerminal(t *testing.T) {
	t.Parallel()

	ks := NewKillSwitch(testLogger())
	ks.Shutdown("first")

	// Monotone: no transition out of Shutdown, first reason wins.
	ks.Resume()
	if !ks.ShouldStop() {
		t.Error("resume escaped shutdown")
	}
	ks.Pause()
	if ks.IsPaused() {
		t.Error("pause overrode shutdown")
	}
	ks.Shutdown("second")
	if ks.ShutdownReason() != "first" {
		t.Errorf("reason overwritten: %q", ks.ShutdownReason())
	}
}

func testBreaker(timeout time.Duration) *Breaker {
	return NewBreaker(BreakerConfig{
		FailureThreshold: 3,
		Timeout:          timeout,
		SuccessThreshold: 2,
	}, testLogger())
}

// P9: Nf failures move Closed → Open.
func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := testBreaker(time.Hour)
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != BreakerClosed {
			t.Fatalf("opened after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("did not open at threshold")
	}
	if b.IsCallPermitted() {
		t.Error("calls permitted while open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := testBreaker(time.Hour)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess() // resets the count
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerClosed {
		t.Error("success in Closed should reset the failure counter")
	}
}

// P9: after the timeout, exactly one call performs Open → HalfOpen.
func TestBreakerTimedHalfOpen(t *testing.T) {
	t.Parallel()

	b := testBreaker(30 * time.Millisecond)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.IsCallPermitted() {
		t.Fatal("permitted before timeout")
	}

	time.Sleep(40 * time.Millisecond)
	if !b.IsCallPermitted() {
		t.Fatal("probe not permitted after timeout")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN", b.State())
	}
}

// P9: Ns successes in HalfOpen close; any failure reopens.
func TestBreakerHalfOpenOutcomes(t *testing.T) {
	t.Parallel()

	recover := func() *Breaker {
		b := testBreaker(10 * time.Millisecond)
		for i := 0; i < 3; i++ {
			b.RecordFailure()
		}
		time.Sleep(20 * time.Millisecond)
		b.IsCallPermitted() // Open → HalfOpen
		return b
	}

	b := recover()
	b.RecordSuccess()
	if b.State() != BreakerHalfOpen {
		t.Fatal("closed before success threshold")
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatal("did not close at success threshold")
	}

	b2 := recover()
	b2.RecordFailure()
	if b2.State() != BreakerOpen {
		t.Fatal("failure in HalfOpen must reopen")
	}
}

func TestBreakerIgnoresEventsWhileOpen(t *testing.T) {
	t.Parallel()

	b := testBreaker(time.Hour)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Error("events while open must be ignored")
	}
}

func TestBreakerManualControls(t *testing.T) {
	t.Parallel()

	b := testBreaker(time.Hour)
	b.ForceOpen()
	if b.State() != BreakerOpen {
		t.Error("ForceOpen failed")
	}
	b.Reset()
	if b.State() != BreakerClosed || !b.IsCallPermitted() {
		t.Error("Reset failed")
	}
}
