// Package resilience provides the process-wide safety machinery: the kill
// switch that gates all trading, and the three-state circuit breaker that
// guards outbound calls against failing backends.
package resilience

import (
	"log/slog"
	"sync"
)

// switchState is the kill switch position.
type switchState uint8

const (
	stateRunning switchState = iota
	statePaused
	stateShutdown
)

// KillSwitch is a shared, internally synchronized trading gate with three
// positions: Running, Paused, and Shutdown. Transitions are monotone toward
// Shutdown — pause and resume flip freely, but once Shutdown fires the
// switch never reopens.
type KillSwitch struct {
	mu     sync.RWMutex
	state  switchState
	reason string
	logger *slog.Logger
}

// NewKillSwitch creates a running switch.
func NewKillSwitch(logger *slog.Logger) *KillSwitch {
	return &KillSwitch{logger: logger.With("component", "killswitch")}
}

// ShouldStop reports whether shutdown has been requested. Every bounded
// wait in the system polls this between attempts.
func (k *KillSwitch) ShouldStop() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state == stateShutdown
}

// IsPaused reports whether trading is paused (but not shut down).
func (k *KillSwitch) IsPaused() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state == statePaused
}

// Pause suspends trading. No-op after shutdown.
func (k *KillSwitch) Pause() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == stateShutdown {
		return
	}
	if k.state != statePaused {
		k.state = statePaused
		k.logger.Warn("trading paused")
	}
}

// Resume lifts a pause. No-op after shutdown.
func (k *KillSwitch) Resume() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == stateShutdown {
		return
	}
	if k.state != stateRunning {
		k.state = stateRunning
		k.logger.Info("trading resumed")
	}
}

// Shutdown moves the switch to its terminal position with a reason.
// The first reason wins; later calls are ignored.
func (k *KillSwitch) Shutdown(reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == stateShutdown {
		return
	}
	k.state = stateShutdown
	k.reason = reason
	k.logger.Error("KILL SWITCH: shutdown requested", "reason", reason)
}

// ShutdownReason returns the reason recorded by the first Shutdown call,
// or empty if the switch is still open.
func (k *KillSwitch) ShutdownReason() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.reason
}
