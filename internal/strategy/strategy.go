// Package strategy defines the strategy contract and ships the built-in
// quoting strategies.
//
// A strategy's Calculate must be pure with respect to the snapshot plus its
// own state, must never block, and targets ≤100ns in the hot path. The
// engine composes a concrete strategy at construction so the whole pipeline
// inlines; there is no dynamic dispatch on the tick path.
package strategy

import (
	"bog/internal/shm"
	"bog/pkg/types"
)

// Strategy converts market snapshots into trading signals.
type Strategy interface {
	// Calculate returns a signal, or false when the strategy has nothing
	// to say this tick.
	Calculate(s *shm.MarketSnapshot) (types.Signal, bool)

	// Name identifies the strategy in logs and stats.
	Name() string

	// Reset clears strategy state (start of day, after recovery).
	Reset()
}
