package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrReconciliationDrift is returned when the position mismatch exceeds
// the hard threshold and the configuration demands a halt.
type ErrReconciliationDrift struct {
	Drift    int64
	Internal int64
	Executor int64
	Max      uint64
}

func (e ErrReconciliationDrift) Error() string {
	return fmt.Sprintf("position reconciliation failed: drift %d exceeds max %d (internal=%d executor=%d)",
		e.Drift, e.Max, e.Internal, e.Executor)
}

// ReconcileConfig tunes position reconciliation.
type ReconcileConfig struct {
	// ReconcileEveryNFills triggers a check after this many fills.
	ReconcileEveryNFills uint32
	// AutoCorrectThreshold: drift at or below this is accepted with an
	// informational log.
	AutoCorrectThreshold uint64
	// MaxPositionMismatch: drift above AutoCorrectThreshold but at or
	// below this warns; beyond it the check fails.
	MaxPositionMismatch uint64
	// HaltOnMismatch turns a failed check into an engine-halting error.
	HaltOnMismatch bool
}

// DefaultReconcileConfig returns the production thresholds.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		ReconcileEveryNFills: 1000,
		AutoCorrectThreshold: 100_000,   // 0.0001
		MaxPositionMismatch:  1_000_000, // 0.001
		HaltOnMismatch:       true,
	}
}

// Reconciler periodically compares the internal position against the
// executor-observed position and classifies the drift.
type Reconciler struct {
	cfg    ReconcileConfig
	logger *slog.Logger

	fillsSinceCheck atomic.Uint64
	successful      atomic.Uint64
	failed          atomic.Uint64
	maxDrift        atomic.Int64
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcileConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, logger: logger.With("component", "reconciler")}
}

// OnFill counts a processed fill.
func (r *Reconciler) OnFill() {
	r.fillsSinceCheck.Add(1)
}

// ShouldReconcile reports whether enough fills accumulated.
func (r *Reconciler) ShouldReconcile() bool {
	return r.fillsSinceCheck.Load() >= uint64(r.cfg.ReconcileEveryNFills)
}

// Reconcile compares the two position views and returns the absolute
// drift. Zero drift and drift within AutoCorrectThreshold succeed; drift
// within MaxPositionMismatch warns; anything larger fails, and with
// HaltOnMismatch set the error must halt the engine.
func (r *Reconciler) Reconcile(internal, executor int64) (int64, error) {
	r.fillsSinceCheck.Store(0)

	drift := internal - executor
	if drift < 0 {
		drift = -drift
	}

	if prev := r.maxDrift.Load(); drift > prev {
		r.maxDrift.Store(drift)
	}

	switch {
	case drift == 0:
		r.successful.Add(1)
		return 0, nil

	case uint64(drift) <= r.cfg.AutoCorrectThreshold:
		r.logger.Info("small position drift auto-accepted",
			"drift", drift, "internal", internal, "executor", executor)
		r.successful.Add(1)
		return drift, nil

	case uint64(drift) <= r.cfg.MaxPositionMismatch:
		r.logger.Warn("position drift within tolerance",
			"drift", drift, "internal", internal, "executor", executor)
		r.successful.Add(1)
		return drift, nil

	default:
		r.logger.Error("position mismatch exceeds threshold",
			"drift", drift, "internal", internal, "executor", executor,
			"max", r.cfg.MaxPositionMismatch)
		r.failed.Add(1)
		if r.cfg.HaltOnMismatch {
			return drift, ErrReconciliationDrift{
				Drift:    drift,
				Internal: internal,
				Executor: executor,
				Max:      r.cfg.MaxPositionMismatch,
			}
		}
		return drift, nil
	}
}

// MaxDrift returns the largest drift ever observed.
func (r *Reconciler) MaxDrift() int64 { return r.maxDrift.Load() }

// Successes returns the count of passing reconciliations.
func (r *Reconciler) Successes() uint64 { return r.successful.Load() }

// Failures returns the count of failing reconciliations.
func (r *Reconciler) Failures() uint64 { return r.failed.Load() }
