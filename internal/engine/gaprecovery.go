package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bog/internal/shm"
)

var (
	// ErrGapTooLarge means the gap exceeds the recoverable bound.
	ErrGapTooLarge = errors.New("sequence gap exceeds recovery limit")

	// ErrGapRecoveryAbandoned means repeated recoveries failed and the
	// engine must halt.
	ErrGapRecoveryAbandoned = errors.New("gap recovery abandoned after consecutive failures")
)

// abandonAfterConsecutiveFailures is the streak at which ShouldAbandon
// trips.
const abandonAfterConsecutiveFailures = 5

// GapRecoveryConfig tunes automatic resynchronization after a sequence
// gap.
type GapRecoveryConfig struct {
	// AutoRecover enables recovery; when false gaps only alert.
	AutoRecover bool
	// MaxRecoverableGap bounds the gap size worth recovering; larger
	// gaps indicate something structural.
	MaxRecoverableGap uint64
	// SnapshotTimeout bounds each wait for the requested full snapshot.
	SnapshotTimeout time.Duration
	// MaxRecoveryAttempts bounds retries per gap.
	MaxRecoveryAttempts uint32
	// RecoveryRetryDelay sleeps between attempts.
	RecoveryRetryDelay time.Duration
	// PauseTradingDuringRecovery stops execution while resyncing.
	PauseTradingDuringRecovery bool
}

// DefaultGapRecoveryConfig returns the production tuning. The snapshot
// timeout is short because the producer answers a request flag within
// milliseconds; retries are cheap.
func DefaultGapRecoveryConfig() GapRecoveryConfig {
	return GapRecoveryConfig{
		AutoRecover:                true,
		MaxRecoverableGap:          10_000,
		SnapshotTimeout:            2 * time.Second,
		MaxRecoveryAttempts:        10,
		RecoveryRetryDelay:         100 * time.Millisecond,
		PauseTradingDuringRecovery: true,
	}
}

// GapRecoveryStats counts recovery outcomes.
type GapRecoveryStats struct {
	TotalGapsDetected   uint64
	TotalGapsRecovered  uint64
	TotalGapsFailed     uint64
	LargestGapRecovered uint64
	ConsecutiveFailures uint32
}

// GapRecoveryManager performs snapshot-based resync when the feed reports
// a sequence gap: save position → request snapshot → bounded wait →
// rewind → mark recovery complete at the current sequence minus one.
type GapRecoveryManager struct {
	cfg    GapRecoveryConfig
	logger *slog.Logger

	recovering bool
	stats      GapRecoveryStats
}

// NewGapRecoveryManager creates a manager.
func NewGapRecoveryManager(cfg GapRecoveryConfig, logger *slog.Logger) *GapRecoveryManager {
	return &GapRecoveryManager{cfg: cfg, logger: logger.With("component", "gap_recovery")}
}

// IsRecovering reports whether a recovery is in flight.
func (g *GapRecoveryManager) IsRecovering() bool { return g.recovering }

// ShouldPauseTrading reports whether execution must stop while the resync
// runs.
func (g *GapRecoveryManager) ShouldPauseTrading() bool {
	return g.recovering && g.cfg.PauseTradingDuringRecovery
}

// ShouldAbandon reports whether repeated failures mean the engine should
// halt via the kill switch instead of retrying forever.
func (g *GapRecoveryManager) ShouldAbandon() bool {
	return g.stats.ConsecutiveFailures >= abandonAfterConsecutiveFailures
}

// Stats returns a copy of the counters.
func (g *GapRecoveryManager) Stats() GapRecoveryStats { return g.stats }

// HandleGap runs the recovery protocol for a just-detected gap. The feed
// must be the one that reported it; currentSeq is the sequence that
// triggered the gap (the first message after the hole).
//
// Returns the recovery snapshot on success, nil when recovery is disabled,
// and an error when the gap is unrecoverable or every attempt failed.
func (g *GapRecoveryManager) HandleGap(feed *shm.Feed, gapSize, currentSeq uint64) (*shm.MarketSnapshot, error) {
	g.stats.TotalGapsDetected++
	g.logger.Warn("sequence gap detected",
		"gap_size", gapSize, "current_seq", currentSeq)

	if gapSize > g.cfg.MaxRecoverableGap {
		g.stats.TotalGapsFailed++
		g.stats.ConsecutiveFailures++
		return nil, fmt.Errorf("%w: gap %d > max %d", ErrGapTooLarge, gapSize, g.cfg.MaxRecoverableGap)
	}

	if !g.cfg.AutoRecover {
		g.logger.Warn("automatic gap recovery disabled, manual intervention required")
		return nil, nil
	}

	g.recovering = true
	defer func() { g.recovering = false }()

	start := time.Now()
	var lastErr error
	for attempt := uint32(1); attempt <= g.cfg.MaxRecoveryAttempts; attempt++ {
		snap, err := g.attemptRecovery(feed, currentSeq)
		if err == nil {
			g.stats.TotalGapsRecovered++
			g.stats.ConsecutiveFailures = 0
			if gapSize > g.stats.LargestGapRecovered {
				g.stats.LargestGapRecovered = gapSize
			}
			g.logger.Info("gap recovery successful",
				"gap_size", gapSize,
				"attempt", attempt,
				"elapsed", time.Since(start))
			return snap, nil
		}

		lastErr = err
		if attempt < g.cfg.MaxRecoveryAttempts {
			g.logger.Warn("gap recovery attempt failed, retrying",
				"attempt", attempt, "error", err)
			time.Sleep(g.cfg.RecoveryRetryDelay)
		}
	}

	g.stats.TotalGapsFailed++
	g.stats.ConsecutiveFailures++
	return nil, fmt.Errorf("gap recovery failed after %d attempts: %w",
		g.cfg.MaxRecoveryAttempts, lastErr)
}

// attemptRecovery runs one save → request → wait → rewind cycle.
//
// The gap detector resets to currentSeq−1, not the snapshot's own
// sequence: producers answer with cached snapshots whose sequence can be
// thousands behind the live stream, and resetting to that stale value
// would re-trigger the gap immediately on the next live message. The
// snapshot's book content is still valid; only its sequence is stale.
func (g *GapRecoveryManager) attemptRecovery(feed *shm.Feed, currentSeq uint64) (*shm.MarketSnapshot, error) {
	checkpoint := feed.SavePosition()

	feed.RequestSnapshot()

	snap, err := feed.WaitForSnapshot(g.cfg.SnapshotTimeout)
	if err != nil {
		return nil, fmt.Errorf("snapshot wait: %w", err)
	}

	if err := feed.RewindTo(checkpoint); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}

	resetSeq := currentSeq
	if resetSeq > 0 {
		resetSeq--
	}
	feed.MarkRecoveryComplete(resetSeq)
	g.logger.Info("gap detector reset",
		"reset_seq", resetSeq, "snapshot_seq", snap.Sequence)

	return snap, nil
}
