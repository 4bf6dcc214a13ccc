package shm

import (
	"fmt"
	"log/slog"
	"time"
)

// Freshness classifies how recently the feed delivered data. The state
// advances by wall clock on every consumer call, independent of whether a
// message actually arrived.
type Freshness uint8

const (
	Fresh Freshness = iota
	Warning
	Stale
	Offline
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "FRESH"
	case Warning:
		return "WARNING"
	case Stale:
		return "STALE"
	case Offline:
		return "OFFLINE"
	}
	return "UNKNOWN"
}

// FeedConfig tunes the consumer's freshness thresholds and polling.
type FeedConfig struct {
	// WarningAfter: no message for this long → Warning.
	WarningAfter time.Duration
	// StaleAfter: no message for this long → Stale (execution skipped).
	StaleAfter time.Duration
	// OfflineAfter: no message for this long → Offline.
	OfflineAfter time.Duration
	// PollInterval is the sleep between polls in blocking waits.
	PollInterval time.Duration
}

// DefaultFeedConfig returns the production thresholds.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		WarningAfter: 500 * time.Millisecond,
		StaleAfter:   2 * time.Second,
		OfflineAfter: 10 * time.Second,
		PollInterval: time.Millisecond,
	}
}

// ConsumerStats counts consumer-side feed activity.
type ConsumerStats struct {
	TotalReads      uint64
	SuccessfulReads uint64
	EmptyReads      uint64
	SequenceGaps    uint64
	EpochChanges    uint64
	LastSequence    uint64
}

// Checkpoint is an opaque replay handle bound to the consumer cursor at the
// moment SavePosition was called. It is only valid while the ring still
// holds that region.
type Checkpoint struct {
	index uint64
	epoch uint64
}

// Feed consumes one market's snapshot ring. It owns the consumer cursor;
// snapshots are copied out so downstream code never aliases shared memory.
// Not safe for concurrent use — the engine thread owns it.
type Feed struct {
	ring     *Ring
	cfg      FeedConfig
	logger   *slog.Logger
	marketID uint64

	readIndex uint64
	lastSeq   uint64
	lastEpoch uint64

	lastMsgAt time.Time
	freshness Freshness

	gapPending   bool
	lastGapSize  uint64
	epochPending bool

	stats ConsumerStats
}

// Connect attaches to the conventional ring path for marketID.
func Connect(marketID uint64, cfg FeedConfig, logger *slog.Logger) (*Feed, error) {
	return ConnectPath(RingPath(marketID), marketID, cfg, logger)
}

// ConnectPath attaches to a ring at an explicit path (tests, replay files).
// The consumer cursor starts at the current write position: only messages
// published after attach are delivered.
func ConnectPath(path string, marketID uint64, cfg FeedConfig, logger *slog.Logger) (*Feed, error) {
	ring, err := AttachRing(path)
	if err != nil {
		return nil, err
	}
	f := &Feed{
		ring:      ring,
		cfg:       cfg,
		logger:    logger.With("component", "feed", "market", marketID),
		marketID:  marketID,
		readIndex: ring.WriteIndex(),
		lastEpoch: ring.ProducerEpoch(),
		lastMsgAt: time.Now(),
		freshness: Fresh,
	}
	f.logger.Info("attached to market data ring",
		"path", path, "capacity", ring.Capacity(), "epoch", f.lastEpoch)
	return f, nil
}

// Close detaches from the ring.
func (f *Feed) Close() error { return f.ring.Close() }

// TryRecv returns at most one snapshot and never blocks. A nil return with
// nil error means no message was available. Sequence gaps and epoch changes
// are tracked as side effects and surfaced exactly once via GapDetected and
// EpochChanged.
func (f *Feed) TryRecv() (*MarketSnapshot, error) {
	f.stats.TotalReads++
	now := time.Now()

	// Epoch change: the producer restarted. Sequence numbering resets, so
	// a regression across the boundary is not a gap, and the write index
	// restarted too — the cursor must jump to the new stream's position
	// or the ring would look empty until it catches up.
	if epoch := f.ring.ProducerEpoch(); epoch != f.lastEpoch {
		f.logger.Warn("producer epoch change detected",
			"old_epoch", f.lastEpoch, "new_epoch", epoch)
		f.lastEpoch = epoch
		f.lastSeq = 0
		f.epochPending = true
		f.stats.EpochChanges++
		if wi := f.ring.WriteIndex(); f.readIndex > wi {
			f.readIndex = 0
		}
	}

	wi := f.ring.WriteIndex()
	if f.readIndex >= wi {
		f.stats.EmptyReads++
		f.advanceFreshness(now)
		return nil, nil
	}

	// Lapped: the producer overwrote records we never read. Jump to the
	// oldest still-valid slot; the sequence check below reports the gap.
	if wi-f.readIndex > f.ring.Capacity() {
		f.readIndex = wi - f.ring.Capacity()
	}

	var snap MarketSnapshot
	if !f.ring.readSlot(f.readIndex, &snap) {
		// Writer lapped us mid-copy; skip this slot.
		f.readIndex++
		f.stats.EmptyReads++
		f.advanceFreshness(now)
		return nil, nil
	}
	f.readIndex++
	f.stats.SuccessfulReads++
	f.lastMsgAt = now
	f.freshness = Fresh

	// Gap detection: strictly monotonic sequence within an epoch.
	if f.lastSeq != 0 && snap.Sequence > f.lastSeq+1 {
		gap := snap.Sequence - (f.lastSeq + 1)
		f.stats.SequenceGaps++
		f.gapPending = true
		f.lastGapSize = gap
		f.logger.Warn("sequence gap detected",
			"expected", f.lastSeq+1, "received", snap.Sequence, "gap_size", gap)
	}
	f.lastSeq = snap.Sequence
	f.stats.LastSequence = snap.Sequence

	return &snap, nil
}

func (f *Feed) advanceFreshness(now time.Time) {
	age := now.Sub(f.lastMsgAt)
	switch {
	case age >= f.cfg.OfflineAfter:
		f.freshness = Offline
	case age >= f.cfg.StaleAfter:
		f.freshness = Stale
	case age >= f.cfg.WarningAfter:
		f.freshness = Warning
	default:
		f.freshness = Fresh
	}
}

// Freshness returns the current freshness state.
func (f *Feed) Freshness() Freshness { return f.freshness }

// IsFresh reports whether execution on this data is safe (Fresh or Warning).
func (f *Feed) IsFresh() bool { return f.freshness <= Warning }

// GapDetected reports, exactly once per gap, that a sequence gap occurred.
// The flag is consumed by the call.
func (f *Feed) GapDetected() bool {
	g := f.gapPending
	f.gapPending = false
	return g
}

// LastGapSize returns the size of the most recently detected gap.
func (f *Feed) LastGapSize() uint64 { return f.lastGapSize }

// EpochChanged reports, exactly once per restart, that the producer epoch
// advanced. The flag is consumed by the call.
func (f *Feed) EpochChanged() bool {
	e := f.epochPending
	f.epochPending = false
	return e
}

// QueueDepth returns the number of unread records currently buffered.
func (f *Feed) QueueDepth() uint64 {
	wi := f.ring.WriteIndex()
	if wi <= f.readIndex {
		return 0
	}
	return wi - f.readIndex
}

// Stats returns a copy of the consumer statistics.
func (f *Feed) Stats() ConsumerStats { return f.stats }

// LastSequence returns the last sequence number accepted.
func (f *Feed) LastSequence() uint64 { return f.lastSeq }

// UnreadLast pushes the most recently delivered snapshot back so it is
// delivered again by the next read (or a rewound replay). Sequence
// tracking is left as-is: the pushed-back message will not re-report its
// gap. Used by gap recovery so the gap-triggering message is reprocessed
// after the resync.
func (f *Feed) UnreadLast() {
	if f.readIndex > 0 {
		f.readIndex--
	}
}

// ————————————————————————————————————————————————————————————————————————
// Snapshot protocol
// ————————————————————————————————————————————————————————————————————————

// SavePosition returns a replayable checkpoint bound to the current
// consumer cursor.
func (f *Feed) SavePosition() Checkpoint {
	return Checkpoint{index: f.readIndex, epoch: f.lastEpoch}
}

// RequestSnapshot flips the request flag in the shared header; the producer
// observes it and emits a full snapshot.
func (f *Feed) RequestSnapshot() {
	f.ring.RequestSnapshot()
	f.logger.Info("snapshot requested", "requests", f.ring.SnapshotRequests())
}

// WaitForSnapshot blocks (bounded by timeout) for the next snapshot whose
// full-snapshot flag is set. Intermediate incremental snapshots are consumed
// and discarded. Returns ErrSnapshotTimeout on expiry.
func (f *Feed) WaitForSnapshot(timeout time.Duration) (*MarketSnapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snap, err := f.TryRecv()
		if err != nil {
			return nil, err
		}
		if snap != nil && snap.IsFullSnapshot() {
			return snap, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w (waited %v)", ErrSnapshotTimeout, timeout)
		}
		if snap == nil {
			time.Sleep(f.cfg.PollInterval)
		}
	}
}

// RewindTo repositions the consumer cursor at a previously saved
// checkpoint. Fails with ErrCheckpointExpired when the ring has overwritten
// that region or the producer restarted since the save.
func (f *Feed) RewindTo(cp Checkpoint) error {
	if cp.epoch != f.lastEpoch {
		return fmt.Errorf("%w: producer epoch changed (%d → %d)",
			ErrCheckpointExpired, cp.epoch, f.lastEpoch)
	}
	wi := f.ring.WriteIndex()
	if wi > cp.index && wi-cp.index > f.ring.Capacity() {
		return fmt.Errorf("%w: %d records behind, capacity %d",
			ErrCheckpointExpired, wi-cp.index, f.ring.Capacity())
	}
	f.readIndex = cp.index
	return nil
}

// MarkRecoveryComplete resets gap tracking so the next message after seq is
// accepted without re-triggering a gap.
func (f *Feed) MarkRecoveryComplete(seq uint64) {
	f.lastSeq = seq
	f.gapPending = false
}

// InitializeWithSnapshot is the startup composition: request a full
// snapshot and wait (bounded) for it to arrive.
func (f *Feed) InitializeWithSnapshot(timeout time.Duration) (*MarketSnapshot, error) {
	f.RequestSnapshot()
	return f.WaitForSnapshot(timeout)
}
