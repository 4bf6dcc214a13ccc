package shm

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ringMagic identifies a bog market-data ring file.
const ringMagic uint64 = 0x626f675f72696e67 // "bog_ring"

// ringVersion is bumped on any layout change.
const ringVersion uint64 = 1

// HeaderSize is the fixed size of the ring header area preceding the
// snapshot slots. One cache line.
const HeaderSize = 64

// Header field offsets. writeIndex, producerEpoch, and snapshotRequest are
// accessed atomically by both processes.
const (
	hdrOffMagic           = 0
	hdrOffVersion         = 8
	hdrOffCapacity        = 16
	hdrOffWriteIndex      = 24 // total records ever published
	hdrOffProducerEpoch   = 32 // incremented on producer restart
	hdrOffSnapshotRequest = 40 // incremented by consumers to request a full snapshot
)

// DefaultCapacity is the default number of snapshot slots per ring
// (64k slots × 512 bytes = 32 MiB, roughly a minute of data at peak rates).
const DefaultCapacity = 65536

var (
	// ErrConnect wraps any failure to attach to the shared-memory ring.
	ErrConnect = errors.New("shared memory connect failed")

	// ErrCheckpointExpired is returned by RewindTo when the ring has
	// overwritten the checkpointed region or the producer restarted.
	ErrCheckpointExpired = errors.New("checkpoint expired: ring overwrote the saved region")

	// ErrSnapshotTimeout is returned by WaitForSnapshot on expiry.
	ErrSnapshotTimeout = errors.New("timed out waiting for full snapshot")
)

// RingPath returns the conventional shared-memory path for a market.
func RingPath(marketID uint64) string {
	return fmt.Sprintf("/dev/shm/bog_m%d", marketID)
}

// Ring is a memory-mapped snapshot ring buffer. The same type backs both
// sides: the producer appends via Publish, consumers read via readSlot.
// A Ring owns its mapping; Close unmaps it.
type Ring struct {
	data     []byte
	capacity uint64
	owner    bool // created (vs attached) — affects cleanup only
	path     string
}

// CreateRing creates (or truncates) a ring file at path with the given slot
// capacity and initializes its header. Used by the producer side and tests.
func CreateRing(path string, capacity uint64) (*Ring, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer f.Close()

	size := int64(HeaderSize) + int64(capacity)*SnapshotSize
	if err := f.Truncate(size); err != nil {
		return nil, fmt.Errorf("%w: truncate: %v", ErrConnect, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrConnect, err)
	}

	r := &Ring{data: data, capacity: capacity, owner: true, path: path}
	r.u64(hdrOffMagic).Store(ringMagic)
	r.u64(hdrOffVersion).Store(ringVersion)
	r.u64(hdrOffCapacity).Store(capacity)
	r.u64(hdrOffWriteIndex).Store(0)
	r.u64(hdrOffProducerEpoch).Add(1)
	return r, nil
}

// AttachRing maps an existing ring file read-write (consumers still write
// the snapshot_request counter).
func AttachRing(path string) (*Ring, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %v", ErrConnect, err)
	}
	if st.Size() < HeaderSize+SnapshotSize {
		return nil, fmt.Errorf("%w: ring file too small (%d bytes)", ErrConnect, st.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrConnect, err)
	}

	r := &Ring{data: data, path: path}
	if r.u64(hdrOffMagic).Load() != ringMagic {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: bad magic in %s", ErrConnect, path)
	}
	if v := r.u64(hdrOffVersion).Load(); v != ringVersion {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: ring version %d, want %d", ErrConnect, v, ringVersion)
	}
	r.capacity = r.u64(hdrOffCapacity).Load()
	expect := int64(HeaderSize) + int64(r.capacity)*SnapshotSize
	if st.Size() < expect {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: ring file truncated (%d < %d)", ErrConnect, st.Size(), expect)
	}
	return r, nil
}

// Close unmaps the ring.
func (r *Ring) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// u64 returns an atomic view of the 8-byte-aligned word at off.
// The mapping is page-aligned and every header/seqlock field sits on an
// 8-byte boundary, so the cast is safe.
func (r *Ring) u64(off int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&r.data[off]))
}

// Capacity returns the number of snapshot slots.
func (r *Ring) Capacity() uint64 { return r.capacity }

// WriteIndex returns the total number of records ever published.
func (r *Ring) WriteIndex() uint64 { return r.u64(hdrOffWriteIndex).Load() }

// ProducerEpoch returns the producer lifetime counter.
func (r *Ring) ProducerEpoch() uint64 { return r.u64(hdrOffProducerEpoch).Load() }

// SnapshotRequests returns the consumer-side snapshot request counter.
// The producer polls this and emits a full snapshot when it changes.
func (r *Ring) SnapshotRequests() uint64 { return r.u64(hdrOffSnapshotRequest).Load() }

// RequestSnapshot increments the snapshot request counter.
func (r *Ring) RequestSnapshot() { r.u64(hdrOffSnapshotRequest).Add(1) }

// slotOff returns the byte offset of the slot holding record index.
func (r *Ring) slotOff(index uint64) int {
	return HeaderSize + int(index%r.capacity)*SnapshotSize
}

// Publish appends a snapshot to the ring under the seqlock protocol:
// generation_start goes odd, the body is written, generation_end closes the
// pair, and only then does write_index advance.
func (r *Ring) Publish(s *MarketSnapshot) {
	idx := r.u64(hdrOffWriteIndex).Load()
	off := r.slotOff(idx)
	slot := r.data[off : off+SnapshotSize]

	genStart := r.u64(off + offGenerationStart)
	genEnd := r.u64(off + offGenerationEnd)

	g := genStart.Load() + 1 // odd: write in progress
	genStart.Store(g)
	s.encode(slot)
	genEnd.Store(g + 1)
	genStart.Store(g + 1)

	r.u64(hdrOffWriteIndex).Store(idx + 1)
}

// readSlot copies record index out of the ring, retrying while a writer is
// mid-update. Returns false if the slot stayed unstable after bounded
// retries (the writer lapped us; the caller should skip ahead).
func (r *Ring) readSlot(index uint64, out *MarketSnapshot) bool {
	off := r.slotOff(index)
	slot := r.data[off : off+SnapshotSize]
	genStart := r.u64(off + offGenerationStart)
	genEnd := r.u64(off + offGenerationEnd)

	for attempt := 0; attempt < 64; attempt++ {
		g1 := genStart.Load()
		if g1%2 == 1 {
			continue // writer mid-update
		}
		out.decode(slot)
		g2 := genEnd.Load()
		if g1 == g2 && genStart.Load() == g1 {
			out.GenerationStart = g1
			out.GenerationEnd = g2
			return true
		}
	}
	return false
}
