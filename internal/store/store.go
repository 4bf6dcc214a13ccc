// Package store provides crash-safe persistence for position snapshots
// and end-of-run engine statistics using JSON files.
//
// Each market gets pos_<marketID>.json and stats_<marketID>.json. Writes
// use atomic file replacement (write to .tmp, then rename) so a crash
// mid-save never leaves a partial file. The bot saves both on shutdown;
// it does not load them back at startup.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PositionSnapshot is the persisted form of a position. All money fields
// are 9-decimal fixed point, matching the in-memory representation.
type PositionSnapshot struct {
	Quantity    int64     `json:"quantity"`
	EntryPrice  uint64    `json:"entry_price"`
	RealizedPnL int64     `json:"realized_pnl"`
	DailyPnL    int64     `json:"daily_pnl"`
	TradeCount  uint32    `json:"trade_count"`
	SavedAt     time.Time `json:"saved_at"`
}

// RunStats is the persisted form of an engine run's statistics.
type RunStats struct {
	TicksProcessed   uint64    `json:"ticks_processed"`
	SignalsGenerated uint64    `json:"signals_generated"`
	FillsApplied     uint64    `json:"fills_applied"`
	FinalPosition    int64     `json:"final_position"`
	RealizedPnL      int64     `json:"realized_pnl"`
	GapsRecovered    uint64    `json:"gaps_recovered"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Store persists run state to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SavePosition atomically persists the position snapshot for a market.
func (s *Store) SavePosition(marketID uint64, pos PositionSnapshot) error {
	pos.SavedAt = time.Now()
	return s.writeJSON(fmt.Sprintf("pos_%d.json", marketID), pos)
}

// LoadPosition restores a market's position snapshot from disk.
// Returns nil, nil if none exists (fresh market).
func (s *Store) LoadPosition(marketID uint64) (*PositionSnapshot, error) {
	var pos PositionSnapshot
	ok, err := s.readJSON(fmt.Sprintf("pos_%d.json", marketID), &pos)
	if err != nil || !ok {
		return nil, err
	}
	return &pos, nil
}

// SaveStats atomically persists the final statistics of a run.
func (s *Store) SaveStats(marketID uint64, stats RunStats) error {
	stats.FinishedAt = time.Now()
	return s.writeJSON(fmt.Sprintf("stats_%d.json", marketID), stats)
}

// LoadStats restores the previous run's statistics, nil if none.
func (s *Store) LoadStats(marketID uint64) (*RunStats, error) {
	var stats RunStats
	ok, err := s.readJSON(fmt.Sprintf("stats_%d.json", marketID), &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

// writeJSON writes to a .tmp file first, then renames over the target so
// the file is never left in a partial state.
func (s *Store) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func (s *Store) readJSON(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}
