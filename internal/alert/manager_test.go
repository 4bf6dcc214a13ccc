package alert

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quietConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Outputs = nil
	return cfg
}

func TestIdentityStateTracking(t *testing.T) {
	t.Parallel()

	m := NewManager(quietConfig(), testLogger())
	id := ID{Category: CategoryRisk, Name: "position_limit"}

	for i := 0; i < 3; i++ {
		m.Send(New(CategoryRisk, "position_limit", SeverityWarning, "limit approached"))
	}

	st, ok := m.Stats(id)
	if !ok {
		t.Fatal("identity not tracked")
	}
	if st.Count != 3 {
		t.Errorf("count = %d, want 3", st.Count)
	}
	if st.FirstSeen.After(st.LastSeen) {
		t.Error("first_seen after last_seen")
	}
	if st.LastSent.IsZero() {
		t.Error("last_sent not recorded")
	}
}

func TestPerSeverityQuota(t *testing.T) {
	t.Parallel()

	cfg := quietConfig()
	cfg.QuotaPerMinute[SeverityWarning] = 2
	m := NewManager(cfg, testLogger())

	// Three sends, quota two: all are counted, only two delivered.
	for i := 0; i < 3; i++ {
		m.Send(New(CategorySystem, "data_stale", SeverityWarning, "feed slow"))
	}
	if got := m.CountBySeverity(SeverityWarning); got != 3 {
		t.Errorf("counted = %d, want 3 (quota limits delivery, not counting)", got)
	}
}

func TestCriticalBypassesQuota(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.jsonl")

	cfg := quietConfig()
	cfg.QuotaPerMinute[SeverityCritical] = 1
	cfg.Outputs = []Output{{File: &FileOutput{Path: path, MinSeverity: SeverityInfo}}}
	m := NewManager(cfg, testLogger())

	for i := 0; i < 5; i++ {
		m.Send(New(CategoryRisk, "dropped_fills", SeverityCritical, "fill queue overflow"))
	}

	// All five critical alerts reach the file despite a quota of one.
	if got := countLines(t, path); got != 5 {
		t.Errorf("delivered = %d, want 5 (critical always delivers)", got)
	}
}

func TestHaltOnCritical(t *testing.T) {
	t.Parallel()

	m := NewManager(quietConfig(), testLogger())
	if m.IsTradingHalted() {
		t.Fatal("halted before any alert")
	}

	m.Send(New(CategoryTrading, "reconciliation", SeverityError, "drift warning"))
	if m.IsTradingHalted() {
		t.Error("non-critical alert latched the halt")
	}

	m.Send(New(CategoryTrading, "reconciliation", SeverityCritical, "drift exceeded"))
	if !m.IsTradingHalted() {
		t.Error("critical alert did not latch the halt")
	}

	// Cleared only by explicit reset.
	m.ResetHalt()
	if m.IsTradingHalted() {
		t.Error("reset did not clear the latch")
	}
}

func TestFileOutputJSONL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.jsonl")

	cfg := quietConfig()
	cfg.Outputs = []Output{{File: &FileOutput{Path: path, MinSeverity: SeverityWarning}}}
	m := NewManager(cfg, testLogger())

	m.Send(New(CategorySystem, "gap", SeverityError, "sequence gap").
		WithDetail("gap_size", "11").
		WithDetail("spread_bps", "2"))
	// Below min severity: not written.
	m.Send(New(CategorySystem, "heartbeat", SeverityInfo, "tick"))

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("no JSONL record written")
	}

	var rec struct {
		ID struct {
			Category string `json:"category"`
			Name     string `json:"name"`
		} `json:"id"`
		Severity string            `json:"severity"`
		Message  string            `json:"message"`
		Details  map[string]string `json:"details"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ID.Category != "SYSTEM" || rec.ID.Name != "gap" || rec.Severity != "ERROR" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Details["gap_size"] != "11" {
		t.Errorf("details = %v", rec.Details)
	}

	if scanner.Scan() {
		t.Error("info alert written despite min severity warning")
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n
}
