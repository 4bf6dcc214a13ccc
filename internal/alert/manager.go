package alert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"bog/internal/resilience"
)

// Output is one delivery channel. Exactly one of the branches is active.
type Output struct {
	// Console logs through the manager's slog logger.
	Console *ConsoleOutput
	// File appends JSONL records.
	File *FileOutput
	// Webhook POSTs the alert JSON, fire-and-forget.
	Webhook *WebhookOutput
}

// ConsoleOutput logs alerts at or above MinSeverity.
type ConsoleOutput struct {
	MinSeverity Severity
}

// FileOutput appends one JSON record per alert at or above MinSeverity.
type FileOutput struct {
	Path        string
	MinSeverity Severity
}

// WebhookOutput POSTs alerts at or above MinSeverity to URL.
type WebhookOutput struct {
	URL         string
	MinSeverity Severity
	TimeoutMS   uint64
}

// ManagerConfig tunes the alert manager.
type ManagerConfig struct {
	Outputs []Output
	// QuotaPerMinute caps deliveries per severity per minute. Critical
	// alerts bypass the quota.
	QuotaPerMinute map[Severity]uint32
	// HaltOnCritical latches TradingHalted after any critical alert.
	HaltOnCritical bool
}

// DefaultManagerConfig returns console-only delivery with the production
// quotas.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Outputs: []Output{{Console: &ConsoleOutput{MinSeverity: SeverityWarning}}},
		QuotaPerMinute: map[Severity]uint32{
			SeverityInfo:     20,
			SeverityWarning:  15,
			SeverityError:    10,
			SeverityCritical: 100,
		},
		HaltOnCritical: true,
	}
}

// idState is the tracked state per alert identity.
type idState struct {
	firstSeen time.Time
	lastSeen  time.Time
	count     uint64
	lastSent  time.Time
}

// IDStats is the externally visible per-identity state.
type IDStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Count     uint64
	LastSent  time.Time
}

// Manager is the central alert sink. Shared by reference across the
// process and internally synchronized; readers sample counts cheaply under
// the read lock.
//
// Webhook delivery runs behind an operational circuit breaker: a flapping
// alerting endpoint must not burn a goroutine-and-timeout per alert while
// it is down.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	client  *resty.Client
	breaker *resilience.Breaker

	mu        sync.RWMutex
	states    map[ID]*idState
	sentBySev map[Severity][]time.Time // delivery timestamps within the last minute
	counts    map[Severity]uint64
	halted    bool

	wg sync.WaitGroup
}

// NewManager creates an alert manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger.With("component", "alerts"),
		client:    resty.New(),
		breaker:   resilience.NewBreaker(resilience.DefaultBreakerConfig(), logger),
		states:    make(map[ID]*idState),
		sentBySev: make(map[Severity][]time.Time),
		counts:    make(map[Severity]uint64),
	}
}

// Send records the alert and delivers it through every configured output,
// subject to the per-severity quota. Critical alerts always deliver; when
// one arrives over quota a meta-warning is logged alongside it.
func (m *Manager) Send(a Alert) {
	m.mu.Lock()

	now := time.Now()
	st, ok := m.states[a.ID]
	if !ok {
		st = &idState{firstSeen: now}
		m.states[a.ID] = st
	}
	st.lastSeen = now
	st.count++
	m.counts[a.Severity]++

	overQuota := m.overQuotaLocked(a.Severity, now)
	deliver := !overQuota || a.Severity == SeverityCritical
	if deliver {
		st.lastSent = now
		m.sentBySev[a.Severity] = append(m.pruneLocked(a.Severity, now), now)
	}
	if a.Severity == SeverityCritical && m.cfg.HaltOnCritical && !m.halted {
		m.halted = true
	}
	m.mu.Unlock()

	if !deliver {
		return
	}
	if overQuota {
		m.logger.Warn("critical alert delivered over quota", "alert", a.ID.String())
	}

	for _, out := range m.cfg.Outputs {
		m.deliver(a, out)
	}
}

// overQuotaLocked reports whether the per-minute quota for sev is spent.
func (m *Manager) overQuotaLocked(sev Severity, now time.Time) bool {
	quota, ok := m.cfg.QuotaPerMinute[sev]
	if !ok {
		return false
	}
	return uint32(len(m.pruneLocked(sev, now))) >= quota
}

// pruneLocked drops delivery timestamps older than one minute.
func (m *Manager) pruneLocked(sev Severity, now time.Time) []time.Time {
	window := m.sentBySev[sev]
	cutoff := now.Add(-time.Minute)
	i := 0
	for ; i < len(window); i++ {
		if window[i].After(cutoff) {
			break
		}
	}
	window = window[i:]
	m.sentBySev[sev] = window
	return window
}

func (m *Manager) deliver(a Alert, out Output) {
	switch {
	case out.Console != nil:
		if a.Severity >= out.Console.MinSeverity {
			m.logToConsole(a)
		}
	case out.File != nil:
		if a.Severity >= out.File.MinSeverity {
			if err := m.appendToFile(a, out.File.Path); err != nil {
				m.logger.Error("alert file write failed", "path", out.File.Path, "error", err)
			}
		}
	case out.Webhook != nil:
		if a.Severity >= out.Webhook.MinSeverity {
			m.postWebhook(a, out.Webhook)
		}
	}
}

func (m *Manager) logToConsole(a Alert) {
	attrs := []any{"alert", a.ID.String(), "message", a.Message}
	for k, v := range a.Details {
		attrs = append(attrs, k, v)
	}
	switch a.Severity {
	case SeverityInfo:
		m.logger.Info("ALERT", attrs...)
	case SeverityWarning:
		m.logger.Warn("ALERT", attrs...)
	default:
		m.logger.Error("ALERT", attrs...)
	}
}

// appendToFile writes one JSONL record, append-only.
func (m *Manager) appendToFile(a Alert, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	line, err := a.JSON()
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}

// postWebhook delivers off-thread so the tick path never waits on HTTP.
// Deliveries stop while the breaker is open and probe again after its
// timeout.
func (m *Manager) postWebhook(a Alert, w *WebhookOutput) {
	if !m.breaker.IsCallPermitted() {
		m.logger.Debug("webhook delivery skipped, circuit open", "alert", a.ID.String())
		return
	}

	payload, err := a.JSON()
	if err != nil {
		m.logger.Error("marshal alert for webhook", "error", err)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(w.TimeoutMS)*time.Millisecond)
		defer cancel()

		resp, err := m.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(w.URL)
		if err != nil || resp.IsError() {
			m.breaker.RecordFailure()
			m.logger.Warn("webhook delivery failed", "url", w.URL, "error", err)
			return
		}
		m.breaker.RecordSuccess()
	}()
}

// IsTradingHalted reports whether a critical alert latched the halt.
// Cleared only by ResetHalt.
func (m *Manager) IsTradingHalted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.halted
}

// ResetHalt clears the critical-alert halt latch (operator action).
func (m *Manager) ResetHalt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.logger.Info("alert halt latch cleared")
}

// Stats returns the per-identity state for id, if tracked.
func (m *Manager) Stats(id ID) (IDStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return IDStats{}, false
	}
	return IDStats{
		FirstSeen: st.firstSeen,
		LastSeen:  st.lastSeen,
		Count:     st.count,
		LastSent:  st.lastSent,
	}, true
}

// CountBySeverity returns the total alerts recorded at sev.
func (m *Manager) CountBySeverity(sev Severity) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[sev]
}

// Flush waits for in-flight webhook deliveries (shutdown path).
func (m *Manager) Flush() { m.wg.Wait() }
