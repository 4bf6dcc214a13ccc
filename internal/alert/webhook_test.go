package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestWebhookDelivery(t *testing.T) {
	t.Parallel()

	var received atomic.Uint64
	var lastBody atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec map[string]any
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("webhook body not JSON: %v", err)
		}
		lastBody.Store(rec)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := quietConfig()
	cfg.Outputs = []Output{{Webhook: &WebhookOutput{
		URL:         srv.URL,
		MinSeverity: SeverityError,
		TimeoutMS:   2000,
	}}}
	m := NewManager(cfg, testLogger())

	m.Send(New(CategoryRisk, "daily_loss", SeverityError, "limit near").
		WithDetail("daily_pnl", "-95"))
	// Below min severity: not delivered.
	m.Send(New(CategoryRisk, "heartbeat", SeverityInfo, "alive"))

	m.Flush()

	if got := received.Load(); got != 1 {
		t.Fatalf("webhook received %d posts, want 1", got)
	}
	rec, _ := lastBody.Load().(map[string]any)
	if rec["severity"] != "ERROR" || rec["message"] != "limit near" {
		t.Errorf("payload = %v", rec)
	}
}

func TestWebhookBreakerOpensOnFailures(t *testing.T) {
	t.Parallel()

	var attempts atomic.Uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := quietConfig()
	cfg.QuotaPerMinute[SeverityError] = 1000
	cfg.Outputs = []Output{{Webhook: &WebhookOutput{
		URL:         srv.URL,
		MinSeverity: SeverityError,
		TimeoutMS:   2000,
	}}}
	m := NewManager(cfg, testLogger())

	// Hammer a failing endpoint: after the failure threshold the breaker
	// opens and further deliveries are skipped without an HTTP attempt.
	for i := 0; i < 50; i++ {
		m.Send(New(CategorySystem, "degraded", SeverityError, "still failing"))
		m.Flush()
	}

	// Default threshold is 5 failures; a handful of in-flight extras can
	// land, but nowhere near all 50.
	if got := attempts.Load(); got > 10 {
		t.Errorf("endpoint saw %d attempts, want the breaker to cut off around 5", got)
	}

	// The halt latch is about criticals, not webhook health.
	if m.IsTradingHalted() {
		t.Error("webhook failures must not halt trading")
	}
}
