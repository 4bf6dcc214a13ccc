// Package monitor exposes observability for the trading core: prometheus
// metrics and a diagnostics HTTP server with a live stats stream.
//
// Everything here is observer-only: the collectors sample the engine's
// atomics and never touch the tick path.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider is the read-only view the monitor samples. The engine and
// its components satisfy it through atomic accessors.
type StatsProvider interface {
	TickCount() uint64
	SignalCount() uint64
	PositionQuantity() int64
	RealizedPnL() int64
	DailyPnL() int64
	TradeCount() uint32
}

// Metrics bundles the prometheus instruments for one market.
type Metrics struct {
	marketID string
	provider StatsProvider

	ticks    *prometheus.Desc
	signals  *prometheus.Desc
	position *prometheus.Desc
	realized *prometheus.Desc
	daily    *prometheus.Desc
	trades   *prometheus.Desc
}

// NewMetrics creates a collector that samples provider on scrape.
func NewMetrics(marketID string, provider StatsProvider) *Metrics {
	label := []string{"market"}
	return &Metrics{
		marketID: marketID,
		provider: provider,
		ticks: prometheus.NewDesc("bog_ticks_total",
			"Ticks processed", label, nil),
		signals: prometheus.NewDesc("bog_signals_total",
			"Signals generated", label, nil),
		position: prometheus.NewDesc("bog_position_quantity",
			"Current position quantity (fixed-point 1e9)", label, nil),
		realized: prometheus.NewDesc("bog_realized_pnl",
			"Cumulative realized PnL (fixed-point 1e9)", label, nil),
		daily: prometheus.NewDesc("bog_daily_pnl",
			"Daily realized PnL (fixed-point 1e9)", label, nil),
		trades: prometheus.NewDesc("bog_trades_total",
			"Fills applied to the position", label, nil),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ticks
	ch <- m.signals
	ch <- m.position
	ch <- m.realized
	ch <- m.daily
	ch <- m.trades
}

// Collect implements prometheus.Collector by sampling the provider's
// atomics.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.ticks, prometheus.CounterValue,
		float64(m.provider.TickCount()), m.marketID)
	ch <- prometheus.MustNewConstMetric(m.signals, prometheus.CounterValue,
		float64(m.provider.SignalCount()), m.marketID)
	ch <- prometheus.MustNewConstMetric(m.position, prometheus.GaugeValue,
		float64(m.provider.PositionQuantity()), m.marketID)
	ch <- prometheus.MustNewConstMetric(m.realized, prometheus.GaugeValue,
		float64(m.provider.RealizedPnL()), m.marketID)
	ch <- prometheus.MustNewConstMetric(m.daily, prometheus.GaugeValue,
		float64(m.provider.DailyPnL()), m.marketID)
	ch <- prometheus.MustNewConstMetric(m.trades, prometheus.CounterValue,
		float64(m.provider.TradeCount()), m.marketID)
}
