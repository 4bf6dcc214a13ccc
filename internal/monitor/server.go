package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statsSnapshot is the JSON shape served by /stats and streamed over the
// websocket.
type statsSnapshot struct {
	MarketID  string    `json:"market_id"`
	Ticks     uint64    `json:"ticks"`
	Signals   uint64    `json:"signals"`
	Position  int64     `json:"position"`
	Realized  int64     `json:"realized_pnl"`
	Daily     int64     `json:"daily_pnl"`
	Trades    uint32    `json:"trades"`
	Timestamp time.Time `json:"timestamp"`
}

// Server is the diagnostics HTTP server: /healthz, /stats, /metrics
// (prometheus), and /ws streaming stats once a second. It runs on its own
// goroutine and only reads atomics.
type Server struct {
	addr     string
	marketID string
	provider StatsProvider
	logger   *slog.Logger

	registry *prometheus.Registry
	upgrader websocket.Upgrader
	srv      *http.Server
}

// NewServer creates a diagnostics server for one market.
func NewServer(addr, marketID string, provider StatsProvider, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewMetrics(marketID, provider))

	return &Server{
		addr:     addr,
		marketID: marketID,
		provider: provider,
		logger:   logger.With("component", "monitor"),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start begins serving. Blocks until Stop or a listener error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.srv = &http.Server{Addr: s.addr, Handler: mux}
	s.logger.Info("diagnostics server listening", "addr", s.addr)

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diagnostics server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) snapshot() statsSnapshot {
	return statsSnapshot{
		MarketID:  s.marketID,
		Ticks:     s.provider.TickCount(),
		Signals:   s.provider.SignalCount(),
		Position:  s.provider.PositionQuantity(),
		Realized:  s.provider.RealizedPnL(),
		Daily:     s.provider.DailyPnL(),
		Trades:    s.provider.TradeCount(),
		Timestamp: time.Now(),
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.logger.Warn("stats encode failed", "error", err)
	}
}

// handleWS streams a stats snapshot once a second until the client
// disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}
