package executor

import (
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"bog/internal/order"
	"bog/internal/position"
	"bog/internal/risk"
	"bog/internal/strategy"
	"bog/pkg/types"
)

// MaxPendingFills bounds the fill queue so a stalled consumer cannot grow
// memory without bound.
const MaxPendingFills = 1024

// OverflowPolicy selects what happens when the fill queue is full.
type OverflowPolicy uint8

const (
	// OverflowReject fails the Execute call that produced the fill.
	OverflowReject OverflowPolicy = iota
	// OverflowEvictOldest drops the oldest pending fill to make room.
	OverflowEvictOldest
)

// SimulatedConfig tunes fill realism.
type SimulatedConfig struct {
	// EnableQueueModeling assumes each order joins the back of a FIFO
	// queue at its level.
	EnableQueueModeling bool
	// EnablePartialFills fills a probability-scaled portion rather than
	// everything.
	EnablePartialFills bool
	// FrontOfQueueFillRate and BackOfQueueFillRate bound the linearly
	// interpolated fill fraction by queue position.
	FrontOfQueueFillRate float64
	BackOfQueueFillRate  float64

	// NetworkLatency and ExchangeLatency delay fill visibility.
	NetworkLatency  time.Duration
	ExchangeLatency time.Duration

	// SlippageBps worsens market-order fill prices.
	SlippageBps uint64

	// MakerFeeSubBps and TakerFeeSubBps price the two fee classes.
	MakerFeeSubBps uint32
	TakerFeeSubBps uint32

	// Overflow selects the full-queue policy.
	Overflow OverflowPolicy
}

// InstantConfig fills every order completely at its limit price with no
// latency. Development and debugging.
func InstantConfig() SimulatedConfig {
	return SimulatedConfig{
		FrontOfQueueFillRate: 1.0,
		BackOfQueueFillRate:  1.0,
		MakerFeeSubBps:       strategy.MakerFeeSubBps,
		TakerFeeSubBps:       strategy.TakerFeeSubBps,
	}
}

// RealisticConfig models queue position, partial fills, and latency.
// Backtesting.
func RealisticConfig() SimulatedConfig {
	return SimulatedConfig{
		EnableQueueModeling:  true,
		EnablePartialFills:   true,
		FrontOfQueueFillRate: 0.8,
		BackOfQueueFillRate:  0.4,
		NetworkLatency:       500 * time.Microsecond,
		ExchangeLatency:      2 * time.Millisecond,
		SlippageBps:          1,
		MakerFeeSubBps:       strategy.MakerFeeSubBps,
		TakerFeeSubBps:       strategy.TakerFeeSubBps,
	}
}

// ConservativeConfig underfills aggressively. Stress testing.
func ConservativeConfig() SimulatedConfig {
	cfg := RealisticConfig()
	cfg.FrontOfQueueFillRate = 0.6
	cfg.BackOfQueueFillRate = 0.2
	return cfg
}

// queueSlot tracks an order's assumed FIFO position at its price level.
type queueSlot struct {
	priceLevel uint64
	// sizeAheadRatio: 0 = front of queue, 1 = back. Orders join at the
	// back, so this starts (and stays) at 1.
	sizeAheadRatio float64
}

// delayedFill is a fill waiting out its simulated latency.
type delayedFill struct {
	fill    types.Fill
	readyAt time.Time
}

// Simulated is the paper-trading executor. Orders live as FSM wrappers in
// a map; generated fills land on a bounded queue drained by GetFills.
// Overflow is never silent: the dropped counter rises and the configured
// policy either errors the Execute call or evicts the oldest fill.
//
// Owned by the engine thread; the fill channel is the only cross-thread
// surface.
type Simulated struct {
	cfg    SimulatedConfig
	logger *slog.Logger

	orders map[types.OrderID]*order.StateMachine
	queues map[types.OrderID]queueSlot

	fills   chan types.Fill
	delayed []delayedFill

	limits    risk.Limits
	preTrade  *risk.PreTradeValidator
	rateLimit *risk.RateLimiter

	lastBid uint64
	lastAsk uint64

	totalFills   uint64
	droppedFills uint64
}

// NewSimulated wires the executor with its internal risk chain.
func NewSimulated(cfg SimulatedConfig, limits risk.Limits, preTrade *risk.PreTradeValidator,
	rateLimit *risk.RateLimiter, logger *slog.Logger) *Simulated {

	return &Simulated{
		cfg:       cfg,
		logger:    logger.With("component", "sim_executor"),
		orders:    make(map[types.OrderID]*order.StateMachine),
		queues:    make(map[types.OrderID]queueSlot),
		fills:     make(chan types.Fill, MaxPendingFills),
		limits:    limits,
		preTrade:  preTrade,
		rateLimit: rateLimit,
	}
}

// ObserveMarket records reference prices for market-order pricing and the
// pre-trade distance check. Implements MarketObserver.
func (e *Simulated) ObserveMarket(bestBid, bestAsk uint64) {
	e.lastBid, e.lastAsk = bestBid, bestAsk
}

// Execute implements Executor. The internal chain per actionable signal:
// pre-signal risk limits → rate limiter → pre-trade gate → placement.
func (e *Simulated) Execute(sig types.Signal, pos *position.Position) error {
	if err := e.limits.ValidateSignal(sig, pos); err != nil {
		return err
	}

	switch sig.Kind {
	case types.SignalNoAction:
		return nil
	case types.SignalCancelAll:
		return e.CancelAll()
	case types.SignalQuoteBoth:
		if !e.rateLimit.AllowN(2) {
			return ErrRateLimited
		}
		if err := e.placeLimit(types.Buy, sig.Bid, sig.Size); err != nil {
			return err
		}
		return e.placeLimit(types.Sell, sig.Ask, sig.Size)
	case types.SignalQuoteBid:
		if !e.rateLimit.Allow() {
			return ErrRateLimited
		}
		return e.placeLimit(types.Buy, sig.Bid, sig.Size)
	case types.SignalQuoteAsk:
		if !e.rateLimit.Allow() {
			return ErrRateLimited
		}
		return e.placeLimit(types.Sell, sig.Ask, sig.Size)
	case types.SignalTakePosition:
		if !e.rateLimit.Allow() {
			return ErrRateLimited
		}
		return e.placeMarket(sig.Side, sig.Size)
	}
	return nil
}

// placeLimit posts a passive order and simulates its fill as maker flow.
func (e *Simulated) placeLimit(side types.Side, price, size uint64) error {
	if res := e.preTrade.Validate(price, size, e.mid()); !res.Allowed() {
		return fmt.Errorf("pre-trade rejected: %s", res)
	}

	m, err := order.NewStateMachine(types.NewOrderID(), side, types.Limit, price, size)
	if err != nil {
		return err
	}
	if err := m.Acknowledge(); err != nil {
		return err
	}

	id := m.Data().ID
	e.orders[id] = m
	if e.cfg.EnableQueueModeling {
		e.queues[id] = queueSlot{priceLevel: price, sizeAheadRatio: 1.0}
	}

	return e.simulateFill(m, price, e.cfg.MakerFeeSubBps)
}

// placeMarket crosses the spread at the observed reference price, with
// slippage, as taker flow.
func (e *Simulated) placeMarket(side types.Side, size uint64) error {
	ref := e.lastAsk
	if side == types.Sell {
		ref = e.lastBid
	}
	if ref == 0 {
		return ErrNoMarketReference
	}

	fillPrice := e.applySlippage(ref, side)
	if res := e.preTrade.Validate(fillPrice, size, e.mid()); !res.Allowed() {
		return fmt.Errorf("pre-trade rejected: %s", res)
	}

	m, err := order.NewStateMachine(types.NewOrderID(), side, types.Market, fillPrice, size)
	if err != nil {
		return err
	}
	if err := m.Acknowledge(); err != nil {
		return err
	}
	e.orders[m.Data().ID] = m

	return e.simulateFill(m, fillPrice, e.cfg.TakerFeeSubBps)
}

// simulateFill generates the (possibly partial) fill for a just-placed
// order and enqueues it.
func (e *Simulated) simulateFill(m *order.StateMachine, price uint64, feeSubBps uint32) error {
	data := m.Data()
	remaining := m.Remaining()

	fillSize := remaining
	if e.cfg.EnablePartialFills {
		p := e.fillProbability(data.ID)
		fillSize = scaleByRatio(remaining, p)
		if fillSize == 0 {
			// Simulated queue never reached us this round; the order
			// rests unfilled.
			return nil
		}
	}

	if err := m.ApplyFill(fillSize, price); err != nil {
		return fmt.Errorf("apply simulated fill: %w", err)
	}

	fill := types.NewFill(data.ID, data.Side, price, fillSize)
	fill.Timestamp = fill.Timestamp.Add(e.cfg.NetworkLatency + e.cfg.ExchangeLatency)
	fill = fill.WithFee(feeOn(fill.Notional(), feeSubBps))

	e.totalFills++
	return e.enqueue(fill)
}

// enqueue places a fill on the bounded queue, honoring the overflow
// policy. Dropping is always counted, never silent.
func (e *Simulated) enqueue(fill types.Fill) error {
	if lat := e.cfg.NetworkLatency + e.cfg.ExchangeLatency; lat > 0 {
		e.delayed = append(e.delayed, delayedFill{fill: fill, readyAt: time.Now().Add(lat)})
		return nil
	}
	return e.push(fill)
}

func (e *Simulated) push(fill types.Fill) error {
	select {
	case e.fills <- fill:
		return nil
	default:
	}

	e.droppedFills++
	e.logger.Warn("fill queue overflow",
		"order", fill.OrderID, "dropped_total", e.droppedFills, "capacity", MaxPendingFills)

	if e.cfg.Overflow == OverflowReject {
		return fmt.Errorf("%w: %d fills dropped", ErrFillQueueOverflow, e.droppedFills)
	}

	// Evict the oldest pending fill and retry once.
	select {
	case <-e.fills:
	default:
	}
	select {
	case e.fills <- fill:
		return nil
	default:
		return fmt.Errorf("%w: queue full after eviction", ErrFillQueueOverflow)
	}
}

// fillProbability interpolates between the front and back of queue rates
// by the order's assumed position.
func (e *Simulated) fillProbability(id types.OrderID) float64 {
	if !e.cfg.EnablePartialFills {
		return 1.0
	}
	slot, ok := e.queues[id]
	if !ok {
		return 1.0
	}
	front := e.cfg.FrontOfQueueFillRate
	back := e.cfg.BackOfQueueFillRate
	return front + (back-front)*slot.sizeAheadRatio
}

func (e *Simulated) applySlippage(price uint64, side types.Side) uint64 {
	if e.cfg.SlippageBps == 0 {
		return price
	}
	slip := price * e.cfg.SlippageBps / 10_000
	if side == types.Buy {
		return price + slip // pay more
	}
	return price - slip // receive less
}

func (e *Simulated) mid() uint64 {
	if e.lastBid == 0 || e.lastAsk == 0 {
		return 0
	}
	return e.lastBid/2 + e.lastAsk/2 + (e.lastBid%2+e.lastAsk%2)/2
}

// CancelOrder cancels one active order.
func (e *Simulated) CancelOrder(id types.OrderID) error {
	m, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if !m.IsActive() {
		return fmt.Errorf("%w: %s is %s", ErrOrderNotActive, id, m.Status())
	}
	if err := m.Cancel(); err != nil {
		return err
	}
	delete(e.queues, id)
	return nil
}

// CancelAll implements Executor.
func (e *Simulated) CancelAll() error {
	cancelled := 0
	for id, m := range e.orders {
		if m.IsActive() {
			if err := m.Cancel(); err != nil {
				return err
			}
			delete(e.queues, id)
			cancelled++
		}
	}
	if cancelled > 0 {
		e.logger.Info("cancelled all orders", "count", cancelled)
	}
	return nil
}

// GetFills implements Executor: drains every queued fill, promoting any
// latency-delayed fills that have come due.
func (e *Simulated) GetFills() []types.Fill {
	// Promote due delayed fills first.
	if len(e.delayed) > 0 {
		now := time.Now()
		kept := e.delayed[:0]
		for _, d := range e.delayed {
			if now.Before(d.readyAt) {
				kept = append(kept, d)
				continue
			}
			if err := e.push(d.fill); err != nil {
				// Counted by push; the fill is lost and the engine
				// halts on the dropped counter.
				continue
			}
		}
		e.delayed = kept
	}

	if len(e.fills) == 0 {
		return nil
	}
	out := make([]types.Fill, 0, len(e.fills))
	for {
		select {
		case f := <-e.fills:
			out = append(out, f)
		default:
			return out
		}
	}
}

// DroppedFillCount implements Executor.
func (e *Simulated) DroppedFillCount() uint64 { return e.droppedFills }

// OpenExposure implements Executor: unfilled quantity on each side across
// active orders.
func (e *Simulated) OpenExposure() (long, short uint64) {
	for _, m := range e.orders {
		if !m.IsActive() {
			continue
		}
		if m.Data().Side == types.Buy {
			long += m.Remaining()
		} else {
			short += m.Remaining()
		}
	}
	return long, short
}

// Name implements Executor.
func (e *Simulated) Name() string { return "simulated" }

// TotalFills returns the number of fills generated (telemetry).
func (e *Simulated) TotalFills() uint64 { return e.totalFills }

// PendingFillCount returns the queue depth (telemetry).
func (e *Simulated) PendingFillCount() int { return len(e.fills) + len(e.delayed) }

// OrderStatus reports the lifecycle state of a tracked order.
func (e *Simulated) OrderStatus(id types.OrderID) (types.OrderStatus, bool) {
	m, ok := e.orders[id]
	if !ok {
		return 0, false
	}
	return m.Status(), true
}

// ActiveOrderCount returns how many orders can still trade.
func (e *Simulated) ActiveOrderCount() int {
	n := 0
	for _, m := range e.orders {
		if m.IsActive() {
			n++
		}
	}
	return n
}

// scaleByRatio multiplies a fixed-point size by a [0,1] float without
// drifting through float64 for the common exact cases.
func scaleByRatio(size uint64, ratio float64) uint64 {
	if ratio >= 1.0 {
		return size
	}
	if ratio <= 0 {
		return 0
	}
	// ratio with 6 decimal digits of resolution is plenty for fill
	// modeling and keeps the math in integers.
	r := uint64(ratio * 1_000_000)
	hi, lo := bits.Mul64(size, r)
	q, _ := bits.Div64(hi, lo, 1_000_000)
	return q
}

// feeOn computes notional × feeSubBps / 1e6.
func feeOn(notional uint64, feeSubBps uint32) uint64 {
	hi, lo := bits.Mul64(notional, uint64(feeSubBps))
	if hi >= strategy.SubBpsScale {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, strategy.SubBpsScale)
	return q
}
