package strategy

import (
	"bog/internal/position"
	"bog/internal/shm"
	"bog/pkg/types"
)

// InventoryConfig tunes the inventory-skewed quoter.
type InventoryConfig struct {
	// BaseSpreadBps is the quoted spread with no inventory and calm
	// markets.
	BaseSpreadBps uint64
	// OrderSize is the quantity per side.
	OrderSize uint64
	// MaxInventory is the position magnitude at which skew saturates.
	MaxInventory uint64
	// SkewBpsAtMax shifts both quotes by this much (against the
	// inventory) at full inventory.
	SkewBpsAtMax uint64
	// VolWideningFactor adds volEMA × factor / 100 bps to the spread.
	VolWideningFactor uint64
}

// DefaultInventoryConfig returns a moderately defensive tuning.
func DefaultInventoryConfig() InventoryConfig {
	return InventoryConfig{
		BaseSpreadBps:     10,
		OrderSize:         10_000_000,
		MaxInventory:      1_000_000_000,
		SkewBpsAtMax:      8,
		VolWideningFactor: 50,
	}
}

// Inventory quotes around mid, skewing both quotes away from the side the
// book is loaded on: a long position lowers both quotes to attract sells
// and discourage buys, a short position raises them. Rising volatility
// widens the quoted spread.
type Inventory struct {
	cfg InventoryConfig
	pos *position.Position
	vol *Volatility

	lastBid uint64
	lastAsk uint64
}

// NewInventory creates the quoter. BindPosition must be called with the
// engine's position before the first tick; until then quotes carry no
// skew.
func NewInventory(cfg InventoryConfig) *Inventory {
	return &Inventory{cfg: cfg, vol: NewVolatility()}
}

// BindPosition points the quoter at the position it skews against.
func (s *Inventory) BindPosition(pos *position.Position) { s.pos = pos }

// Calculate implements Strategy.
func (s *Inventory) Calculate(snap *shm.MarketSnapshot) (types.Signal, bool) {
	bid, ask := snap.BestBidPrice, snap.BestAskPrice
	if bid == 0 || ask == 0 || ask <= bid {
		return types.Signal{}, false
	}

	mid := snap.Mid()
	volBps := s.vol.Observe(mid)

	if bid == s.lastBid && ask == s.lastAsk {
		return types.Signal{}, false
	}
	s.lastBid, s.lastAsk = bid, ask

	spreadBps := s.cfg.BaseSpreadBps + volBps*s.cfg.VolWideningFactor/100
	if !SpreadCoversFees(spreadBps) {
		return types.Signal{}, false
	}

	half := mid * spreadBps / 20_000
	if half == 0 {
		return types.Signal{}, false
	}

	// Inventory skew: shift both quotes against the position, saturating
	// at MaxInventory.
	var qty int64
	if s.pos != nil {
		qty = s.pos.Quantity()
	}
	absQty := uint64(qty)
	if qty < 0 {
		absQty = uint64(-qty)
	}
	if absQty > s.cfg.MaxInventory {
		absQty = s.cfg.MaxInventory
	}
	skewBps := s.cfg.SkewBpsAtMax * absQty / s.cfg.MaxInventory
	skew := mid * skewBps / 10_000

	quoteBid := mid - half
	quoteAsk := mid + half
	if qty > 0 {
		quoteBid -= skew
		quoteAsk -= skew
	} else if qty < 0 {
		quoteBid += skew
		quoteAsk += skew
	}

	// A fully skewed book can stop adding to the loaded side entirely.
	if qty > 0 && absQty == s.cfg.MaxInventory {
		return types.QuoteAsk(quoteAsk, s.cfg.OrderSize), true
	}
	if qty < 0 && absQty == s.cfg.MaxInventory {
		return types.QuoteBid(quoteBid, s.cfg.OrderSize), true
	}

	return types.QuoteBoth(quoteBid, quoteAsk, s.cfg.OrderSize), true
}

// Name implements Strategy.
func (s *Inventory) Name() string { return "inventory_based" }

// Reset implements Strategy.
func (s *Inventory) Reset() {
	s.vol.Reset()
	s.lastBid, s.lastAsk = 0, 0
}
