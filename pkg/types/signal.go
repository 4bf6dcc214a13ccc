package types

import "fmt"

// SignalKind discriminates the Signal tagged union.
type SignalKind uint8

const (
	SignalNoAction SignalKind = iota
	SignalCancelAll
	SignalQuoteBoth
	SignalQuoteBid
	SignalQuoteAsk
	SignalTakePosition
)

func (k SignalKind) String() string {
	switch k {
	case SignalNoAction:
		return "NO_ACTION"
	case SignalCancelAll:
		return "CANCEL_ALL"
	case SignalQuoteBoth:
		return "QUOTE_BOTH"
	case SignalQuoteBid:
		return "QUOTE_BID"
	case SignalQuoteAsk:
		return "QUOTE_ASK"
	case SignalTakePosition:
		return "TAKE_POSITION"
	}
	return "UNKNOWN"
}

// Signal is the strategy's instruction to the executor. Actionable variants
// always carry Size > 0; the field meanings depend on Kind:
//
//	QuoteBoth:    Bid, Ask, Size
//	QuoteBid:     Bid, Size
//	QuoteAsk:     Ask, Size
//	TakePosition: Side, Size (market order)
//
// All prices and sizes are 9-decimal fixed point.
type Signal struct {
	Kind SignalKind
	Bid  uint64
	Ask  uint64
	Size uint64
	Side Side
}

// NoAction returns the do-nothing signal.
func NoAction() Signal { return Signal{Kind: SignalNoAction} }

// CancelAll returns the pull-all-quotes signal.
func CancelAll() Signal { return Signal{Kind: SignalCancelAll} }

// QuoteBoth quotes a bid and an ask of the same size.
func QuoteBoth(bid, ask, size uint64) Signal {
	return Signal{Kind: SignalQuoteBoth, Bid: bid, Ask: ask, Size: size}
}

// QuoteBid quotes only the bid side.
func QuoteBid(price, size uint64) Signal {
	return Signal{Kind: SignalQuoteBid, Bid: price, Size: size}
}

// QuoteAsk quotes only the ask side.
func QuoteAsk(price, size uint64) Signal {
	return Signal{Kind: SignalQuoteAsk, Ask: price, Size: size}
}

// TakePosition crosses the spread with a market order.
func TakePosition(side Side, size uint64) Signal {
	return Signal{Kind: SignalTakePosition, Side: side, Size: size}
}

// RequiresAction reports whether the executor has anything to do.
func (s Signal) RequiresAction() bool { return s.Kind != SignalNoAction }

// IsQuote reports whether the signal posts passive liquidity.
func (s Signal) IsQuote() bool {
	switch s.Kind {
	case SignalQuoteBoth, SignalQuoteBid, SignalQuoteAsk:
		return true
	}
	return false
}

func (s Signal) String() string {
	switch s.Kind {
	case SignalQuoteBoth:
		return fmt.Sprintf("QUOTE_BOTH bid=%d ask=%d size=%d", s.Bid, s.Ask, s.Size)
	case SignalQuoteBid:
		return fmt.Sprintf("QUOTE_BID price=%d size=%d", s.Bid, s.Size)
	case SignalQuoteAsk:
		return fmt.Sprintf("QUOTE_ASK price=%d size=%d", s.Ask, s.Size)
	case SignalTakePosition:
		return fmt.Sprintf("TAKE_POSITION side=%s size=%d", s.Side, s.Size)
	default:
		return s.Kind.String()
	}
}
