package strategy

// Exchange fees, expressed in sub-basis points (1 sub-bp = 0.01 bp =
// 0.0001%). Sub-bp resolution matters because the venue's maker fee is a
// fractional basis point that 1-bp granularity cannot represent.
const (
	// MakerFeeSubBps is charged on posted liquidity: 0.2 bps.
	MakerFeeSubBps uint32 = 20

	// TakerFeeSubBps is charged on taken liquidity: 2 bps.
	TakerFeeSubBps uint32 = 200

	// RoundTripCostSubBps is the cost of entering passively and exiting
	// aggressively. A spread narrower than this loses money.
	RoundTripCostSubBps uint32 = MakerFeeSubBps + TakerFeeSubBps

	// SubBpsScale converts sub-basis points to a fraction: fee =
	// notional × subBps / SubBpsScale.
	SubBpsScale uint64 = 1_000_000
)

// SpreadCoversFees reports whether quoting at spreadBps clears the
// round-trip fee cost (spread is in whole bps, fees in sub-bps).
func SpreadCoversFees(spreadBps uint64) bool {
	return spreadBps*100 > uint64(RoundTripCostSubBps)
}
