// feedsim — a synthetic market-data producer for paper trading and local
// testing.
//
// It creates the shared-memory ring a bot instance consumes and publishes
// a random-walk order book into it: mostly incremental snapshots, a full
// snapshot on a fixed cadence, and a full snapshot whenever a consumer
// flips the snapshot-request flag (exercising the gap-recovery protocol
// end to end). Optional fault injection drops sequence numbers to force
// gaps.
package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bog/internal/shm"
)

func main() {
	var (
		marketID  = flag.Uint64("market", 1, "market ID to produce")
		ringPath  = flag.String("ring", "", "ring path (default /dev/shm/bog_m<market>)")
		rate      = flag.Int("rate", 1000, "snapshots per second")
		mid       = flag.Float64("mid", 50_000, "starting mid price")
		spreadBps = flag.Int("spread-bps", 2, "quoted spread in bps")
		fullEvery = flag.Int("full-every", 100, "publish a full snapshot every N messages")
		gapEvery  = flag.Int("gap-every", 0, "inject a sequence gap every N messages (0 = never)")
		gapSize   = flag.Int("gap-size", 10, "size of injected gaps")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	path := *ringPath
	if path == "" {
		path = shm.RingPath(*marketID)
	}
	ring, err := shm.CreateRing(path, shm.DefaultCapacity)
	if err != nil {
		logger.Error("failed to create ring", "path", path, "error", err)
		os.Exit(1)
	}
	defer ring.Close()
	logger.Info("producing market data",
		"market", *marketID, "path", path, "rate", *rate, "epoch", ring.ProducerEpoch())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	walker := newBookWalker(rng, *mid, uint64(*spreadBps))

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	var (
		sequence     uint64
		published    uint64
		lastRequests = ring.SnapshotRequests()
	)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String(), "published", published)
			return
		case <-ticker.C:
		}

		sequence++
		if *gapEvery > 0 && published > 0 && published%uint64(*gapEvery) == 0 {
			sequence += uint64(*gapSize)
			logger.Warn("injected sequence gap", "size", *gapSize, "sequence", sequence)
		}

		full := *fullEvery > 0 && published%uint64(*fullEvery) == 0
		if req := ring.SnapshotRequests(); req != lastRequests {
			lastRequests = req
			full = true
			logger.Info("snapshot request observed, publishing full snapshot",
				"requests", req, "sequence", sequence)
		}

		snap := walker.step(*marketID, sequence, full)
		ring.Publish(snap)
		published++
	}
}

// bookWalker evolves a synthetic book: the mid random-walks, the spread
// stays fixed, and depth decays away from the top.
type bookWalker struct {
	rng       *rand.Rand
	mid       uint64
	spreadBps uint64
}

func newBookWalker(rng *rand.Rand, mid float64, spreadBps uint64) *bookWalker {
	return &bookWalker{
		rng:       rng,
		mid:       uint64(mid * 1e9),
		spreadBps: spreadBps,
	}
}

func (w *bookWalker) step(marketID, sequence uint64, full bool) *shm.MarketSnapshot {
	// Random walk: ±2bps per step.
	driftBps := w.rng.Int63n(5) - 2
	if driftBps != 0 {
		delta := int64(w.mid) * driftBps / 10_000
		w.mid = uint64(int64(w.mid) + delta)
	}

	half := w.mid * w.spreadBps / 20_000
	if half == 0 {
		half = 1
	}
	bid := w.mid - half
	ask := w.mid + half

	now := uint64(time.Now().UnixNano())
	snap := &shm.MarketSnapshot{
		MarketID:       marketID,
		Sequence:       sequence,
		ExchangeTS:     now,
		LocalRecvTS:    now,
		LocalPublishTS: now,
		BestBidPrice:   bid,
		BestBidSize:    w.size(),
		BestAskPrice:   ask,
		BestAskSize:    w.size(),
		DexType:        1,
	}

	if full {
		snap.Flags = shm.FlagFullSnapshot
		tick := w.mid / 100_000 // ~0.1bp between levels
		if tick == 0 {
			tick = 1
		}
		for i := 0; i < shm.Depth; i++ {
			snap.BidPrices[i] = bid - uint64(i)*tick
			snap.BidSizes[i] = w.size() * uint64(i+1)
			snap.AskPrices[i] = ask + uint64(i)*tick
			snap.AskSizes[i] = w.size() * uint64(i+1)
		}
		snap.BidSizes[0] = snap.BestBidSize
		snap.AskSizes[0] = snap.BestAskSize
	}

	return snap
}

// size returns 0.5–2.5 units.
func (w *bookWalker) size() uint64 {
	return 500_000_000 + uint64(w.rng.Int63n(2_000_000_000))
}
