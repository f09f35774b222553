package pricefeed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"papertrade/internal/metrics"
	"papertrade/internal/model"
)

// Walker drives the catalog's reference prices with a bounded random
// walk, emitting one tick per instrument per interval.
type Walker struct {
	catalog  *Catalog
	interval time.Duration
	volBps   int64 // max per-tick move either direction
	rng      *rand.Rand
	metrics  *metrics.Metrics // optional
	log      *slog.Logger
}

// NewWalker builds a walker over the catalog. volBps caps the per-tick
// price move in basis points; 40 means at most ±0.4% per tick.
func NewWalker(catalog *Catalog, interval time.Duration, volBps int64, m *metrics.Metrics, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	if volBps <= 0 {
		volBps = 40
	}
	return &Walker{
		catalog:  catalog,
		interval: interval,
		volBps:   volBps,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		metrics:  m,
		log:      log,
	}
}

// Run generates ticks until ctx is cancelled. Each tick is written to the
// catalog first, then sent on out; if out is full the tick is dropped
// rather than stalling the walk.
func (w *Walker) Run(ctx context.Context, out chan<- model.Tick) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("price walker started",
		slog.Int("instruments", len(w.catalog.Symbols())),
		slog.String("interval", w.interval.String()),
		slog.Int64("vol_bps", w.volBps))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("price walker stopped")
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for _, sym := range w.catalog.Symbols() {
				price, ok := w.catalog.Price(sym)
				if !ok {
					continue
				}
				next := w.step(price)
				w.catalog.SetPrice(sym, next)
				if w.metrics != nil {
					w.metrics.FeedTicksTotal.Inc()
				}
				select {
				case out <- model.Tick{Symbol: sym, Price: next, TS: now}:
				default:
					w.log.Warn("tick channel full, dropping", slog.String("symbol", sym))
				}
			}
		}
	}
}

// step moves a price by a uniform random amount within ±volBps, floored
// at one cent so the walk can never cross zero.
func (w *Walker) step(price int64) int64 {
	bps := w.rng.Int63n(2*w.volBps+1) - w.volBps
	next := price + price*bps/10000
	if next < 1 {
		next = 1
	}
	return next
}
