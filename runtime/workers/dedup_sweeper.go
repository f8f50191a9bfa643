package workers

import (
	"context"
	"dm-relay/observability"
	"log/slog"
	"time"
)

// Sweeper is implemented by dedup windows holding entries in process memory.
type Sweeper interface {
	Sweep(now time.Time) int
}

// DedupSweeperWorker reclaims expired dedup entries. Lookups already ignore them.
type DedupSweeperWorker struct {
	log      *slog.Logger
	window   Sweeper
	interval time.Duration
}

func NewDedupSweeperWorker(log *slog.Logger, window Sweeper, interval time.Duration) *DedupSweeperWorker {
	return &DedupSweeperWorker{log: log, window: window, interval: interval}
}

func (w *DedupSweeperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping dedup sweeper")
			return nil
		case now := <-ticker.C:
			if swept := w.window.Sweep(now); swept > 0 {
				observability.DedupSwept.Add(float64(swept))
				w.log.Debug("Dedup entries swept", "count", swept)
			}
		}
	}
}
