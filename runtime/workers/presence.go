package workers

import (
	"context"
	"dm-relay/observability"
	"log/slog"
	"time"
)

type PresenceSource interface {
	Stats() (users int, connections int)
}

// PresenceReporterWorker publishes registry sizes and process usage on every tick.
type PresenceReporterWorker struct {
	log      *slog.Logger
	source   PresenceSource
	interval time.Duration
}

func NewPresenceReporterWorker(log *slog.Logger, source PresenceSource, interval time.Duration) *PresenceReporterWorker {
	return &PresenceReporterWorker{log: log, source: source, interval: interval}
}

func (w *PresenceReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence reporter")
			return nil
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *PresenceReporterWorker) report() {
	users, connections := w.source.Stats()
	observability.ConnectedUsers.Set(float64(users))
	observability.LiveConnections.Set(float64(connections))

	stats, err := observability.SelfStats()
	if err != nil {
		w.log.Error("Failed to collect self stats", "err", err)
		return
	}
	w.log.Debug("Presence",
		"users", users,
		"connections", connections,
		"rss_bytes", stats.RSS,
		"cpu_percent", stats.CPUPercent)
}
