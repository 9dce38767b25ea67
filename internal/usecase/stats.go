package usecase

import (
	"context"
	"log/slog"
	"time"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
	"rssbox/internal/metrics"
)

// StatsCollector periodically refreshes the pool-level gauges (free
// accounts, pending downloads) that no single state transition can report
// on its own, mirroring a ticker that polls aggregate state rather than
// reacting to one event.
type StatsCollector struct {
	Accounts  ports.AccountRepository
	Downloads ports.DownloadRepository
	Logger    *slog.Logger
	Interval  time.Duration
}

func (s StatsCollector) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collect(ctx)
		}
	}
}

func (s StatsCollector) collect(ctx context.Context) {
	accounts, err := s.Accounts.List(ctx)
	if err != nil {
		s.Logger.Warn("stats: list accounts failed", slog.String("error", err.Error()))
	} else {
		free := 0
		for _, acc := range accounts {
			if acc.Status == domain.AccountIdle {
				free++
			}
		}
		metrics.FreeAccounts.Set(float64(free))
	}

	pending, err := s.Downloads.CountPending(ctx)
	if err != nil {
		s.Logger.Warn("stats: count pending downloads failed", slog.String("error", err.Error()))
		return
	}
	metrics.PendingDownloads.Set(float64(pending))
}
