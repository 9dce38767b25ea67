package usecase

import (
	"context"
	"log/slog"
	"time"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
	"rssbox/internal/metrics"
)

// Reaper reclaims Accounts and Downloads left leased by a worker that has
// stopped heartbeating, and forgets that worker's liveness record. Running
// it twice in a row with no new stale workers is a no-op, which keeps the
// reclaim idempotent under overlapping ticks.
type Reaper struct {
	Workers   ports.WorkerRepository
	Accounts  ports.AccountRepository
	Downloads ports.DownloadRepository
	Logger    *slog.Logger
	Interval  time.Duration
	// StaleAfter is how long a worker may go without a heartbeat before its
	// leases are considered orphaned.
	StaleAfter  time.Duration
	Broadcaster ports.StatusBroadcaster
}

func (r Reaper) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 40 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r Reaper) sweep(ctx context.Context) {
	staleAfter := r.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	deadline := time.Now().UTC().Add(-staleAfter)

	stale, err := r.Workers.ListStale(ctx, deadline)
	if err != nil {
		r.Logger.Warn("reaper: list stale workers failed", slog.String("error", err.Error()))
		return
	}

	for _, worker := range stale {
		r.reclaim(ctx, worker.ID)
	}
}

func (r Reaper) reclaim(ctx context.Context, worker domain.WorkerID) {
	accounts, err := r.Accounts.ListByLease(ctx, worker)
	if err != nil {
		r.Logger.Warn("reaper: list leased accounts failed",
			slog.String("worker_id", string(worker)), slog.String("error", err.Error()))
		return
	}
	for _, acc := range accounts {
		var to domain.AccountStatus
		switch acc.Status {
		case domain.AccountLocked, domain.AccountUploading:
			// A download is already bound to this account; the owning
			// worker died mid check_downloads, not mid begin_download.
			// Send it back to DOWNLOADING so the next pass can pick the
			// same download up rather than losing it to an IDLE reset.
			to = domain.AccountDownloading
			if err := r.Accounts.ReclaimToDownloading(ctx, acc.ID, acc.Status); err != nil {
				r.Logger.Warn("reaper: reclaim account failed",
					slog.String("account_id", string(acc.ID)), slog.String("error", err.Error()))
				continue
			}
		default:
			to = domain.AccountIdle
			if err := r.Accounts.Reset(ctx, acc.ID, acc.Status); err != nil {
				r.Logger.Warn("reaper: reset account failed",
					slog.String("account_id", string(acc.ID)), slog.String("error", err.Error()))
				continue
			}
		}
		metrics.ReaperReclaimsTotal.WithLabelValues("account").Inc()
		metrics.AccountStateTransitionsTotal.WithLabelValues(string(acc.Status), string(to)).Inc()
		notify(r.Broadcaster, "account", string(acc.ID), string(acc.Status), string(to), worker)
		r.Logger.Info("reaper: reclaimed account",
			slog.String("account_id", string(acc.ID)), slog.String("worker_id", string(worker)),
			slog.String("to", string(to)))
	}

	downloads, err := r.Downloads.ListByLease(ctx, worker)
	if err != nil {
		r.Logger.Warn("reaper: list leased downloads failed",
			slog.String("worker_id", string(worker)), slog.String("error", err.Error()))
		return
	}
	for _, dl := range downloads {
		if err := r.Downloads.Unlock(ctx, dl.ID); err != nil {
			r.Logger.Warn("reaper: unlock download failed",
				slog.String("download_id", string(dl.ID)), slog.String("error", err.Error()))
			continue
		}
		metrics.ReaperReclaimsTotal.WithLabelValues("download").Inc()
		notify(r.Broadcaster, "download", string(dl.ID), string(dl.Status), string(domain.DownloadPending), worker)
		r.Logger.Info("reaper: reclaimed download",
			slog.String("download_id", string(dl.ID)), slog.String("worker_id", string(worker)))
	}

	if err := r.Workers.Delete(ctx, worker); err != nil {
		r.Logger.Warn("reaper: delete worker record failed",
			slog.String("worker_id", string(worker)), slog.String("error", err.Error()))
	}
}
