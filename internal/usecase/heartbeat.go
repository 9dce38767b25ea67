package usecase

import (
	"context"
	"log/slog"
	"time"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
	"rssbox/internal/metrics"
)

// Heartbeat periodically advertises this worker's liveness so the Reaper can
// tell a slow worker apart from a dead one.
type Heartbeat struct {
	Workers  ports.WorkerRepository
	WorkerID domain.WorkerID
	Logger   *slog.Logger
	Interval time.Duration
}

func (h Heartbeat) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h Heartbeat) beat(ctx context.Context) {
	if err := h.Workers.Heartbeat(ctx, h.WorkerID, time.Now().UTC()); err != nil {
		h.Logger.Warn("heartbeat: update failed",
			slog.String("worker_id", string(h.WorkerID)),
			slog.String("error", err.Error()))
		return
	}
	metrics.HeartbeatsTotal.Inc()
}
