package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
	"rssbox/internal/metrics"
)

// FeedWatcher polls the upstream RSS/Atom feed and queues any entry newer
// than the saved watermark as a Download, advancing the watermark to the
// newest published time seen across the whole batch rather than the first
// entry in feed order, so an out-of-order feed can never cause the same
// entry to be skipped on the next poll.
type FeedWatcher struct {
	Source      ports.FeedSource
	Downloads   ports.DownloadRepository
	Watermarks  ports.WatermarkRepository
	Guard       ports.DedupeGuard
	Logger      *slog.Logger
	FeedURL     string
	FeedID      string
	Interval    time.Duration
	Broadcaster ports.StatusBroadcaster
}

func (w FeedWatcher) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w FeedWatcher) poll(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.FeedPollDuration.Observe(time.Since(start).Seconds()) }()

	feedID := w.FeedID
	if feedID == "" {
		feedID = w.FeedURL
	}

	entries, err := w.Source.Fetch(ctx, w.FeedURL)
	if err != nil {
		w.Logger.Warn("feed_watcher: fetch failed", slog.String("error", err.Error()))
		return
	}

	watermark, err := w.Watermarks.Get(ctx, feedID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		w.Logger.Warn("feed_watcher: load watermark failed", slog.String("error", err.Error()))
		return
	}

	var newest time.Time
	queued := 0
	for _, entry := range entries {
		if !entry.Published.After(watermark.LastSavedOn) {
			continue
		}
		if entry.Published.After(newest) {
			newest = entry.Published
		}

		if w.Guard != nil && w.Guard.Seen(ctx, entry.Link) {
			continue
		}

		if _, err := w.Downloads.InsertFromFeed(ctx, entry); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			w.Logger.Warn("feed_watcher: insert failed",
				slog.String("link", entry.Link), slog.String("error", err.Error()))
			continue
		}
		metrics.DownloadsQueuedTotal.Inc()
		notify(w.Broadcaster, "download", entry.Link, "", string(domain.DownloadPending), "")
		queued++
	}

	if !newest.IsZero() {
		if err := w.Watermarks.Advance(ctx, feedID, newest); err != nil {
			w.Logger.Warn("feed_watcher: advance watermark failed", slog.String("error", err.Error()))
		}
	}

	if queued > 0 {
		w.Logger.Info("feed_watcher: queued entries", slog.Int("count", queued))
	}
}
