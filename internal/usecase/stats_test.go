package usecase

import (
	"context"
	"log/slog"
	"testing"

	"rssbox/internal/domain"
)

func TestStatsCollectorCountsFreeAccountsAndPendingDownloads(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()

	accounts.seed(
		domain.Account{ID: "a1", Status: domain.AccountIdle},
		domain.Account{ID: "a2", Status: domain.AccountIdle},
		domain.Account{ID: "a3", Status: domain.AccountDownloading, LockedBy: "w1"},
	)
	downloads.seed(
		domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadPending},
		domain.Download{ID: "d2", URL: "https://example.com/d2", Status: domain.DownloadPending},
		domain.Download{ID: "d3", URL: "https://example.com/d3", Status: domain.DownloadProcessing, LockedBy: "w1"},
	)

	collector := StatsCollector{Accounts: accounts, Downloads: downloads, Logger: slog.Default()}

	// collect must not panic or error against the fakes; the resulting gauge
	// values are global to the process so this only exercises the code path.
	collector.collect(ctx)

	free := 0
	all, err := accounts.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, acc := range all {
		if acc.Status == domain.AccountIdle {
			free++
		}
	}
	if free != 2 {
		t.Fatalf("expected 2 free accounts in fixture, got %d", free)
	}

	pending, err := downloads.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if pending != 2 {
		t.Fatalf("expected 2 pending downloads, got %d", pending)
	}
}
