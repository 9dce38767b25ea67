package usecase

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
)

func TestBeginDownloadHappyPath(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountIdle})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadPending})

	bd := BeginDownload{
		Accounts:  accounts,
		Downloads: downloads,
		Cache:     cache,
		Tx:        fakeTxRunner{},
		Logger:    slog.Default(),
		WorkerID:  "w1",
	}
	bd.Run(ctx)

	acc, _ := accounts.Get(ctx, "a1")
	if acc.Status != domain.AccountDownloading {
		t.Fatalf("got account status %q, want DOWNLOADING", acc.Status)
	}
	if acc.LockedBy != "" {
		t.Fatalf("account should be unlocked once DOWNLOADING, got lease %q", acc.LockedBy)
	}

	dl, _ := downloads.Get(ctx, "d1")
	if dl.Status != domain.DownloadProcessing {
		t.Fatalf("got download status %q, want PROCESSING", dl.Status)
	}
	if dl.DownloadName != dl.URL {
		t.Fatalf("got download name %q, want the torrent-cache title %q", dl.DownloadName, dl.URL)
	}

	if len(cache.purged) != 1 || cache.purged[0] != "a1" {
		t.Fatalf("got purged accounts %+v, want a1 purged before submit", cache.purged)
	}
}

func TestBeginDownloadNoFreeAccountsUnlocksDownload(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()

	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadPending})

	bd := BeginDownload{Accounts: accounts, Downloads: downloads, Cache: cache, Tx: fakeTxRunner{}, Logger: slog.Default(), WorkerID: "w1"}
	bd.Run(ctx)

	dl, _ := downloads.Get(ctx, "d1")
	if dl.Status != domain.DownloadPending {
		t.Fatalf("got download status %q, want it returned to PENDING", dl.Status)
	}
	if dl.LockedBy != "" {
		t.Fatalf("download should be unlocked, got lease %q", dl.LockedBy)
	}
}

func TestBeginDownloadSubmitFailureUnlocksBoth(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	cache.addErr = context.DeadlineExceeded

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountIdle})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadPending})

	bd := BeginDownload{Accounts: accounts, Downloads: downloads, Cache: cache, Tx: fakeTxRunner{}, Logger: slog.Default(), WorkerID: "w1"}
	bd.Run(ctx)

	acc, _ := accounts.Get(ctx, "a1")
	if acc.Status != domain.AccountIdle {
		t.Fatalf("got account status %q, want IDLE after submit failure", acc.Status)
	}

	dl, _ := downloads.Get(ctx, "d1")
	if dl.Status != domain.DownloadPending || dl.LockedBy != "" {
		t.Fatalf("got download %+v, want unlocked PENDING after submit failure", dl)
	}
}

func TestCheckDownloadsUploadsAndCompletes(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	store := &fakeObjectStore{}

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountDownloading, DownloadID: "d1", AddedAt: time.Now().UTC()})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadProcessing, DownloadName: "movie.mkv"})
	cache.listings[listingKey("a1", "")] = cacheEntryScript{entries: []ports.CacheEntry{
		{ID: "f1", Name: "movie.mkv", Kind: ports.CacheEntryFile, Size: 4},
	}}
	cache.fetchBody["f1"] = "data"

	cd := CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: fakeTxRunner{},
		Logger: slog.Default(), WorkerID: "w1", DownloadPath: t.TempDir(),
	}
	cd.Run(ctx)

	_, err := downloads.Get(ctx, "d1")
	if err != domain.ErrNotFound {
		t.Fatalf("got error %v, want the download deleted once uploaded", err)
	}

	acc, _ := accounts.Get(ctx, "a1")
	if acc.Status != domain.AccountIdle {
		t.Fatalf("got account status %q, want IDLE after upload", acc.Status)
	}

	if len(store.files) != 1 || store.files[0].Name != "movie.mkv" {
		t.Fatalf("got uploaded files %+v, want one file named movie.mkv", store.files)
	}

	if len(cache.deleted) != 1 || cache.deleted[0] != "f1" {
		t.Fatalf("got cleanup calls %+v, want the matched entry's id deleted", cache.deleted)
	}
}

func TestCheckDownloadsFiltersExtensions(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	store := &fakeObjectStore{}

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountDownloading, DownloadID: "d1", AddedAt: time.Now().UTC()})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadProcessing, DownloadName: "release"})
	cache.listings[listingKey("a1", "")] = cacheEntryScript{entries: []ports.CacheEntry{
		{ID: "release", Name: "release", Kind: ports.CacheEntryFolder},
	}}
	cache.listings[listingKey("a1", "release")] = cacheEntryScript{entries: []ports.CacheEntry{
		{ID: "f1", Name: "movie.mkv", Kind: ports.CacheEntryFile, Size: 4},
		{ID: "f2", Name: "readme.txt", Kind: ports.CacheEntryFile, Size: 4},
	}}
	cache.fetchBody["f1"] = "data"
	cache.fetchBody["f2"] = "text"

	cd := CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: fakeTxRunner{},
		Logger: slog.Default(), WorkerID: "w1", DownloadPath: t.TempDir(),
		FilterExtensions: map[string]struct{}{"mkv": {}},
	}
	cd.Run(ctx)

	if len(store.files) != 1 || store.files[0].Name != "movie.mkv" {
		t.Fatalf("got uploaded files %+v, want only movie.mkv", store.files)
	}
}

func TestCheckDownloadsTimeoutBoundary(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	store := &fakeObjectStore{}

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountDownloading, DownloadID: "d1", AddedAt: time.Now().UTC().Add(-(downloadTimeout + time.Minute))})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadProcessing, DownloadName: "movie.mkv"})

	cd := CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: fakeTxRunner{},
		Logger: slog.Default(), WorkerID: "w1", DownloadPath: t.TempDir(),
	}
	cd.Run(ctx)

	dl, _ := downloads.Get(ctx, "d1")
	if dl.Status != domain.DownloadPending {
		t.Fatalf("got download status %q, want it reset to PENDING past the deadline", dl.Status)
	}
	if dl.DownloadName != "" {
		t.Fatalf("got download name %q, want it cleared on timeout reset", dl.DownloadName)
	}

	acc, _ := accounts.Get(ctx, "a1")
	if acc.Status != domain.AccountIdle {
		t.Fatalf("got account status %q, want IDLE after timeout reclaim", acc.Status)
	}
}

func TestCheckDownloadsNotFoundButStillTorrentingReturnsToDownloading(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	store := &fakeObjectStore{}

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountLocked, LockedBy: "w1", DownloadID: "d1", AddedAt: time.Now().UTC()})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadProcessing, DownloadName: "movie.mkv"})
	cache.torrents["a1"] = []ports.TorrentEntry{{ID: "t1", Name: "movie.mkv"}}

	cd := CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: fakeTxRunner{},
		Logger: slog.Default(), WorkerID: "w1", DownloadPath: t.TempDir(),
	}
	done, err := cd.checkOne(ctx, mustAccount(ctx, accounts, "a1"))
	if err != nil {
		t.Fatalf("checkOne: %v", err)
	}
	if done {
		t.Fatalf("got done=true, want false while the torrent is still assembling")
	}

	dl, _ := downloads.Get(ctx, "d1")
	if dl.Status != domain.DownloadProcessing || dl.DownloadName != "movie.mkv" {
		t.Fatalf("got download %+v, want it left untouched while still assembling", dl)
	}

	acc, _ := accounts.Get(ctx, "a1")
	if acc.Status != domain.AccountDownloading {
		t.Fatalf("got account status %q, want back to DOWNLOADING", acc.Status)
	}
}

func TestCheckDownloadsNotFoundAndGoneResetsPair(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	store := &fakeObjectStore{}

	accounts.seed(domain.Account{ID: "a1", Status: domain.AccountLocked, LockedBy: "w1", DownloadID: "d1", AddedAt: time.Now().UTC()})
	downloads.seed(domain.Download{ID: "d1", URL: "https://example.com/d1", Status: domain.DownloadProcessing, DownloadName: "movie.mkv"})

	cd := CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: fakeTxRunner{},
		Logger: slog.Default(), WorkerID: "w1", DownloadPath: t.TempDir(),
	}
	done, err := cd.checkOne(ctx, mustAccount(ctx, accounts, "a1"))
	if err != nil {
		t.Fatalf("checkOne: %v", err)
	}
	if !done {
		t.Fatalf("got done=false, want true once the torrent is declared gone")
	}

	dl, _ := downloads.Get(ctx, "d1")
	if dl.Status != domain.DownloadPending || dl.DownloadName != "" {
		t.Fatalf("got download %+v, want it reset to PENDING with the name cleared", dl)
	}

	acc, _ := accounts.Get(ctx, "a1")
	if acc.Status != domain.AccountIdle {
		t.Fatalf("got account status %q, want IDLE", acc.Status)
	}
}

func mustAccount(ctx context.Context, accounts *fakeAccountRepo, id domain.AccountID) domain.Account {
	acc, err := accounts.Get(ctx, id)
	if err != nil {
		panic(err)
	}
	return acc
}

func TestCheckDownloadsStopsAtCompletionCap(t *testing.T) {
	ctx := context.Background()
	accounts := newFakeAccountRepo()
	downloads := newFakeDownloadRepo()
	cache := newFakeTorrentCache()
	store := &fakeObjectStore{}

	for i := 0; i < 5; i++ {
		id := domain.AccountID(rune('a' + i))
		downloadID := domain.DownloadID(rune('a' + i))
		name := string(downloadID) + ".mkv"
		accounts.seed(domain.Account{ID: id, Status: domain.AccountDownloading, DownloadID: downloadID, AddedAt: time.Now().UTC()})
		downloads.seed(domain.Download{ID: downloadID, URL: string(downloadID), Status: domain.DownloadProcessing, DownloadName: name})
		cache.listings[listingKey(id, "")] = cacheEntryScript{entries: []ports.CacheEntry{
			{ID: string(downloadID) + "-f", Name: name, Kind: ports.CacheEntryFile, Size: 1},
		}}
		cache.fetchBody[string(downloadID)+"-f"] = "x"
	}

	cd := CheckDownloads{
		Accounts: accounts, Downloads: downloads, Cache: cache, Store: store, Tx: fakeTxRunner{},
		Logger: slog.Default(), WorkerID: "w1", DownloadPath: t.TempDir(),
	}
	cd.Run(ctx)

	all, _ := downloads.List(ctx)
	remaining := len(all)
	if remaining != 5-checkDownloadsCompletionCap {
		t.Fatalf("got %d downloads remaining, want %d left undeleted", remaining, 5-checkDownloadsCompletionCap)
	}
}
