package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rssbox/internal/domain"
	"rssbox/internal/domain/ports"
	"rssbox/internal/metrics"
)

// downloadTimeout is how long a Download may sit in PROCESSING on the
// torrent-cache side before check_downloads gives up on it.
const downloadTimeout = 2*time.Hour + 30*time.Minute

// checkDownloadsCompletionCap bounds how many downloads a single
// CheckDownloads pass will finish before yielding, so one worker cannot
// monopolize the poll loop while others starve.
const checkDownloadsCompletionCap = 3

// checkDownloadsWallClockCap bounds how long a single CheckDownloads pass
// may run even if fewer than the completion cap finished, so a slow batch of
// large files still yields control back to the scheduler.
const checkDownloadsWallClockCap = 8 * time.Minute

// checkDownloadsRetryDelay is how long a worker backs off before leasing
// another account after a not-yet-ready torrent or a zero-upload pass, so a
// tight poll loop does not hammer the cache while a transfer is still
// assembling.
const checkDownloadsRetryDelay = 5 * time.Second

// BeginDownload pairs queued Downloads with free Accounts and hands them to
// the external torrent-cache service, draining the PENDING queue until no
// free account or no pending download remains. A pass also ends at the
// first download that fails to start; that download is back in PENDING for
// a later pass.
type BeginDownload struct {
	Accounts    ports.AccountRepository
	Downloads   ports.DownloadRepository
	Cache       ports.TorrentCache
	Tx          ports.TxRunner
	Logger      *slog.Logger
	WorkerID    domain.WorkerID
	Broadcaster ports.StatusBroadcaster
}

// notify pushes a transition onto the monitoring feed if one is wired; it is
// best-effort and never affects the pipeline outcome.
func notify(b ports.StatusBroadcaster, kind, id, from, to string, worker domain.WorkerID) {
	if b == nil {
		return
	}
	b.BroadcastStatus(domain.StatusEvent{Kind: kind, ID: id, From: from, To: to, At: time.Now().UTC(), WorkerID: worker})
}

// sleepOrDone waits out d, returning early if ctx is cancelled, so a backoff
// never keeps a worker from shutting down promptly.
func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (b BeginDownload) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dl, err := b.Downloads.ClaimPendingDownload(ctx, b.WorkerID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				b.Logger.Warn("begin_download: claim failed", slog.String("error", err.Error()))
			}
			return
		}

		if err := b.startOne(ctx, dl); err != nil {
			if !errors.Is(err, errNoFreeAccount) {
				b.Logger.Warn("begin_download: start failed",
					slog.String("download_id", string(dl.ID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// errNoFreeAccount reports that the claimed download was unlocked because
// no account was free to take it.
var errNoFreeAccount = errors.New("no free account")

func (b BeginDownload) startOne(ctx context.Context, dl domain.Download) error {
	account, err := b.Accounts.AcquireFreeAccount(ctx, b.WorkerID, dl.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if err := b.Downloads.Unlock(ctx, dl.ID); err != nil {
				return wrapRepo(err)
			}
			return errNoFreeAccount
		}
		return wrapRepo(err)
	}

	// Accounts are pooled across downloads; wipe whatever the previous
	// occupant left behind before handing the workspace to a new torrent.
	if err := b.Cache.Purge(ctx, account.ID); err != nil {
		b.Logger.Warn("begin_download: workspace purge failed",
			slog.String("account_id", string(account.ID)), slog.String("error", err.Error()))
	}

	title, err := b.Cache.AddTorrent(ctx, account.ID, dl.URL)
	if err != nil {
		txErr := b.Tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := b.Accounts.Reset(ctx, account.ID, domain.AccountProcessing); err != nil {
				return err
			}
			return b.Downloads.Unlock(ctx, dl.ID)
		})
		if txErr != nil {
			b.Logger.Warn("begin_download: reset after submit failure failed",
				slog.String("download_id", string(dl.ID)), slog.String("error", txErr.Error()))
		}
		metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountProcessing), string(domain.AccountIdle)).Inc()
		notify(b.Broadcaster, "account", string(account.ID), string(domain.AccountProcessing), string(domain.AccountIdle), b.WorkerID)
		return wrapCache(err)
	}

	if err := b.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := b.Accounts.MarkDownloading(ctx, account.ID, time.Now().UTC()); err != nil {
			return err
		}
		return b.Downloads.SetDownloadName(ctx, dl.ID, title)
	}); err != nil {
		return wrapRepo(err)
	}
	metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountProcessing), string(domain.AccountDownloading)).Inc()
	notify(b.Broadcaster, "account", string(account.ID), string(domain.AccountProcessing), string(domain.AccountDownloading), b.WorkerID)

	b.Logger.Info("begin_download: torrent added",
		slog.String("download_id", string(dl.ID)), slog.String("account_id", string(account.ID)))
	return nil
}

// CheckDownloads polls accounts that are actively DOWNLOADING, pushing
// finished files to the object store and recycling or retiring their
// Download once the torrent-cache side reports a match, vanishes, or times
// out.
type CheckDownloads struct {
	Accounts  ports.AccountRepository
	Downloads ports.DownloadRepository
	Cache     ports.TorrentCache
	Store     ports.ObjectStore
	Tx        ports.TxRunner
	Logger    *slog.Logger
	WorkerID  domain.WorkerID
	// FilterExtensions restricts uploads to files whose extension appears in
	// this set (lowercase, without the leading dot). Empty means no filter.
	FilterExtensions map[string]struct{}
	Broadcaster      ports.StatusBroadcaster
	// DownloadPath is the local scratch directory files are pulled into
	// before being pushed to the object store, so a retried upload can
	// resume from whatever already landed on disk instead of re-fetching
	// from the cache.
	DownloadPath string
}

func (c CheckDownloads) Run(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.CheckDownloadsDuration.Observe(time.Since(start).Seconds()) }()

	deadline := time.Now().Add(checkDownloadsWallClockCap)
	completed := 0

	for completed < checkDownloadsCompletionCap && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		account, err := c.Accounts.LeaseOneDownloading(ctx, c.WorkerID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				c.Logger.Warn("check_downloads: lease failed", slog.String("error", err.Error()))
			}
			return
		}

		done, err := c.checkOne(ctx, account)
		if err != nil {
			c.Logger.Warn("check_downloads: check failed",
				slog.String("account_id", string(account.ID)), slog.String("error", err.Error()))
		}
		if done {
			completed++
		}
	}
}

// checkOne reports true once the account's download has reached a terminal
// outcome (upload finished, retried, or retired).
func (c CheckDownloads) checkOne(ctx context.Context, account domain.Account) (bool, error) {
	dl, err := c.Downloads.Get(ctx, account.DownloadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if resetErr := c.Accounts.Reset(ctx, account.ID, domain.AccountLocked); resetErr != nil {
				return false, wrapRepo(resetErr)
			}
			metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountLocked), string(domain.AccountIdle)).Inc()
			notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountLocked), string(domain.AccountIdle), c.WorkerID)
			return true, nil
		}
		return false, wrapRepo(err)
	}

	if dl.DownloadName == "" {
		// begin_download never recorded a name for this download; there is
		// nothing to look for on the cache side, so send the pair back to
		// the front of the queue.
		return true, c.resetPair(ctx, account, dl)
	}

	entries, err := c.Cache.ListContents(ctx, account.ID, "")
	if err != nil {
		c.Logger.Warn("check_downloads: list contents failed",
			slog.String("account_id", string(account.ID)), slog.String("error", err.Error()))
		return false, wrapCache(err)
	}

	match, found := findMatch(entries, dl.DownloadName)
	if !found {
		return c.handleNotFound(ctx, account, dl)
	}

	if err := c.Accounts.MarkUploading(ctx, account.ID, c.WorkerID); err != nil {
		return false, wrapRepo(err)
	}
	metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountLocked), string(domain.AccountUploading)).Inc()
	notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountLocked), string(domain.AccountUploading), c.WorkerID)

	uploaded, err := c.uploadMatch(ctx, account, match)
	if err != nil {
		return true, c.failDownload(ctx, account, dl, isSoftUploadError(err))
	}

	if uploaded == 0 {
		// Every entry was filtered out by extension; nothing failed, but
		// nothing finished either. Give the cache side more time.
		if err := c.Accounts.ReclaimToDownloading(ctx, account.ID, domain.AccountUploading); err != nil {
			return false, wrapRepo(err)
		}
		metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountUploading), string(domain.AccountDownloading)).Inc()
		notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountUploading), string(domain.AccountDownloading), c.WorkerID)
		sleepOrDone(ctx, checkDownloadsRetryDelay)
		return false, nil
	}

	if err := c.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := c.Downloads.Delete(ctx, dl.ID); err != nil {
			return err
		}
		return c.Accounts.Reset(ctx, account.ID, domain.AccountUploading)
	}); err != nil {
		return false, wrapRepo(err)
	}
	metrics.DownloadsCompletedTotal.Inc()
	notify(c.Broadcaster, "download", string(dl.ID), string(domain.DownloadProcessing), string(domain.DownloadCompleted), c.WorkerID)
	if err := c.Cache.DeleteTorrent(ctx, account.ID, match.ID); err != nil {
		c.Logger.Warn("check_downloads: cleanup failed",
			slog.String("download_id", string(dl.ID)), slog.String("error", err.Error()))
	}
	metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountUploading), string(domain.AccountIdle)).Inc()
	notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountUploading), string(domain.AccountIdle), c.WorkerID)
	return true, nil
}

// handleNotFound runs when the download's name does not appear in the
// account's root listing: the torrent may still be assembling, may have
// timed out, or may have vanished from the cache entirely.
func (c CheckDownloads) handleNotFound(ctx context.Context, account domain.Account, dl domain.Download) (bool, error) {
	if time.Since(account.AddedAt) > downloadTimeout {
		metrics.DownloadsTimedOutTotal.Inc()
		return true, c.resetPair(ctx, account, dl)
	}

	torrents, err := c.Cache.ListTorrents(ctx, account.ID)
	if err != nil {
		c.Logger.Warn("check_downloads: list torrents failed",
			slog.String("account_id", string(account.ID)), slog.String("error", err.Error()))
		return false, wrapCache(err)
	}
	for _, t := range torrents {
		if t.Name == dl.DownloadName {
			if err := c.Accounts.ReturnToDownloading(ctx, account.ID, c.WorkerID); err != nil {
				return false, wrapRepo(err)
			}
			metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountLocked), string(domain.AccountDownloading)).Inc()
			notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountLocked), string(domain.AccountDownloading), c.WorkerID)
			sleepOrDone(ctx, checkDownloadsRetryDelay)
			return false, nil
		}
	}

	// Neither the folder listing nor the in-progress torrent list knows
	// about this name; the torrent-cache side lost it. Retry from scratch.
	return true, c.resetPair(ctx, account, dl)
}

// resetPair reverts the download to PENDING and the account to IDLE as one
// transaction, so a crash between the two writes can never strand either
// side against the other.
func (c CheckDownloads) resetPair(ctx context.Context, account domain.Account, dl domain.Download) error {
	err := c.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := c.Downloads.ResetToPending(ctx, dl.ID); err != nil {
			return err
		}
		return c.Accounts.Reset(ctx, account.ID, domain.AccountLocked)
	})
	if err != nil {
		return wrapRepo(err)
	}
	notify(c.Broadcaster, "download", string(dl.ID), string(dl.Status), string(domain.DownloadPending), c.WorkerID)
	metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountLocked), string(domain.AccountIdle)).Inc()
	notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountLocked), string(domain.AccountIdle), c.WorkerID)
	return nil
}

// failDownload records an upload failure and returns the account to IDLE as
// one transaction. A soft failure (deemed a transient transport problem,
// not the download's fault) leaves the retry count untouched.
func (c CheckDownloads) failDownload(ctx context.Context, account domain.Account, dl domain.Download, soft bool) error {
	retired := !soft && dl.Retries+1 >= domain.MaxRetries
	err := c.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := c.Downloads.MarkFailed(ctx, dl.ID, soft); err != nil {
			return err
		}
		return c.Accounts.Reset(ctx, account.ID, domain.AccountUploading)
	})
	if err != nil {
		return wrapRepo(err)
	}
	metrics.DownloadsFailedTotal.Inc()
	if retired {
		metrics.DownloadsRetiredTotal.Inc()
	}
	toStatus := string(domain.DownloadPending)
	if retired {
		toStatus = "deleted"
	}
	notify(c.Broadcaster, "download", string(dl.ID), string(domain.DownloadProcessing), toStatus, c.WorkerID)
	metrics.AccountStateTransitionsTotal.WithLabelValues(string(domain.AccountUploading), string(domain.AccountIdle)).Inc()
	notify(c.Broadcaster, "account", string(account.ID), string(domain.AccountUploading), string(domain.AccountIdle), c.WorkerID)
	return nil
}

// findMatch looks for an exact name match in a root listing, files before
// folders, matching the torrent-cache's own precedence when a submission
// name collides between the two.
func findMatch(entries []ports.CacheEntry, name string) (ports.CacheEntry, bool) {
	for _, e := range entries {
		if e.Kind == ports.CacheEntryFile && e.Name == name {
			return e, true
		}
	}
	for _, e := range entries {
		if e.Kind == ports.CacheEntryFolder && e.Name == name {
			return e, true
		}
	}
	return ports.CacheEntry{}, false
}

// uploadMatch pushes the matched entry (a single file, or a folder's full
// tree) to the object store, reporting how many files were actually
// uploaded after the extension filter.
func (c CheckDownloads) uploadMatch(ctx context.Context, account domain.Account, match ports.CacheEntry) (int, error) {
	switch match.Kind {
	case ports.CacheEntryFile:
		uploaded, err := c.uploadLeaf(ctx, account, match)
		if err != nil {
			return 0, err
		}
		if uploaded {
			return 1, nil
		}
		return 0, nil
	case ports.CacheEntryFolder:
		return c.uploadFolder(ctx, account, match.ID)
	default:
		return 0, nil
	}
}

func (c CheckDownloads) uploadFolder(ctx context.Context, account domain.Account, folderID string) (int, error) {
	entries, err := c.Cache.ListContents(ctx, account.ID, folderID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		switch e.Kind {
		case ports.CacheEntryFile:
			uploaded, err := c.uploadLeaf(ctx, account, e)
			if err != nil {
				return count, err
			}
			if uploaded {
				count++
			}
		case ports.CacheEntryFolder:
			n, err := c.uploadFolder(ctx, account, e.ID)
			count += n
			if err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

func (c CheckDownloads) uploadLeaf(ctx context.Context, account domain.Account, entry ports.CacheEntry) (bool, error) {
	if !c.extensionAllowed(entry.Name) {
		return false, nil
	}
	if err := c.uploadFile(ctx, account, entry); err != nil {
		return false, err
	}
	return true, nil
}

// uploadFile pulls entry into a local scratch file before pushing it to the
// object store. Fetching to disk first, rather than streaming cache-to-store
// directly, lets a retried upload resume from whatever already landed
// instead of re-downloading from the cache every time the store write fails.
func (c CheckDownloads) uploadFile(ctx context.Context, account domain.Account, entry ports.CacheEntry) error {
	base := c.DownloadPath
	if base == "" {
		base = "downloads"
	}
	scratchDir := filepath.Join(base, string(account.ID))
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return err
	}
	scratchPath := filepath.Join(scratchDir, entry.Name)

	if info, err := os.Stat(scratchPath); err != nil || info.Size() != entry.Size {
		if err := c.fetchToScratch(ctx, account, entry, scratchPath); err != nil {
			return err
		}
	}

	f, err := os.Open(scratchPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := c.Store.Put(ctx, entry.Name, entry.Size, f); err != nil {
		return err
	}
	// Only a successful upload clears the scratch copy; after a failed one
	// it stays on disk for the next attempt to reuse.
	_ = os.RemoveAll(scratchDir)
	metrics.UploadedFilesTotal.Inc()
	metrics.UploadedBytesTotal.Add(float64(entry.Size))
	return nil
}

func (c CheckDownloads) fetchToScratch(ctx context.Context, account domain.Account, entry ports.CacheEntry, path string) error {
	body, _, err := c.Cache.FetchFile(ctx, account.ID, entry.ID)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// isSoftUploadError classifies a raw transport error as transient (the
// connection dropped mid-transfer) rather than the download's own fault, so
// a soft failure does not burn a retry.
func isSoftUploadError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tls") && strings.Contains(msg, "eof")
}

func (c CheckDownloads) extensionAllowed(name string) bool {
	if len(c.FilterExtensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	_, ok := c.FilterExtensions[ext]
	return ok
}
