package ports

import (
	"context"
	"time"

	"rssbox/internal/domain"
)

// WorkerRepository tracks liveness of coordinator processes.
type WorkerRepository interface {
	Heartbeat(ctx context.Context, id domain.WorkerID, at time.Time) error
	ListStale(ctx context.Context, olderThan time.Time) ([]domain.Worker, error)
	Delete(ctx context.Context, id domain.WorkerID) error
}

// AccountRepository persists the pooled torrent-cache credentials and drives
// their state machine under optimistic, filter-on-current-status updates.
type AccountRepository interface {
	// AcquireFreeAccount atomically claims the highest-priority IDLE account,
	// moving it to PROCESSING under the given worker's lease.
	AcquireFreeAccount(ctx context.Context, worker domain.WorkerID, download domain.DownloadID) (domain.Account, error)
	// LeaseOneDownloading atomically claims the least-recently-checked
	// DOWNLOADING account, moving it to LOCKED under the given worker's lease.
	LeaseOneDownloading(ctx context.Context, worker domain.WorkerID) (domain.Account, error)
	// MarkDownloading returns an account from PROCESSING to DOWNLOADING,
	// clearing its lease, conditioned on it still being PROCESSING.
	MarkDownloading(ctx context.Context, id domain.AccountID, checkedAt time.Time) error
	// MarkUploading moves an account from LOCKED to UPLOADING, keeping the
	// same lease, conditioned on it still being LOCKED under that lease.
	MarkUploading(ctx context.Context, id domain.AccountID, worker domain.WorkerID) error
	// Reset returns an account to IDLE, clearing lease and download id,
	// conditioned on its current status matching from.
	Reset(ctx context.Context, id domain.AccountID, from domain.AccountStatus) error
	// ReturnToDownloading returns an account from LOCKED to DOWNLOADING,
	// keeping download_id and clearing locked_by, conditioned on it still
	// being LOCKED under the given worker's lease. Used mid check_downloads
	// when the cache side needs more time and the account should be polled
	// again on a later pass.
	ReturnToDownloading(ctx context.Context, id domain.AccountID, worker domain.WorkerID) error
	// ReclaimToDownloading moves an account from LOCKED or UPLOADING back
	// to DOWNLOADING, keeping download_id and clearing locked_by, without
	// checking lease ownership. Conditioned on the account's current status
	// matching from. Used by the reaper for a dead worker's accounts, and by
	// check_downloads to hand back its own UPLOADING account when no file
	// passed the extension filter.
	ReclaimToDownloading(ctx context.Context, id domain.AccountID, from domain.AccountStatus) error
	// ReassignLease transfers an account's lease to a new worker without
	// changing its status.
	ReassignLease(ctx context.Context, id domain.AccountID, newWorker domain.WorkerID) error
	Get(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	ListByLease(ctx context.Context, worker domain.WorkerID) ([]domain.Account, error)
}

// DownloadRepository persists the queue of feed-sourced items awaiting
// ingestion into the object store.
type DownloadRepository interface {
	// InsertFromFeed inserts a new PENDING download for the given URL,
	// returning domain.ErrAlreadyExists if the URL is already queued.
	InsertFromFeed(ctx context.Context, entry domain.FeedEntry) (domain.Download, error)
	// ClaimPendingDownload atomically claims the oldest PENDING download,
	// moving it to PROCESSING under the given worker's lease.
	ClaimPendingDownload(ctx context.Context, worker domain.WorkerID) (domain.Download, error)
	Get(ctx context.Context, id domain.DownloadID) (domain.Download, error)
	// SetDownloadName records the torrent-cache's canonical name against a
	// download still PROCESSING, the final step of a successful submit.
	SetDownloadName(ctx context.Context, id domain.DownloadID, name string) error
	// ResetToPending reverts a PROCESSING download to PENDING, clearing
	// download_name and any lease, without touching retries. Used for
	// timeouts, unnamed downloads, and torrents that vanished from the
	// cache — a coordination-level retry, not an application-level one.
	ResetToPending(ctx context.Context, id domain.DownloadID) error
	// Delete removes a download outright once its files have been uploaded,
	// conditioned on it still being PROCESSING.
	Delete(ctx context.Context, id domain.DownloadID) error
	// MarkFailed records a failed upload attempt, conditioned on the
	// download still being PROCESSING. A soft failure (deemed transient,
	// not the download's fault) leaves retries untouched; a hard failure
	// increments it. Below domain.MaxRetries the download returns to
	// PENDING with download_name cleared; at the ceiling it is deleted.
	MarkFailed(ctx context.Context, id domain.DownloadID, soft bool) error
	// Unlock clears a download's lease and returns it to PENDING without
	// touching its retry count, used by the reaper and when begin_download
	// cannot start an already-claimed download.
	Unlock(ctx context.Context, id domain.DownloadID) error
	ListByLease(ctx context.Context, worker domain.WorkerID) ([]domain.Download, error)
	// List returns every download regardless of status, for the monitoring
	// surface only; never used to drive pipeline decisions.
	List(ctx context.Context) ([]domain.Download, error)
	// CountPending reports how many downloads are waiting to be claimed, for
	// gauge reporting only; never gate control flow on this count since it is
	// stale the instant it is read under concurrent workers.
	CountPending(ctx context.Context) (int, error)
}

// WatermarkRepository persists the monotonic feed-consumption cursor.
type WatermarkRepository interface {
	Get(ctx context.Context, feedID string) (domain.FeedWatermark, error)
	Advance(ctx context.Context, feedID string, publishedAt time.Time) error
}
