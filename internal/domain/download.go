package domain

// DownloadStatus is the state of a queued Download.
type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "PENDING"
	DownloadProcessing DownloadStatus = "PROCESSING"
	DownloadCompleted  DownloadStatus = "COMPLETED"
	DownloadTimeout    DownloadStatus = "TIMEOUT"
	DownloadError      DownloadStatus = "ERROR"
)

// MaxRetries is the retry ceiling after which a Download is dropped rather
// than returned to PENDING.
const MaxRetries = 5

// DownloadID identifies a queue entry.
type DownloadID string

// Download is one item to ingest from the feed to the object store.
//
// Invariants:
//   - URL is globally unique across the collection.
//   - Retries >= MaxRetries implies the record is deleted, never persisted.
type Download struct {
	ID           DownloadID
	URL          string
	Name         string
	Status       DownloadStatus
	DownloadName string
	LockedBy     WorkerID
	Retries      int
}
