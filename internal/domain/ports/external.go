package ports

import (
	"context"
	"io"

	"rssbox/internal/domain"
)

// CacheEntryKind distinguishes a file leaf from a folder node in a torrent
// cache listing.
type CacheEntryKind string

const (
	CacheEntryFile   CacheEntryKind = "file"
	CacheEntryFolder CacheEntryKind = "folder"
)

// CacheEntry is one node in a torrent-cache folder listing.
type CacheEntry struct {
	ID   string
	Name string
	Kind CacheEntryKind
	Size int64
}

// TorrentEntry is one torrent the cache is still actively assembling,
// reported by the in-progress torrent list rather than the folder listing.
type TorrentEntry struct {
	ID   string
	Name string
}

// TorrentCache is the adapter over the external torrent-cache service
// (add magnet/url, list contents, fetch bytes, delete). Treated as an
// opaque RPC boundary; no BitTorrent protocol logic lives on this side.
type TorrentCache interface {
	// AddTorrent submits a URL to the cache. The returned string is the
	// canonical name the cache assigns the torrent (the title persisted as
	// a Download's download_name), not an internal folder id.
	AddTorrent(ctx context.Context, credentials domain.AccountID, url string) (string, error)
	// ListContents lists an account's torrent-cache workspace. An empty
	// folderID lists the account's top-level root.
	ListContents(ctx context.Context, credentials domain.AccountID, folderID string) ([]CacheEntry, error)
	// ListTorrents reports torrents still assembling in the account's
	// workspace, by name, independent of the folder listing.
	ListTorrents(ctx context.Context, credentials domain.AccountID) ([]TorrentEntry, error)
	FetchFile(ctx context.Context, credentials domain.AccountID, fileID string) (io.ReadCloser, int64, error)
	// Purge wipes an account's entire workspace (every folder, file, and
	// torrent), a defensive reset run before submitting a new torrent since
	// accounts are pooled across downloads.
	Purge(ctx context.Context, credentials domain.AccountID) error
	DeleteFolder(ctx context.Context, credentials domain.AccountID, folderID string) error
	DeleteFile(ctx context.Context, credentials domain.AccountID, fileID string) error
	DeleteTorrent(ctx context.Context, credentials domain.AccountID, torrentID string) error
}

// ObjectStore pushes finished files to the long-term blob store and records
// their metadata.
type ObjectStore interface {
	Put(ctx context.Context, name string, size int64, r io.Reader) (domain.UploadedFile, error)
}

// FeedSource fetches the latest entries off the upstream RSS/Atom feed.
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]domain.FeedEntry, error)
}
