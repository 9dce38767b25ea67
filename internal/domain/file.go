package domain

import "time"

// UploadedFile is a metadata row recorded once a leaf file has been pushed
// to the object store, mirroring the original's Deta Base "files" table.
type UploadedFile struct {
	Name           string
	Size           int64
	Hash           string
	CreatedAt      time.Time
	DownloadsCount int
}
