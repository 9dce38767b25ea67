package mongo

import (
	"testing"
	"time"

	"rssbox/internal/domain"
)

func TestAccountDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 2, 19, 10, 0, 0, 0, time.UTC)
	doc := accountDoc{
		ID:            "acct1",
		Credentials:   "user:pass",
		Status:        string(domain.AccountProcessing),
		LockedBy:      "w1",
		DownloadID:    "d1",
		AddedAt:       now,
		LastCheckedAt: now.Add(time.Minute),
		Priority:      3,
	}

	got := accountFromDoc(doc)

	if got.ID != domain.AccountID(doc.ID) {
		t.Errorf("ID: got %q, want %q", got.ID, doc.ID)
	}
	if got.Status != domain.AccountProcessing {
		t.Errorf("Status: got %q, want %q", got.Status, domain.AccountProcessing)
	}
	if got.LockedBy != domain.WorkerID(doc.LockedBy) {
		t.Errorf("LockedBy: got %q, want %q", got.LockedBy, doc.LockedBy)
	}
	if got.DownloadID != domain.DownloadID(doc.DownloadID) {
		t.Errorf("DownloadID: got %q, want %q", got.DownloadID, doc.DownloadID)
	}
	if got.Priority != doc.Priority {
		t.Errorf("Priority: got %d, want %d", got.Priority, doc.Priority)
	}
	if !got.AddedAt.Equal(doc.AddedAt) {
		t.Errorf("AddedAt: got %v, want %v", got.AddedAt, doc.AddedAt)
	}
}

func TestDownloadDocRoundtrip(t *testing.T) {
	doc := downloadDoc{
		ID:           "https://example.com/a.torrent",
		URL:          "https://example.com/a.torrent",
		Name:         "Example Release",
		Status:       string(domain.DownloadPending),
		DownloadName: "",
		LockedBy:     "",
		Retries:      2,
	}

	got := downloadFromDoc(doc)

	if got.ID != domain.DownloadID(doc.ID) {
		t.Errorf("ID: got %q, want %q", got.ID, doc.ID)
	}
	if got.URL != doc.URL {
		t.Errorf("URL: got %q, want %q", got.URL, doc.URL)
	}
	if got.Status != domain.DownloadPending {
		t.Errorf("Status: got %q, want %q", got.Status, domain.DownloadPending)
	}
	if got.Retries != doc.Retries {
		t.Errorf("Retries: got %d, want %d", got.Retries, doc.Retries)
	}
	if got.LockedBy != "" {
		t.Errorf("LockedBy: got %q, want empty", got.LockedBy)
	}
}
