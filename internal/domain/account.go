package domain

import "time"

// AccountStatus is the state of an Account within the pipeline state machine.
type AccountStatus string

const (
	AccountIdle        AccountStatus = "IDLE"
	AccountProcessing  AccountStatus = "PROCESSING"
	AccountDownloading AccountStatus = "DOWNLOADING"
	AccountLocked      AccountStatus = "LOCKED"
	AccountUploading   AccountStatus = "UPLOADING"
)

// AccountID identifies a credential on the external torrent-cache service.
type AccountID string

// Account is a pooled credential on the external torrent-cache service.
//
// Invariants:
//   - Status in {PROCESSING, LOCKED, UPLOADING} iff LockedBy != "".
//   - Status in {DOWNLOADING, IDLE} iff LockedBy == "".
//   - Status == IDLE implies DownloadID == "" and AddedAt is zero.
//   - Status != IDLE implies DownloadID != "".
type Account struct {
	ID            AccountID
	Credentials   string
	Status        AccountStatus
	LockedBy      WorkerID
	DownloadID    DownloadID
	AddedAt       time.Time
	LastCheckedAt time.Time
	Priority      int
}

// IsLeased reports whether the account's invariant-required lease is held.
func (a Account) IsLeased() bool {
	switch a.Status {
	case AccountProcessing, AccountLocked, AccountUploading:
		return a.LockedBy != ""
	default:
		return a.LockedBy == ""
	}
}

// CheckInvariants validates the Account record against the rules in §3 of
// the specification. Used by tests and defensively by the repository layer.
func (a Account) CheckInvariants() error {
	switch a.Status {
	case AccountProcessing, AccountLocked, AccountUploading:
		if a.LockedBy == "" {
			return ErrInvariantViolation
		}
	case AccountDownloading, AccountIdle:
		if a.LockedBy != "" {
			return ErrInvariantViolation
		}
	}
	if a.Status == AccountIdle {
		if a.DownloadID != "" || !a.AddedAt.IsZero() {
			return ErrInvariantViolation
		}
	} else if a.DownloadID == "" {
		return ErrInvariantViolation
	}
	return nil
}
