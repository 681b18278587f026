package types

import "github.com/m-mizutani/goerr/v2"

// SyncStatus is the outcome of the latest sync run of a connection
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusPartial SyncStatus = "PARTIAL"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// ErrInvalidSyncStatus is returned when a sync status string is not recognized
var ErrInvalidSyncStatus = goerr.New("invalid sync status")

// IsValid checks if the sync status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusSuccess,
		SyncStatusPartial,
		SyncStatusFailed:
		return true
	default:
		return false
	}
}

func (s SyncStatus) String() string {
	return string(s)
}

// ParseSyncStatus parses a string into a SyncStatus
func ParseSyncStatus(s string) (SyncStatus, error) {
	status := SyncStatus(s)
	if !status.IsValid() {
		return "", goerr.Wrap(ErrInvalidSyncStatus, "unknown sync status", goerr.V("status", s))
	}
	return status, nil
}

// SyncTrigger records what started a sync run
type SyncTrigger string

const (
	SyncTriggerManual    SyncTrigger = "MANUAL"
	SyncTriggerScheduled SyncTrigger = "SCHEDULED"
	SyncTriggerCLI       SyncTrigger = "CLI"
)

// Normalize treats an empty trigger as SyncTriggerManual
func (t SyncTrigger) Normalize() SyncTrigger {
	if t == "" {
		return SyncTriggerManual
	}
	return t
}
