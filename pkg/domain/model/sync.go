package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

// SyncOptions controls the scope of one sync run
type SyncOptions struct {
	SyncWorkItems bool       `json:"sync_work_items"`
	SyncCommits   bool       `json:"sync_commits"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	// ProjectIDs restricts the run to projects or spaces matching by ID, name or key
	ProjectIDs []string          `json:"project_ids,omitempty"`
	Trigger    types.SyncTrigger `json:"-"`
}

// DefaultSyncOptions syncs everything with no date bound
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		SyncWorkItems: true,
		SyncCommits:   true,
	}
}

// AllowsContainer reports whether a project or space passes the allow-list
func (o SyncOptions) AllowsContainer(candidates ...string) bool {
	if len(o.ProjectIDs) == 0 {
		return true
	}
	for _, c := range candidates {
		if c != "" && slices.Contains(o.ProjectIDs, c) {
			return true
		}
	}
	return false
}

// IsFullSweep reports whether the run covers every remote object, which is required before
// objects missing from the run can be marked stale
func (o SyncOptions) IsFullSweep() bool {
	return len(o.ProjectIDs) == 0 && o.StartDate == nil
}

// SyncResult aggregates the outcome of one sync run
type SyncResult struct {
	Success         bool      `json:"success"`
	WorkItemsSynced int       `json:"work_items_synced"`
	CommitsSynced   int       `json:"commits_synced"`
	PagesSynced     *int      `json:"pages_synced,omitempty"`
	StaleMarked     int       `json:"stale_marked"`
	Errors          []string  `json:"errors"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMs      int64     `json:"duration_ms"`
}

// NewSyncResult starts a result clock at startTime
func NewSyncResult(startTime time.Time) *SyncResult {
	return &SyncResult{
		Errors:    []string{},
		StartTime: startTime,
	}
}

// AddError records a failure without aborting the run
func (r *SyncResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddPages increments the page counter, initializing it on first use
func (r *SyncResult) AddPages(n int) {
	if r.PagesSynced == nil {
		r.PagesSynced = new(int)
	}
	*r.PagesSynced += n
}

// Progress is the number of objects written in the run
func (r *SyncResult) Progress() int {
	n := r.WorkItemsSynced + r.CommitsSynced
	if r.PagesSynced != nil {
		n += *r.PagesSynced
	}
	return n
}

// Finish stops the clock and derives Success
func (r *SyncResult) Finish(endTime time.Time) {
	r.EndTime = endTime
	r.DurationMs = endTime.Sub(r.StartTime).Milliseconds()
	r.Success = len(r.Errors) == 0
}

// Status maps the result onto the connection's last sync status
func (r *SyncResult) Status() types.SyncStatus {
	switch {
	case len(r.Errors) == 0:
		return types.SyncStatusSuccess
	case r.Progress() > 0:
		return types.SyncStatusPartial
	default:
		return types.SyncStatusFailed
	}
}

// SyncRunID is a UUID-based identifier for SyncRun
type SyncRunID string

// NewSyncRunID generates a new UUID v4 SyncRunID
func NewSyncRunID() SyncRunID {
	return SyncRunID(uuid.New().String())
}

// SyncRun is the persisted history entry of one sync run
type SyncRun struct {
	ID              SyncRunID
	ConnectionID    ConnectionID
	Trigger         types.SyncTrigger
	Status          types.SyncStatus
	WorkItemsSynced int
	CommitsSynced   int
	PagesSynced     int
	StaleMarked     int
	Errors          []string
	StartTime       time.Time
	EndTime         time.Time
	DurationMs      int64
}

// NewSyncRun builds a history entry from a finished result
func NewSyncRun(connID ConnectionID, trigger types.SyncTrigger, result *SyncResult) *SyncRun {
	run := &SyncRun{
		ID:              NewSyncRunID(),
		ConnectionID:    connID,
		Trigger:         trigger.Normalize(),
		Status:          result.Status(),
		WorkItemsSynced: result.WorkItemsSynced,
		CommitsSynced:   result.CommitsSynced,
		StaleMarked:     result.StaleMarked,
		Errors:          slices.Clone(result.Errors),
		StartTime:       result.StartTime,
		EndTime:         result.EndTime,
		DurationMs:      result.DurationMs,
	}
	if result.PagesSynced != nil {
		run.PagesSynced = *result.PagesSynced
	}
	return run
}
