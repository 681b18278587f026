package model

import (
	"time"

	"github.com/secmon-lab/tributary/pkg/domain/types"
)

// WorkItem is a remote task, ticket or work item translated into the unified shape.
// (ConnectionID, ExternalID) is the upsert key.
type WorkItem struct {
	ConnectionID ConnectionID
	ExternalID   string
	ExternalURL  string
	Platform     types.Platform

	Title        string
	Description  string
	WorkItemType string
	// Status and Priority keep the platform's own vocabulary
	Status   string
	Priority *string

	AssignedToID   *EmployeeID
	AssignedTo     string
	AssignedToName string

	CreatedDate   *time.Time
	ModifiedDate  *time.Time
	CompletedDate *time.Time
	DueDate       *time.Time

	Project       string
	Section       string
	AreaPath      string
	IterationPath string
	StoryPoints   *float64
	Tags          []string

	Metadata map[string]any

	// Stale is set when the remote object was absent from the last full sync
	Stale        bool
	LastSyncedAt time.Time
}
