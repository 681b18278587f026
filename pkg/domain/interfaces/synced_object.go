package interfaces

import (
	"context"

	"github.com/secmon-lab/tributary/pkg/domain/model"
)

// WorkItemRepository is the unified work item store.
// Upsert is keyed by (ConnectionID, ExternalID); re-syncing updates in place.
type WorkItemRepository interface {
	Upsert(ctx context.Context, item *model.WorkItem) error
	Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.WorkItem, error)
	List(ctx context.Context, connID model.ConnectionID) ([]*model.WorkItem, error)

	// MarkStale flags every non-stale item of the connection whose ExternalID is not in seen.
	// Returns the number of items flagged.
	MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error)

	DeleteByConnection(ctx context.Context, connID model.ConnectionID) error
}

// CommitRepository stores commits keyed by (ConnectionID, CommitHash)
type CommitRepository interface {
	Upsert(ctx context.Context, commit *model.DeveloperCommit) error
	Get(ctx context.Context, connID model.ConnectionID, hash string) (*model.DeveloperCommit, error)
	List(ctx context.Context, connID model.ConnectionID) ([]*model.DeveloperCommit, error)
	DeleteByConnection(ctx context.Context, connID model.ConnectionID) error
}

// PageRepository stores Confluence pages keyed by (ConnectionID, ExternalID)
type PageRepository interface {
	Upsert(ctx context.Context, page *model.ConfluencePage) error
	Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.ConfluencePage, error)
	List(ctx context.Context, connID model.ConnectionID) ([]*model.ConfluencePage, error)
	MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error)
	DeleteByConnection(ctx context.Context, connID model.ConnectionID) error
}

// SyncRunRepository keeps the sync history of each connection
type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error

	// List returns the most recent runs first. limit <= 0 means no limit.
	List(ctx context.Context, connID model.ConnectionID, limit int) ([]*model.SyncRun, error)

	DeleteByConnection(ctx context.Context, connID model.ConnectionID) error
}
