package interfaces

import "github.com/m-mizutani/goerr/v2"

// Repository-level sentinel errors shared by every backend
var (
	ErrNotFound      = goerr.New("not found")
	ErrAlreadyExists = goerr.New("already exists")
)

// Repository defines the interface for data persistence
type Repository interface {
	Connection() ConnectionRepository
	UserMapping() UserMappingRepository
	WorkItem() WorkItemRepository
	Commit() CommitRepository
	Page() PageRepository
	SyncRun() SyncRunRepository

	Close() error
}
