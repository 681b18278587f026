package memory

import (
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
)

// Sentinel errors, shared with the other backends
var (
	ErrNotFound      = interfaces.ErrNotFound
	ErrAlreadyExists = interfaces.ErrAlreadyExists
)

// Memory is an in-process Repository for development and tests
type Memory struct {
	connection  *connectionRepository
	userMapping *userMappingRepository
	workItem    *workItemRepository
	commit      *commitRepository
	page        *pageRepository
	syncRun     *syncRunRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		connection:  newConnectionRepository(),
		userMapping: newUserMappingRepository(),
		workItem:    newWorkItemRepository(),
		commit:      newCommitRepository(),
		page:        newPageRepository(),
		syncRun:     newSyncRunRepository(),
	}
}

func (m *Memory) Connection() interfaces.ConnectionRepository {
	return m.connection
}

func (m *Memory) UserMapping() interfaces.UserMappingRepository {
	return m.userMapping
}

func (m *Memory) WorkItem() interfaces.WorkItemRepository {
	return m.workItem
}

func (m *Memory) Commit() interfaces.CommitRepository {
	return m.commit
}

func (m *Memory) Page() interfaces.PageRepository {
	return m.page
}

func (m *Memory) SyncRun() interfaces.SyncRunRepository {
	return m.syncRun
}

func (m *Memory) Close() error {
	return nil
}

// objectKey is the composite upsert key of synced objects
type objectKey struct {
	connID     string
	externalID string
}
