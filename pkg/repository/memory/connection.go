package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type connectionRepository struct {
	mu          sync.RWMutex
	connections map[model.ConnectionID]*model.IntegrationConnection
}

func newConnectionRepository() *connectionRepository {
	return &connectionRepository{
		connections: make(map[model.ConnectionID]*model.IntegrationConnection),
	}
}

// copyConnection creates a deep copy of a connection
func copyConnection(conn *model.IntegrationConnection) *model.IntegrationConnection {
	copied := *conn
	if conn.LastSyncAt != nil {
		at := *conn.LastSyncAt
		copied.LastSyncAt = &at
	}
	if conn.LastSyncError != nil {
		msg := *conn.LastSyncError
		copied.LastSyncError = &msg
	}
	return &copied
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := copyConnection(conn)
	if created.ID == "" {
		created.ID = model.NewConnectionID()
	}
	if _, exists := r.connections[created.ID]; exists {
		return nil, goerr.Wrap(ErrAlreadyExists, "connection already exists", goerr.V(model.ConnectionIDKey, created.ID))
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	r.connections[created.ID] = created
	return copyConnection(created), nil
}

func (r *connectionRepository) Get(ctx context.Context, id model.ConnectionID) (*model.IntegrationConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
	}

	return copyConnection(conn), nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*model.IntegrationConnection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*model.IntegrationConnection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, copyConnection(conn))
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].CreatedAt.Before(conns[j].CreatedAt)
	})

	return conns, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.connections[conn.ID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, conn.ID))
	}

	updated := copyConnection(conn)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	updated.LastSyncAt = existing.LastSyncAt
	updated.LastSyncStatus = existing.LastSyncStatus
	updated.LastSyncError = existing.LastSyncError

	r.connections[updated.ID] = updated
	return copyConnection(updated), nil
}

func (r *connectionRepository) UpdateSyncStatus(ctx context.Context, id model.ConnectionID, update model.SyncStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.connections[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
	}

	updated := copyConnection(existing)
	at := update.At
	updated.LastSyncAt = &at
	updated.LastSyncStatus = update.Status
	updated.LastSyncError = nil
	if update.Error != nil {
		msg := *update.Error
		updated.LastSyncError = &msg
	}

	r.connections[id] = updated
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id model.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[id]; !exists {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
	}

	delete(r.connections, id)
	return nil
}
