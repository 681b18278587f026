package interfaces

import (
	"context"

	"github.com/secmon-lab/tributary/pkg/domain/model"
)

// ConnectionRepository defines the interface for integration connection data access
type ConnectionRepository interface {
	// Create creates a new connection. An ID is generated when empty.
	Create(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error)

	// Get retrieves a connection by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id model.ConnectionID) (*model.IntegrationConnection, error)

	// List retrieves all connections
	List(ctx context.Context) ([]*model.IntegrationConnection, error)

	// Update replaces the user editable fields of an existing connection.
	// Last-sync bookkeeping is preserved; use UpdateSyncStatus to change it.
	Update(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error)

	// UpdateSyncStatus writes the last-sync bookkeeping only
	UpdateSyncStatus(ctx context.Context, id model.ConnectionID, update model.SyncStatusUpdate) error

	// Delete deletes a connection. Dependent rows are removed by the use case layer.
	Delete(ctx context.Context, id model.ConnectionID) error
}
