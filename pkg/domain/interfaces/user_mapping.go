package interfaces

import (
	"context"

	"github.com/secmon-lab/tributary/pkg/domain/model"
)

// UserMappingRepository persists external identity to employee mappings.
// ExternalEmail is stored normalized and (ConnectionID, ExternalEmail) is unique.
type UserMappingRepository interface {
	// Create stores a new mapping. Returns ErrAlreadyExists when the email is already mapped
	// within the connection.
	Create(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error)

	// Get retrieves a mapping by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) (*model.UserMapping, error)

	// List retrieves all mappings of a connection
	List(ctx context.Context, connID model.ConnectionID) ([]*model.UserMapping, error)

	// FindByEmail looks up a mapping by external email. Returns nil without error if absent.
	FindByEmail(ctx context.Context, connID model.ConnectionID, email string) (*model.UserMapping, error)

	// Update replaces a mapping's mutable fields
	Update(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error)

	// Delete removes a mapping
	Delete(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) error

	// DeleteByConnection removes every mapping of a connection
	DeleteByConnection(ctx context.Context, connID model.ConnectionID) error
}
