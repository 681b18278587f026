package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type userMappingRepository struct {
	mu       sync.RWMutex
	mappings map[model.ConnectionID]map[model.UserMappingID]*model.UserMapping
}

func newUserMappingRepository() *userMappingRepository {
	return &userMappingRepository{
		mappings: make(map[model.ConnectionID]map[model.UserMappingID]*model.UserMapping),
	}
}

func copyUserMapping(m *model.UserMapping) *model.UserMapping {
	copied := *m
	if m.EmployeeID != nil {
		id := *m.EmployeeID
		copied.EmployeeID = &id
	}
	return &copied
}

// findByEmailLocked must be called with mu held
func (r *userMappingRepository) findByEmailLocked(connID model.ConnectionID, email string) *model.UserMapping {
	for _, m := range r.mappings[connID] {
		if m.ExternalEmail == email {
			return m
		}
	}
	return nil
}

func (r *userMappingRepository) Create(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyUserMapping(mapping)
	created.ExternalEmail = model.NormalizeEmail(created.ExternalEmail)
	if dup := r.findByEmailLocked(created.ConnectionID, created.ExternalEmail); dup != nil {
		return nil, goerr.Wrap(ErrAlreadyExists, "mapping for email already exists",
			goerr.V(model.ConnectionIDKey, created.ConnectionID),
			goerr.V(model.EmailKey, created.ExternalEmail))
	}

	now := time.Now().UTC()
	if created.ID == "" {
		created.ID = model.NewUserMappingID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	if r.mappings[created.ConnectionID] == nil {
		r.mappings[created.ConnectionID] = make(map[model.UserMappingID]*model.UserMapping)
	}
	r.mappings[created.ConnectionID][created.ID] = created
	return copyUserMapping(created), nil
}

func (r *userMappingRepository) Get(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) (*model.UserMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.mappings[connID][id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "user mapping not found",
			goerr.V(model.ConnectionIDKey, connID), goerr.V("mapping_id", id))
	}
	return copyUserMapping(m), nil
}

func (r *userMappingRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.UserMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mappings := make([]*model.UserMapping, 0, len(r.mappings[connID]))
	for _, m := range r.mappings[connID] {
		mappings = append(mappings, copyUserMapping(m))
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].ExternalEmail < mappings[j].ExternalEmail
	})
	return mappings, nil
}

func (r *userMappingRepository) FindByEmail(ctx context.Context, connID model.ConnectionID, email string) (*model.UserMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.findByEmailLocked(connID, model.NormalizeEmail(email))
	if m == nil {
		return nil, nil
	}
	return copyUserMapping(m), nil
}

func (r *userMappingRepository) Update(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.mappings[mapping.ConnectionID][mapping.ID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "user mapping not found",
			goerr.V(model.ConnectionIDKey, mapping.ConnectionID), goerr.V("mapping_id", mapping.ID))
	}

	updated := copyUserMapping(mapping)
	updated.ExternalEmail = model.NormalizeEmail(updated.ExternalEmail)
	if dup := r.findByEmailLocked(updated.ConnectionID, updated.ExternalEmail); dup != nil && dup.ID != updated.ID {
		return nil, goerr.Wrap(ErrAlreadyExists, "mapping for email already exists",
			goerr.V(model.ConnectionIDKey, updated.ConnectionID),
			goerr.V(model.EmailKey, updated.ExternalEmail))
	}
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	r.mappings[updated.ConnectionID][updated.ID] = updated
	return copyUserMapping(updated), nil
}

func (r *userMappingRepository) Delete(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mappings[connID][id]; !exists {
		return goerr.Wrap(ErrNotFound, "user mapping not found",
			goerr.V(model.ConnectionIDKey, connID), goerr.V("mapping_id", id))
	}
	delete(r.mappings[connID], id)
	return nil
}

func (r *userMappingRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.mappings, connID)
	return nil
}
