package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type workItemRepository struct {
	mu    sync.RWMutex
	items map[objectKey]*model.WorkItem
}

func newWorkItemRepository() *workItemRepository {
	return &workItemRepository{
		items: make(map[objectKey]*model.WorkItem),
	}
}

func copyWorkItem(item *model.WorkItem) *model.WorkItem {
	copied := *item
	copied.Priority = clonePtr(item.Priority)
	copied.AssignedToID = clonePtr(item.AssignedToID)
	copied.CreatedDate = clonePtr(item.CreatedDate)
	copied.ModifiedDate = clonePtr(item.ModifiedDate)
	copied.CompletedDate = clonePtr(item.CompletedDate)
	copied.DueDate = clonePtr(item.DueDate)
	copied.StoryPoints = clonePtr(item.StoryPoints)
	copied.Tags = slices.Clone(item.Tags)
	copied.Metadata = maps.Clone(item.Metadata)
	return &copied
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (r *workItemRepository) Upsert(ctx context.Context, item *model.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[objectKey{string(item.ConnectionID), item.ExternalID}] = copyWorkItem(item)
	return nil
}

func (r *workItemRepository) Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.WorkItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[objectKey{string(connID), externalID}]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "work item not found",
			goerr.V(model.ConnectionIDKey, connID), goerr.V(model.ExternalIDKey, externalID))
	}
	return copyWorkItem(item), nil
}

func (r *workItemRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.WorkItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*model.WorkItem
	for key, item := range r.items {
		if key.connID == string(connID) {
			items = append(items, copyWorkItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ExternalID < items[j].ExternalID
	})
	return items, nil
}

func (r *workItemRepository) MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	marked := 0
	for key, item := range r.items {
		if key.connID != string(connID) || item.Stale {
			continue
		}
		if _, ok := seenSet[key.externalID]; ok {
			continue
		}
		item.Stale = true
		marked++
	}
	return marked, nil
}

func (r *workItemRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.items {
		if key.connID == string(connID) {
			delete(r.items, key)
		}
	}
	return nil
}
