package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type pageRepository struct {
	mu    sync.RWMutex
	pages map[objectKey]*model.ConfluencePage
}

func newPageRepository() *pageRepository {
	return &pageRepository{
		pages: make(map[objectKey]*model.ConfluencePage),
	}
}

func copyPage(p *model.ConfluencePage) *model.ConfluencePage {
	copied := *p
	copied.ParentID = clonePtr(p.ParentID)
	copied.Position = clonePtr(p.Position)
	copied.CreatedDate = clonePtr(p.CreatedDate)
	copied.UpdatedDate = clonePtr(p.UpdatedDate)
	copied.Metadata = maps.Clone(p.Metadata)
	return &copied
}

func (r *pageRepository) Upsert(ctx context.Context, page *model.ConfluencePage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pages[objectKey{string(page.ConnectionID), page.ExternalID}] = copyPage(page)
	return nil
}

func (r *pageRepository) Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.ConfluencePage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pages[objectKey{string(connID), externalID}]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "page not found",
			goerr.V(model.ConnectionIDKey, connID), goerr.V(model.ExternalIDKey, externalID))
	}
	return copyPage(p), nil
}

func (r *pageRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.ConfluencePage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pages []*model.ConfluencePage
	for key, p := range r.pages {
		if key.connID == string(connID) {
			pages = append(pages, copyPage(p))
		}
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].ExternalID < pages[j].ExternalID
	})
	return pages, nil
}

func (r *pageRepository) MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	marked := 0
	for key, p := range r.pages {
		if key.connID != string(connID) || p.Stale {
			continue
		}
		if _, ok := seenSet[key.externalID]; ok {
			continue
		}
		p.Stale = true
		marked++
	}
	return marked, nil
}

func (r *pageRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.pages {
		if key.connID == string(connID) {
			delete(r.pages, key)
		}
	}
	return nil
}
