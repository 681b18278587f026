package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type syncRunRepository struct {
	mu   sync.RWMutex
	runs map[model.ConnectionID][]*model.SyncRun
}

func newSyncRunRepository() *syncRunRepository {
	return &syncRunRepository{
		runs: make(map[model.ConnectionID][]*model.SyncRun),
	}
}

func copySyncRun(run *model.SyncRun) *model.SyncRun {
	copied := *run
	copied.Errors = slices.Clone(run.Errors)
	return &copied
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copySyncRun(run)
	if created.ID == "" {
		created.ID = model.NewSyncRunID()
	}
	r.runs[run.ConnectionID] = append(r.runs[run.ConnectionID], created)
	return nil
}

func (r *syncRunRepository) List(ctx context.Context, connID model.ConnectionID, limit int) ([]*model.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*model.SyncRun, 0, len(r.runs[connID]))
	for _, run := range r.runs[connID] {
		runs = append(runs, copySyncRun(run))
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *syncRunRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runs, connID)
	return nil
}
