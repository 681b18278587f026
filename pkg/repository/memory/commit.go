package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type commitRepository struct {
	mu      sync.RWMutex
	commits map[objectKey]*model.DeveloperCommit
}

func newCommitRepository() *commitRepository {
	return &commitRepository{
		commits: make(map[objectKey]*model.DeveloperCommit),
	}
}

func copyCommit(c *model.DeveloperCommit) *model.DeveloperCommit {
	copied := *c
	copied.AuthorDate = clonePtr(c.AuthorDate)
	copied.CommitDate = clonePtr(c.CommitDate)
	copied.LinkedWorkItems = slices.Clone(c.LinkedWorkItems)
	return &copied
}

func (r *commitRepository) Upsert(ctx context.Context, commit *model.DeveloperCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commits[objectKey{string(commit.ConnectionID), commit.CommitHash}] = copyCommit(commit)
	return nil
}

func (r *commitRepository) Get(ctx context.Context, connID model.ConnectionID, hash string) (*model.DeveloperCommit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.commits[objectKey{string(connID), hash}]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "commit not found",
			goerr.V(model.ConnectionIDKey, connID), goerr.V("commit_hash", hash))
	}
	return copyCommit(c), nil
}

func (r *commitRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.DeveloperCommit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var commits []*model.DeveloperCommit
	for key, c := range r.commits {
		if key.connID == string(connID) {
			commits = append(commits, copyCommit(c))
		}
	}
	sort.Slice(commits, func(i, j int) bool {
		return commits[i].CommitHash < commits[j].CommitHash
	})
	return commits, nil
}

func (r *commitRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.commits {
		if key.connID == string(connID) {
			delete(r.commits, key)
		}
	}
	return nil
}
