package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/repository/firestore"
	"github.com/secmon-lab/tributary/pkg/repository/memory"
	"github.com/secmon-lab/tributary/pkg/repository/postgres"
)

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID, firestore.WithCollectionPrefix("test"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

var migratePostgresOnce sync.Once

func newPostgresRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	var migrateErr error
	migratePostgresOnce.Do(func() {
		_, migrateErr = postgres.Migrate(ctx, url)
	})
	gt.NoError(t, migrateErr).Required()

	repo, err := postgres.New(ctx, url, postgres.WithConnAttempts(1, 0))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}
