package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

func newTestWorkItem(connID model.ConnectionID, externalID, title string) *model.WorkItem {
	priority := "2"
	points := 3.0
	created := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	return &model.WorkItem{
		ConnectionID: connID,
		ExternalID:   externalID,
		ExternalURL:  "https://dev.azure.com/acme/_workitems/edit/" + externalID,
		Platform:     types.PlatformAzureDevOps,
		Title:        title,
		WorkItemType: "Bug",
		Status:       "Active",
		Priority:     &priority,
		AssignedTo:   "alice@example.com",
		CreatedDate:  &created,
		Project:      "Web",
		AreaPath:     "Web\\Frontend",
		StoryPoints:  &points,
		Tags:         []string{"ui", "urgent"},
		Metadata:     map[string]any{"System.Rev": "4"},
		LastSyncedAt: time.Now().UTC(),
	}
}

func runWorkItemRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Upsert is idempotent on external ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()

		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connID, "42", "first")))
		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connID, "42", "second")))

		items, err := repo.WorkItem().List(ctx, connID)
		gt.NoError(t, err).Required()
		gt.A(t, items).Length(1)
		gt.Value(t, items[0].Title).Equal("second")
		gt.Value(t, *items[0].Priority).Equal("2")
		gt.Value(t, *items[0].StoryPoints).Equal(3.0)
		gt.A(t, items[0].Tags).Length(2)
		gt.Value(t, items[0].Metadata["System.Rev"]).Equal(any("4"))
		gt.Value(t, items[0].CreatedDate.Unix()).Equal(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC).Unix())
	})

	t.Run("Keys are namespaced by connection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connA := model.NewConnectionID()
		connB := model.NewConnectionID()

		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connA, "1", "a")))
		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connB, "1", "b")))

		a, err := repo.WorkItem().Get(ctx, connA, "1")
		gt.NoError(t, err).Required()
		gt.Value(t, a.Title).Equal("a")

		b, err := repo.WorkItem().Get(ctx, connB, "1")
		gt.NoError(t, err).Required()
		gt.Value(t, b.Title).Equal("b")
	})

	t.Run("Get returns ErrNotFound", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.WorkItem().Get(context.Background(), model.NewConnectionID(), "missing")
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})

	t.Run("MarkStale flags unseen items and upsert resets the flag", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()

		for _, id := range []string{"1", "2", "3"} {
			gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connID, id, "t"+id)))
		}

		marked, err := repo.WorkItem().MarkStale(ctx, connID, []string{"1", "3"})
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(1)

		stale, err := repo.WorkItem().Get(ctx, connID, "2")
		gt.NoError(t, err).Required()
		gt.Bool(t, stale.Stale).True()

		// already stale items are not counted again
		marked, err = repo.WorkItem().MarkStale(ctx, connID, []string{"1", "3"})
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(0)

		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connID, "2", "back")))
		revived, err := repo.WorkItem().Get(ctx, connID, "2")
		gt.NoError(t, err).Required()
		gt.Bool(t, revived.Stale).False()
	})

	t.Run("MarkStale with empty seen list flags everything", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()

		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connID, "1", "t")))
		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connID, "2", "t")))

		marked, err := repo.WorkItem().MarkStale(ctx, connID, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(2)
	})

	t.Run("DeleteByConnection removes only that connection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connA := model.NewConnectionID()
		connB := model.NewConnectionID()

		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connA, "1", "a")))
		gt.NoError(t, repo.WorkItem().Upsert(ctx, newTestWorkItem(connB, "1", "b")))
		gt.NoError(t, repo.WorkItem().DeleteByConnection(ctx, connA))

		items, err := repo.WorkItem().List(ctx, connA)
		gt.NoError(t, err).Required()
		gt.A(t, items).Length(0)

		items, err = repo.WorkItem().List(ctx, connB)
		gt.NoError(t, err).Required()
		gt.A(t, items).Length(1)
	})
}

func runCommitRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Upsert by commit hash", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()
		authored := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

		commit := &model.DeveloperCommit{
			ConnectionID:    connID,
			EmployeeID:      "emp-1",
			CommitHash:      "abc123",
			Message:         "Fix #12 and #34",
			Repository:      "web",
			FilesChanged:    3,
			LinesAdded:      2,
			LinesDeleted:    1,
			AuthorEmail:     "alice@example.com",
			AuthorDate:      &authored,
			LinkedWorkItems: model.ExtractLinkedWorkItems("Fix #12 and #34"),
			LastSyncedAt:    time.Now().UTC(),
		}
		gt.NoError(t, repo.Commit().Upsert(ctx, commit))

		commit.Message = "Fix #12"
		commit.LinkedWorkItems = []string{"12"}
		gt.NoError(t, repo.Commit().Upsert(ctx, commit))

		commits, err := repo.Commit().List(ctx, connID)
		gt.NoError(t, err).Required()
		gt.A(t, commits).Length(1)

		got, err := repo.Commit().Get(ctx, connID, "abc123")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Message).Equal("Fix #12")
		gt.Value(t, got.LinkedWorkItems).Equal([]string{"12"})
		gt.Value(t, got.EmployeeID).Equal(model.EmployeeID("emp-1"))
		gt.Value(t, got.FilesChanged).Equal(3)
		gt.Value(t, got.AuthorDate.Unix()).Equal(authored.Unix())
	})

	t.Run("Get returns ErrNotFound", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Commit().Get(context.Background(), model.NewConnectionID(), "nope")
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})

	t.Run("DeleteByConnection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()

		gt.NoError(t, repo.Commit().Upsert(ctx, &model.DeveloperCommit{
			ConnectionID: connID, EmployeeID: "e", CommitHash: "h1", LinkedWorkItems: []string{}, LastSyncedAt: time.Now().UTC(),
		}))
		gt.NoError(t, repo.Commit().DeleteByConnection(ctx, connID))

		commits, err := repo.Commit().List(ctx, connID)
		gt.NoError(t, err).Required()
		gt.A(t, commits).Length(0)
	})
}

func runPageRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	newPage := func(connID model.ConnectionID, id string, parent *string) *model.ConfluencePage {
		pos := 1
		return &model.ConfluencePage{
			ConnectionID:  connID,
			ExternalID:    id,
			Type:          "page",
			Status:        "current",
			Title:         "Page " + id,
			Content:       "<p>hello</p>",
			SpaceID:       "100",
			SpaceKey:      "ENG",
			ParentID:      parent,
			Position:      &pos,
			VersionNumber: 1,
			LastSyncedAt:  time.Now().UTC(),
		}
	}

	t.Run("Upsert keeps parent link", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()
		root := "1"

		gt.NoError(t, repo.Page().Upsert(ctx, newPage(connID, "1", nil)))
		gt.NoError(t, repo.Page().Upsert(ctx, newPage(connID, "2", &root)))

		child, err := repo.Page().Get(ctx, connID, "2")
		gt.NoError(t, err).Required()
		gt.Value(t, child.ParentID).NotNil()
		gt.Value(t, *child.ParentID).Equal("1")
		gt.Value(t, *child.Position).Equal(1)

		parent, err := repo.Page().Get(ctx, connID, "1")
		gt.NoError(t, err).Required()
		gt.Value(t, parent.ParentID).Nil()

		pages, err := repo.Page().List(ctx, connID)
		gt.NoError(t, err).Required()
		gt.A(t, pages).Length(2)
	})

	t.Run("MarkStale flags unseen pages", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()

		gt.NoError(t, repo.Page().Upsert(ctx, newPage(connID, "1", nil)))
		gt.NoError(t, repo.Page().Upsert(ctx, newPage(connID, "2", nil)))

		marked, err := repo.Page().MarkStale(ctx, connID, []string{"2"})
		gt.NoError(t, err).Required()
		gt.Value(t, marked).Equal(1)

		p, err := repo.Page().Get(ctx, connID, "1")
		gt.NoError(t, err).Required()
		gt.Bool(t, p.Stale).True()
	})

	t.Run("Get returns ErrNotFound after DeleteByConnection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		connID := model.NewConnectionID()

		gt.NoError(t, repo.Page().Upsert(ctx, newPage(connID, "1", nil)))
		gt.NoError(t, repo.Page().DeleteByConnection(ctx, connID))

		_, err := repo.Page().Get(ctx, connID, "1")
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})
}

func TestMemoryWorkItemRepository(t *testing.T) {
	runWorkItemRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreWorkItemRepository(t *testing.T) {
	runWorkItemRepositoryTest(t, newFirestoreRepository)
}

func TestPostgresWorkItemRepository(t *testing.T) {
	runWorkItemRepositoryTest(t, newPostgresRepository)
}

func TestMemoryCommitRepository(t *testing.T) {
	runCommitRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreCommitRepository(t *testing.T) {
	runCommitRepositoryTest(t, newFirestoreRepository)
}

func TestPostgresCommitRepository(t *testing.T) {
	runCommitRepositoryTest(t, newPostgresRepository)
}

func TestMemoryPageRepository(t *testing.T) {
	runPageRepositoryTest(t, newMemoryRepository)
}

func TestFirestorePageRepository(t *testing.T) {
	runPageRepositoryTest(t, newFirestoreRepository)
}

func TestPostgresPageRepository(t *testing.T) {
	runPageRepositoryTest(t, newPostgresRepository)
}
