package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/repository/memory"
	"github.com/secmon-lab/tributary/pkg/service/asana"
	"github.com/secmon-lab/tributary/pkg/service/azuredevops"
	"github.com/secmon-lab/tributary/pkg/service/confluence"
	"github.com/secmon-lab/tributary/pkg/usecase"
)

func employee(id string) *model.EmployeeID {
	e := model.EmployeeID(id)
	return &e
}

func createConnection(t *testing.T, repo *memory.Memory, platform types.Platform, mutate ...func(*model.IntegrationConnection)) *model.IntegrationConnection {
	t.Helper()
	conn := &model.IntegrationConnection{
		Platform:        platform,
		Name:            "test " + platform.String(),
		AccessToken:     "secret-token",
		OrganizationURL: "https://dev.azure.com/acme",
		WorkspaceID:     "ws-1",
		SiteURL:         "https://acme.atlassian.net",
		AccountEmail:    "bot@example.com",
		SyncEnabled:     true,
		IsActive:        true,
	}
	for _, m := range mutate {
		m(conn)
	}
	created, err := repo.Connection().Create(context.Background(), conn)
	gt.NoError(t, err).Required()
	return created
}

func createMapping(t *testing.T, repo *memory.Memory, connID model.ConnectionID, email string, emp *model.EmployeeID) {
	t.Helper()
	_, err := repo.UserMapping().Create(context.Background(), &model.UserMapping{
		ConnectionID:  connID,
		ExternalEmail: email,
		EmployeeID:    emp,
	})
	gt.NoError(t, err).Required()
}

func adoWorkItem(id int, title, assignee string) *azuredevops.WorkItem {
	fields := map[string]any{
		azuredevops.FieldTitle:        title,
		azuredevops.FieldState:        "Active",
		azuredevops.FieldWorkItemType: "Bug",
		azuredevops.FieldTeamProject:  "Alpha",
	}
	if assignee != "" {
		fields[azuredevops.FieldAssignedTo] = map[string]any{
			"displayName": strings.Split(assignee, "@")[0],
			"uniqueName":  assignee,
		}
	}
	return &azuredevops.WorkItem{ID: id, Fields: fields}
}

func newSync(repo *memory.Memory, f *mockFactory, opts ...usecase.Option) *usecase.SyncUseCase {
	opts = append([]usecase.Option{usecase.WithPlatformFactory(f)}, opts...)
	return usecase.New(repo, opts...).Sync
}

func TestSyncConnection_AzureDevOpsEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)
	createMapping(t, repo, conn.ID, "Alice@Example.com", employee("emp-1"))
	createMapping(t, repo, conn.ID, "carol@example.com", nil)

	var commitAuthors []string
	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			return []*azuredevops.Project{{ID: "p-alpha", Name: "Alpha"}}, nil
		},
		listWorkItemsFn: func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
			gt.Value(t, project).Equal("Alpha")
			return []*azuredevops.WorkItem{
				adoWorkItem(1, "Mapped item", "alice@example.com"),
				adoWorkItem(2, "Unmapped item", "bob@example.com"),
			}, nil
		},
		listRepositoriesFn: func(ctx context.Context, project string) ([]*azuredevops.Repository, error) {
			return []*azuredevops.Repository{{ID: "repo-1", Name: "api", WebURL: "https://dev.azure.com/acme/Alpha/_git/api"}}, nil
		},
		listCommitsFn: func(ctx context.Context, project, repositoryID string, filter azuredevops.CommitFilter) ([]*azuredevops.Commit, error) {
			commitAuthors = append(commitAuthors, filter.Author)
			return []*azuredevops.Commit{{
				CommitID:     "abc123",
				Comment:      "Fix login, closes #1",
				Author:       azuredevops.GitUserDate{Name: "Alice", Email: "alice@example.com"},
				ChangeCounts: azuredevops.ChangeCounts{Add: 3, Edit: 1, Delete: 2},
			}}, nil
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado})

	result, err := uc.SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).True()
	gt.Value(t, result.WorkItemsSynced).Equal(2)
	gt.Value(t, result.CommitsSynced).Equal(1)
	gt.Value(t, result.PagesSynced).Nil()
	gt.A(t, result.Errors).Length(0)

	// only mapped users drive the commit loop
	gt.Value(t, commitAuthors).Equal([]string{"alice@example.com"})

	mapped, err := repo.WorkItem().Get(ctx, conn.ID, "1")
	gt.NoError(t, err).Required()
	gt.Value(t, *mapped.AssignedToID).Equal(model.EmployeeID("emp-1"))
	gt.Value(t, mapped.Title).Equal("Mapped item")
	gt.Value(t, mapped.ExternalURL).Equal("https://dev.azure.com/acme/Alpha/_workitems/edit/1")

	unmapped, err := repo.WorkItem().Get(ctx, conn.ID, "2")
	gt.NoError(t, err).Required()
	gt.Value(t, unmapped.AssignedToID).Nil()
	gt.Value(t, unmapped.AssignedTo).Equal("bob@example.com")
	gt.Value(t, unmapped.AssignedToName).Equal("bob")

	commit, err := repo.Commit().Get(ctx, conn.ID, "abc123")
	gt.NoError(t, err).Required()
	gt.Value(t, commit.EmployeeID).Equal(model.EmployeeID("emp-1"))
	gt.Value(t, commit.LinkedWorkItems).Equal([]string{"1"})
	gt.Value(t, commit.FilesChanged).Equal(6)
	gt.Value(t, commit.LinesAdded).Equal(3)
	gt.Value(t, commit.LinesDeleted).Equal(2)
	gt.Value(t, commit.URL).Equal("https://dev.azure.com/acme/Alpha/_git/api/commit/abc123")

	stored, err := repo.Connection().Get(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.LastSyncStatus).Equal(types.SyncStatusSuccess)
	gt.Value(t, stored.LastSyncError).Nil()
	gt.Value(t, stored.LastSyncAt).NotNil()

	runs, err := repo.SyncRun().List(ctx, conn.ID, 0)
	gt.NoError(t, err).Required()
	gt.A(t, runs).Length(1)
	gt.Value(t, runs[0].Trigger).Equal(types.SyncTriggerManual)
	gt.Value(t, runs[0].WorkItemsSynced).Equal(2)
	gt.Value(t, runs[0].CommitsSynced).Equal(1)
}

func TestSyncConnection_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)
	createMapping(t, repo, conn.ID, "alice@example.com", employee("emp-1"))

	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			return []*azuredevops.Project{{ID: "p-alpha", Name: "Alpha"}}, nil
		},
		listWorkItemsFn: func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
			return []*azuredevops.WorkItem{adoWorkItem(1, "one", ""), adoWorkItem(2, "two", "")}, nil
		},
		listRepositoriesFn: func(ctx context.Context, project string) ([]*azuredevops.Repository, error) {
			return []*azuredevops.Repository{{ID: "repo-1", Name: "api"}}, nil
		},
		listCommitsFn: func(ctx context.Context, project, repositoryID string, filter azuredevops.CommitFilter) ([]*azuredevops.Commit, error) {
			return []*azuredevops.Commit{{CommitID: "c1", Comment: "init"}}, nil
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado})

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	uc.SetClock(func() time.Time { return first })
	_, err := uc.SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()

	second := first.Add(time.Hour)
	uc.SetClock(func() time.Time { return second })
	result, err := uc.SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).True()

	items, err := repo.WorkItem().List(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.A(t, items).Length(2)
	for _, item := range items {
		gt.Value(t, item.LastSyncedAt).Equal(second)
	}

	commits, err := repo.Commit().List(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.A(t, commits).Length(1)
	gt.Value(t, commits[0].LastSyncedAt).Equal(second)
}

func TestSyncConnection_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)

	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			return []*azuredevops.Project{{ID: "p1", Name: "Broken"}, {ID: "p2", Name: "Alpha"}}, nil
		},
		listWorkItemsFn: func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
			if project == "Broken" {
				return nil, goerr.New("HTTP 500: internal error")
			}
			return []*azuredevops.WorkItem{adoWorkItem(10, "ok", ""), adoWorkItem(11, "ok", "")}, nil
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado})

	opts := model.DefaultSyncOptions()
	opts.SyncCommits = false
	result, err := uc.SyncConnection(ctx, conn.ID, opts)
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).False()
	gt.A(t, result.Errors).Length(1)
	gt.String(t, result.Errors[0]).Contains("Broken")
	gt.Value(t, result.WorkItemsSynced).Equal(2)
	gt.Value(t, result.StaleMarked).Equal(0)

	stored, err := repo.Connection().Get(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.LastSyncStatus).Equal(types.SyncStatusPartial)
	gt.String(t, *stored.LastSyncError).Contains("internal error")
}

func TestSyncConnection_TranslationFailureSkipped(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)

	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			return []*azuredevops.Project{{ID: "p1", Name: "Alpha"}}, nil
		},
		listWorkItemsFn: func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
			return []*azuredevops.WorkItem{{ID: 0}, adoWorkItem(5, "valid", "")}, nil
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado})

	result, err := uc.SyncConnection(ctx, conn.ID, model.SyncOptions{SyncWorkItems: true})
	gt.NoError(t, err).Required()
	gt.A(t, result.Errors).Length(1)
	gt.Value(t, result.WorkItemsSynced).Equal(1)
}

func TestSyncConnection_Gating(t *testing.T) {
	testCases := map[string]func(*model.IntegrationConnection){
		"inactive":      func(c *model.IntegrationConnection) { c.IsActive = false },
		"sync disabled": func(c *model.IntegrationConnection) { c.SyncEnabled = false },
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.New()
			conn := createConnection(t, repo, types.PlatformAzureDevOps, mutate)
			ado := &mockAzureDevOps{}
			f := &mockFactory{ado: ado}

			result, err := newSync(repo, f).SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
			gt.NoError(t, err).Required()
			gt.Bool(t, result.Success).False()
			gt.Value(t, result.Errors).Equal([]string{"connection is not active or sync is disabled"})
			gt.Value(t, result.WorkItemsSynced).Equal(0)
			gt.Value(t, result.CommitsSynced).Equal(0)
			gt.Value(t, f.calls.Load()).Equal(int32(0))
			gt.Value(t, ado.remoteCalls.Load()).Equal(int32(0))

			stored, err := repo.Connection().Get(ctx, conn.ID)
			gt.NoError(t, err).Required()
			gt.Value(t, stored.LastSyncAt).NotNil()
			gt.Value(t, stored.LastSyncStatus).Equal(types.SyncStatusFailed)
			gt.Value(t, stored.LastSyncError).NotNil()
			gt.Value(t, *stored.LastSyncError).Equal("connection is not active or sync is disabled")

			runs, err := repo.SyncRun().List(ctx, conn.ID, 10)
			gt.NoError(t, err).Required()
			gt.A(t, runs).Length(1)
			gt.Value(t, runs[0].Status).Equal(types.SyncStatusFailed)
		})
	}
}

func TestSyncConnection_UnknownConnection(t *testing.T) {
	repo := memory.New()
	result, err := newSync(repo, &mockFactory{}).SyncConnection(context.Background(), model.NewConnectionID(), model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Value(t, result.Errors).Equal([]string{"connection not found"})
	gt.Bool(t, result.Success).False()
}

func TestSyncConnection_ConnectivityFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)
	ado := &mockAzureDevOps{testConnectionFn: func(ctx context.Context) bool { return false }}

	result, err := newSync(repo, &mockFactory{ado: ado}).SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Value(t, result.Errors).Equal([]string{"Failed to connect to Azure DevOps"})
	gt.Value(t, ado.remoteCalls.Load()).Equal(int32(1))

	stored, err := repo.Connection().Get(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.LastSyncStatus).Equal(types.SyncStatusFailed)
	gt.Value(t, *stored.LastSyncError).Equal("Failed to connect to Azure DevOps")
}

func TestSyncConnection_ConfigurationFailure(t *testing.T) {
	t.Run("client cannot be built", func(t *testing.T) {
		repo := memory.New()
		conn := createConnection(t, repo, types.PlatformAzureDevOps)
		ado := &mockAzureDevOps{}
		f := &mockFactory{ado: ado, err: azuredevops.ErrInvalidConfig}

		result, err := newSync(repo, f).SyncConnection(context.Background(), conn.ID, model.DefaultSyncOptions())
		gt.NoError(t, err).Required()
		gt.A(t, result.Errors).Length(1)
		gt.String(t, result.Errors[0]).Contains("Invalid Azure DevOps configuration")
		gt.Value(t, ado.remoteCalls.Load()).Equal(int32(0))
	})

	t.Run("asana without workspace", func(t *testing.T) {
		repo := memory.New()
		conn := createConnection(t, repo, types.PlatformAsana, func(c *model.IntegrationConnection) { c.WorkspaceID = "" })
		f := &mockFactory{asana: &mockAsana{}}

		result, err := newSync(repo, f).SyncConnection(context.Background(), conn.ID, model.DefaultSyncOptions())
		gt.NoError(t, err).Required()
		gt.Value(t, result.Errors).Equal([]string{"Asana workspace ID is not configured"})
		gt.Value(t, f.calls.Load()).Equal(int32(0))
	})

	t.Run("confluence without email", func(t *testing.T) {
		repo := memory.New()
		conn := createConnection(t, repo, types.PlatformConfluence, func(c *model.IntegrationConnection) { c.AccountEmail = "" })
		f := &mockFactory{conf: &mockConfluence{}}

		result, err := newSync(repo, f).SyncConnection(context.Background(), conn.ID, model.DefaultSyncOptions())
		gt.NoError(t, err).Required()
		gt.A(t, result.Errors).Length(1)
		gt.Value(t, f.calls.Load()).Equal(int32(0))
	})
}

func TestSyncConnection_RejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	connA := createConnection(t, repo, types.PlatformAzureDevOps)
	connB := createConnection(t, repo, types.PlatformAzureDevOps)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			first := false
			once.Do(func() {
				first = true
				close(started)
			})
			if first {
				<-release
			}
			return nil, nil
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado})

	done := make(chan error, 1)
	go func() {
		_, err := uc.SyncConnection(ctx, connA.ID, model.DefaultSyncOptions())
		done <- err
	}()
	<-started

	_, err := uc.SyncConnection(ctx, connA.ID, model.DefaultSyncOptions())
	gt.Bool(t, errors.Is(err, usecase.ErrSyncInProgress)).True()

	// other connections are not blocked
	result, err := uc.SyncConnection(ctx, connB.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).True()

	close(release)
	gt.NoError(t, <-done)

	// the lock is released after the run
	result, err = uc.SyncConnection(ctx, connA.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).True()
}

func TestSyncConnection_Deadline(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)

	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado}, usecase.WithSyncTimeout(50*time.Millisecond))

	result, err := uc.SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Value(t, result.Errors).Equal([]string{"sync deadline exceeded (50ms)"})

	// the write-back is not bound by the run deadline
	stored, err := repo.Connection().Get(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.LastSyncStatus).Equal(types.SyncStatusFailed)
	gt.Value(t, *stored.LastSyncError).Equal("sync deadline exceeded (50ms)")
}

func TestSyncConnection_Tombstoning(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)

	current := []*azuredevops.WorkItem{adoWorkItem(1, "one", ""), adoWorkItem(2, "two", "")}
	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			return []*azuredevops.Project{{ID: "p1", Name: "Alpha"}}, nil
		},
		listWorkItemsFn: func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
			return current, nil
		},
	}
	uc := newSync(repo, &mockFactory{ado: ado})
	opts := model.SyncOptions{SyncWorkItems: true}

	result, err := uc.SyncConnection(ctx, conn.ID, opts)
	gt.NoError(t, err).Required()
	gt.Value(t, result.StaleMarked).Equal(0)

	// item 2 disappears remotely
	current = current[:1]
	result, err = uc.SyncConnection(ctx, conn.ID, opts)
	gt.NoError(t, err).Required()
	gt.Value(t, result.StaleMarked).Equal(1)

	gone, err := repo.WorkItem().Get(ctx, conn.ID, "2")
	gt.NoError(t, err).Required()
	gt.Bool(t, gone.Stale).True()
	kept, err := repo.WorkItem().Get(ctx, conn.ID, "1")
	gt.NoError(t, err).Required()
	gt.Bool(t, kept.Stale).False()

	t.Run("partial sweep never marks", func(t *testing.T) {
		scoped := opts
		scoped.ProjectIDs = []string{"Alpha"}
		result, err := uc.SyncConnection(ctx, conn.ID, scoped)
		gt.NoError(t, err).Required()
		gt.Value(t, result.StaleMarked).Equal(0)

		since := time.Now().Add(-time.Hour)
		bounded := opts
		bounded.StartDate = &since
		result, err = uc.SyncConnection(ctx, conn.ID, bounded)
		gt.NoError(t, err).Required()
		gt.Value(t, result.StaleMarked).Equal(0)
	})

	t.Run("reappearing item is revived", func(t *testing.T) {
		current = append(current, adoWorkItem(2, "two", ""))
		_, err := uc.SyncConnection(ctx, conn.ID, opts)
		gt.NoError(t, err).Required()

		revived, err := repo.WorkItem().Get(ctx, conn.ID, "2")
		gt.NoError(t, err).Required()
		gt.Bool(t, revived.Stale).False()
	})
}

func TestSyncConnection_AllowList(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAzureDevOps)

	var requested []string
	ado := &mockAzureDevOps{
		listProjectsFn: func(ctx context.Context) ([]*azuredevops.Project, error) {
			return []*azuredevops.Project{{ID: "p1", Name: "Alpha"}, {ID: "p2", Name: "Beta"}, {ID: "p3", Name: "Gamma"}}, nil
		},
		listWorkItemsFn: func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
			requested = append(requested, project)
			return nil, nil
		},
	}
	opts := model.SyncOptions{SyncWorkItems: true, ProjectIDs: []string{"p2", "Gamma"}}
	_, err := newSync(repo, &mockFactory{ado: ado}).SyncConnection(ctx, conn.ID, opts)
	gt.NoError(t, err).Required()
	gt.Value(t, requested).Equal([]string{"Beta", "Gamma"})
}

func TestSyncConnection_Asana(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformAsana)
	createMapping(t, repo, conn.ID, "alice@example.com", employee("emp-1"))

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	high := "High"
	m := &mockAsana{
		listProjectsFn: func(ctx context.Context, workspaceID string) ([]*asana.Project, error) {
			gt.Value(t, workspaceID).Equal("ws-1")
			return []*asana.Project{{GID: "p1", Name: "Launch"}, {GID: "p2", Name: "Old", Archived: true}}, nil
		},
		listTasksFn: func(ctx context.Context, projectID string, filter asana.TaskFilter) ([]*asana.Task, error) {
			gt.Value(t, projectID).Equal("p1")
			gt.Value(t, filter.ModifiedSince).Equal(&since)
			return []*asana.Task{
				{
					GID:          "t1",
					Name:         "Write launch post",
					Assignee:     &asana.User{GID: "u1", Name: "Alice", Email: "ALICE@example.com"},
					Memberships:  []asana.Membership{{Project: &asana.Ref{GID: "p1"}, Section: &asana.Ref{Name: "Doing"}}},
					CustomFields: []asana.CustomField{{Name: "Priority", EnumValue: &asana.Ref{Name: high}}},
					Raw:          map[string]any{"gid": "t1"},
				},
				{
					GID:       "t2",
					Name:      "Unassigned",
					Completed: true,
				},
			}, nil
		},
	}

	opts := model.DefaultSyncOptions()
	opts.StartDate = &since
	result, err := newSync(repo, &mockFactory{asana: m}).SyncConnection(ctx, conn.ID, opts)
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).True()
	gt.Value(t, result.WorkItemsSynced).Equal(2)
	gt.Value(t, result.CommitsSynced).Equal(0)
	gt.Value(t, result.PagesSynced).Nil()

	t1, err := repo.WorkItem().Get(ctx, conn.ID, "t1")
	gt.NoError(t, err).Required()
	gt.Value(t, t1.Status).Equal("Doing")
	gt.Value(t, t1.Section).Equal("Doing")
	gt.Value(t, *t1.Priority).Equal("High")
	gt.Value(t, t1.WorkItemType).Equal("Task")
	gt.Value(t, *t1.AssignedToID).Equal(model.EmployeeID("emp-1"))
	gt.Value(t, t1.Project).Equal("Launch")
	gt.Value(t, t1.Platform).Equal(types.PlatformAsana)

	t2, err := repo.WorkItem().Get(ctx, conn.ID, "t2")
	gt.NoError(t, err).Required()
	gt.Value(t, t2.Status).Equal("Completed")
	gt.Value(t, t2.Priority).Nil()
	gt.Value(t, t2.AssignedToID).Nil()
}

func TestSyncConnection_Confluence(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformConfluence, func(c *model.IntegrationConnection) { c.SpaceKey = "ENG" })

	m := &mockConfluence{
		listSpacesFn: func(ctx context.Context, keys ...string) ([]*confluence.Space, error) {
			gt.Value(t, keys).Equal([]string{"ENG"})
			return []*confluence.Space{{ID: "10", Key: "ENG", Name: "Engineering"}}, nil
		},
		listPagesFn: func(ctx context.Context, spaceID string) ([]*confluence.Page, error) {
			return []*confluence.Page{
				{ID: "4", ParentID: "2", Title: "Grandchild"},
				{ID: "1", ParentID: "folder-9", Title: "Root"},
				{ID: "2", ParentID: "1", Title: "Child A", Version: &confluence.Version{Number: 7, Message: "tweak"},
					Raw: map[string]any{
						"id":         "2",
						"title":      "Child A",
						"parentType": "page",
						"body":       map[string]any{"storage": map[string]any{"value": "<p>a</p>"}},
					}},
				{ID: "3", ParentID: "1", Title: "Child B"},
			}, nil
		},
	}

	result, err := newSync(repo, &mockFactory{conf: m}).SyncConnection(ctx, conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Bool(t, result.Success).True()
	gt.Value(t, *result.PagesSynced).Equal(4)
	gt.Value(t, result.WorkItemsSynced).Equal(0)

	root, err := repo.Page().Get(ctx, conn.ID, "1")
	gt.NoError(t, err).Required()
	gt.Value(t, *root.ParentID).Equal("folder-9")
	gt.Value(t, root.SpaceKey).Equal("ENG")

	grandchild, err := repo.Page().Get(ctx, conn.ID, "4")
	gt.NoError(t, err).Required()
	gt.Value(t, *grandchild.ParentID).Equal("2")

	child, err := repo.Page().Get(ctx, conn.ID, "2")
	gt.NoError(t, err).Required()
	gt.Value(t, *child.ParentID).Equal("1")
	gt.Value(t, child.VersionNumber).Equal(7)
	gt.Value(t, child.Metadata["parentType"]).Equal(any("page"))
	gt.Value(t, child.Metadata["title"]).Equal(any("Child A"))
	_, hasBody := child.Metadata["body"]
	gt.Bool(t, hasBody).False()
}

func TestSyncConnection_ConfluenceEmptySpaceReportsPages(t *testing.T) {
	repo := memory.New()
	conn := createConnection(t, repo, types.PlatformConfluence)

	result, err := newSync(repo, &mockFactory{conf: &mockConfluence{}}).SyncConnection(context.Background(), conn.ID, model.DefaultSyncOptions())
	gt.NoError(t, err).Required()
	gt.Value(t, result.PagesSynced).NotNil()
	gt.Value(t, *result.PagesSynced).Equal(0)
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	active := createConnection(t, repo, types.PlatformAzureDevOps)
	createConnection(t, repo, types.PlatformAzureDevOps, func(c *model.IntegrationConnection) { c.SyncEnabled = false })

	uc := newSync(repo, &mockFactory{ado: &mockAzureDevOps{}})
	opts := model.DefaultSyncOptions()
	opts.Trigger = types.SyncTriggerCLI

	results, err := uc.SyncAll(ctx, opts)
	gt.NoError(t, err).Required()
	gt.Value(t, len(results)).Equal(1)
	gt.Bool(t, results[active.ID].Success).True()

	runs, err := repo.SyncRun().List(ctx, active.ID, 1)
	gt.NoError(t, err).Required()
	gt.Value(t, runs[0].Trigger).Equal(types.SyncTriggerCLI)
}

func TestIdentityResolver(t *testing.T) {
	r := usecase.NewIdentityResolver([]*model.UserMapping{
		{ExternalEmail: "alice@example.com", EmployeeID: employee("emp-1")},
		{ExternalEmail: "bob@example.com"},
	})

	gt.Value(t, *r.Resolve("  Alice@Example.COM ")).Equal(model.EmployeeID("emp-1"))
	gt.Value(t, r.Resolve("bob@example.com")).Nil()
	gt.Value(t, r.Resolve("nobody@example.com")).Nil()
	gt.Value(t, r.Resolve("")).Nil()
	gt.A(t, r.Mapped()).Length(1)
}
