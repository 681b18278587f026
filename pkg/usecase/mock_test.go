package usecase_test

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/service/asana"
	"github.com/secmon-lab/tributary/pkg/service/azuredevops"
	"github.com/secmon-lab/tributary/pkg/service/confluence"
)

// mockFactory hands out the configured mock services and counts how often a client was requested
type mockFactory struct {
	ado   *mockAzureDevOps
	asana *mockAsana
	conf  *mockConfluence
	err   error
	calls atomic.Int32
}

func (f *mockFactory) AzureDevOps(conn *model.IntegrationConnection) (azuredevops.Service, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.ado, nil
}

func (f *mockFactory) Asana(conn *model.IntegrationConnection) (asana.Service, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.asana, nil
}

func (f *mockFactory) Confluence(conn *model.IntegrationConnection) (confluence.Service, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.conf, nil
}

func seqOf[T any](items []T, err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
		if err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

type mockAzureDevOps struct {
	testConnectionFn   func(ctx context.Context) bool
	listProjectsFn     func(ctx context.Context) ([]*azuredevops.Project, error)
	listWorkItemsFn    func(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error)
	listRepositoriesFn func(ctx context.Context, project string) ([]*azuredevops.Repository, error)
	listCommitsFn      func(ctx context.Context, project, repositoryID string, filter azuredevops.CommitFilter) ([]*azuredevops.Commit, error)
	listUsersFn        func(ctx context.Context, project string) ([]*azuredevops.User, error)
	remoteCalls        atomic.Int32
}

func (m *mockAzureDevOps) TestConnection(ctx context.Context) bool {
	m.remoteCalls.Add(1)
	if m.testConnectionFn != nil {
		return m.testConnectionFn(ctx)
	}
	return true
}

func (m *mockAzureDevOps) ListProjects(ctx context.Context) ([]*azuredevops.Project, error) {
	m.remoteCalls.Add(1)
	if m.listProjectsFn != nil {
		return m.listProjectsFn(ctx)
	}
	return nil, nil
}

func (m *mockAzureDevOps) ListWorkItems(ctx context.Context, project string, filter azuredevops.WorkItemFilter) ([]*azuredevops.WorkItem, error) {
	m.remoteCalls.Add(1)
	if m.listWorkItemsFn != nil {
		return m.listWorkItemsFn(ctx, project, filter)
	}
	return nil, nil
}

func (m *mockAzureDevOps) ListRepositories(ctx context.Context, project string) ([]*azuredevops.Repository, error) {
	m.remoteCalls.Add(1)
	if m.listRepositoriesFn != nil {
		return m.listRepositoriesFn(ctx, project)
	}
	return nil, nil
}

func (m *mockAzureDevOps) ListCommits(ctx context.Context, project, repositoryID string, filter azuredevops.CommitFilter) iter.Seq2[*azuredevops.Commit, error] {
	m.remoteCalls.Add(1)
	if m.listCommitsFn != nil {
		commits, err := m.listCommitsFn(ctx, project, repositoryID, filter)
		return seqOf(commits, err)
	}
	return seqOf[*azuredevops.Commit](nil, nil)
}

func (m *mockAzureDevOps) ListUsers(ctx context.Context, project string) ([]*azuredevops.User, error) {
	m.remoteCalls.Add(1)
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, project)
	}
	return nil, nil
}

type mockAsana struct {
	testConnectionFn func(ctx context.Context) bool
	listProjectsFn   func(ctx context.Context, workspaceID string) ([]*asana.Project, error)
	listTasksFn      func(ctx context.Context, projectID string, filter asana.TaskFilter) ([]*asana.Task, error)
	listUsersFn      func(ctx context.Context, workspaceID string) ([]*asana.User, error)
}

func (m *mockAsana) TestConnection(ctx context.Context) bool {
	if m.testConnectionFn != nil {
		return m.testConnectionFn(ctx)
	}
	return true
}

func (m *mockAsana) ListWorkspaces(ctx context.Context) ([]*asana.Workspace, error) {
	return nil, nil
}

func (m *mockAsana) ListProjects(ctx context.Context, workspaceID string) ([]*asana.Project, error) {
	if m.listProjectsFn != nil {
		return m.listProjectsFn(ctx, workspaceID)
	}
	return nil, nil
}

func (m *mockAsana) ListTasks(ctx context.Context, projectID string, filter asana.TaskFilter) iter.Seq2[*asana.Task, error] {
	if m.listTasksFn != nil {
		tasks, err := m.listTasksFn(ctx, projectID, filter)
		return seqOf(tasks, err)
	}
	return seqOf[*asana.Task](nil, nil)
}

func (m *mockAsana) GetTask(ctx context.Context, taskID string) (*asana.Task, error) {
	return &asana.Task{GID: taskID}, nil
}

func (m *mockAsana) ListUsers(ctx context.Context, workspaceID string) ([]*asana.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, workspaceID)
	}
	return nil, nil
}

type mockConfluence struct {
	testConnectionFn func(ctx context.Context) bool
	listSpacesFn     func(ctx context.Context, keys ...string) ([]*confluence.Space, error)
	listPagesFn      func(ctx context.Context, spaceID string) ([]*confluence.Page, error)
}

func (m *mockConfluence) TestConnection(ctx context.Context) bool {
	if m.testConnectionFn != nil {
		return m.testConnectionFn(ctx)
	}
	return true
}

func (m *mockConfluence) ListSpaces(ctx context.Context, keys ...string) ([]*confluence.Space, error) {
	if m.listSpacesFn != nil {
		return m.listSpacesFn(ctx, keys...)
	}
	return nil, nil
}

func (m *mockConfluence) ListPages(ctx context.Context, spaceID string) ([]*confluence.Page, error) {
	if m.listPagesFn != nil {
		return m.listPagesFn(ctx, spaceID)
	}
	return nil, nil
}

func (m *mockConfluence) GetPage(ctx context.Context, pageID string) (*confluence.Page, error) {
	return &confluence.Page{ID: pageID}, nil
}

func (m *mockConfluence) ListChildPages(ctx context.Context, pageID string) ([]*confluence.Page, error) {
	return nil, nil
}

func (m *mockConfluence) GetPageHierarchy(ctx context.Context, spaceID string) ([]*confluence.PageNode, error) {
	pages, err := m.ListPages(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return confluence.BuildPageHierarchy(pages), nil
}
