package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/asana"
)

const asanaWorkItemType = "Task"

func (uc *SyncUseCase) syncAsana(ctx context.Context, run *syncRun) bool {
	if run.conn.WorkspaceID == "" {
		run.fail(ctx, nil, "Asana workspace ID is not configured")
		return false
	}
	client, err := uc.factory.Asana(run.conn)
	if err != nil {
		run.fail(ctx, err, "Invalid Asana configuration")
		return false
	}
	if !client.TestConnection(ctx) {
		run.fail(ctx, nil, "Failed to connect to %s", types.PlatformAsana.DisplayName())
		return false
	}
	if !run.opts.SyncWorkItems {
		return false
	}

	projects, err := client.ListProjects(ctx, run.conn.WorkspaceID)
	if err != nil {
		run.fail(ctx, err, "Failed to list Asana projects")
		return false
	}

	for _, p := range projects {
		if ctx.Err() != nil {
			return false
		}
		if p.Archived || !run.opts.AllowsContainer(p.GID, p.Name) {
			continue
		}
		uc.syncAsanaProject(ctx, run, client, p)
	}

	return run.opts.IsFullSweep()
}

func (uc *SyncUseCase) syncAsanaProject(ctx context.Context, run *syncRun, client asana.Service, project *asana.Project) {
	filter := asana.TaskFilter{ModifiedSince: run.opts.StartDate}
	for task, err := range client.ListTasks(ctx, project.GID, filter) {
		if err != nil {
			run.fail(ctx, err, "Failed to sync tasks for project %s", project.Name)
			return
		}
		wi, err := translateAsanaTask(run, project, task)
		if err != nil {
			run.fail(ctx, err, "Failed to translate task in project %s", project.Name)
			continue
		}
		if err := uc.repo.WorkItem().Upsert(ctx, wi); err != nil {
			run.fail(ctx, err, "Failed to save task %s", wi.ExternalID)
			continue
		}
		run.result.WorkItemsSynced++
		run.seen = append(run.seen, wi.ExternalID)
	}
}

func translateAsanaTask(run *syncRun, project *asana.Project, task *asana.Task) (*model.WorkItem, error) {
	if task == nil || task.GID == "" {
		return nil, goerr.New("task has no GID", goerr.V("project", project.GID))
	}

	status := asana.TaskStatus(task, project.GID)
	wi := &model.WorkItem{
		ConnectionID:  run.conn.ID,
		ExternalID:    task.GID,
		ExternalURL:   task.PermalinkURL,
		Platform:      types.PlatformAsana,
		Title:         task.Name,
		Description:   task.Notes,
		WorkItemType:  asanaWorkItemType,
		Status:        status,
		Priority:      asana.TaskPriority(task),
		CreatedDate:   task.CreatedAt,
		ModifiedDate:  task.ModifiedAt,
		CompletedDate: task.CompletedAt,
		DueDate:       task.DueDate(),
		Project:       project.Name,
		Section:       sectionName(task, project.GID),
		Tags:          task.TagNames(),
		Metadata:      task.Raw,
		LastSyncedAt:  run.syncedAt,
	}

	if task.Assignee != nil {
		wi.AssignedTo = task.Assignee.Email
		if wi.AssignedTo == "" {
			wi.AssignedTo = task.Assignee.GID
		}
		wi.AssignedToName = task.Assignee.Name
		wi.AssignedToID = run.identity.Resolve(task.Assignee.Email)
	}
	return wi, nil
}

func sectionName(task *asana.Task, projectGID string) string {
	for _, m := range task.Memberships {
		if m.Project != nil && m.Project.GID == projectGID && m.Section != nil {
			return m.Section.Name
		}
	}
	return ""
}
