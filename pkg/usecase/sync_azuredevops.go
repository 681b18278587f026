package usecase

import (
	"context"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/azuredevops"
)

// syncAzureDevOps reports whether the run covered every remote work item
func (uc *SyncUseCase) syncAzureDevOps(ctx context.Context, run *syncRun) bool {
	client, err := uc.factory.AzureDevOps(run.conn)
	if err != nil {
		run.fail(ctx, err, "Invalid Azure DevOps configuration")
		return false
	}
	if !client.TestConnection(ctx) {
		run.fail(ctx, nil, "Failed to connect to %s", types.PlatformAzureDevOps.DisplayName())
		return false
	}

	all, err := client.ListProjects(ctx)
	if err != nil {
		run.fail(ctx, err, "Failed to list Azure DevOps projects")
		return false
	}
	var projects []*azuredevops.Project
	for _, p := range all {
		if run.opts.AllowsContainer(p.ID, p.Name) {
			projects = append(projects, p)
		}
	}

	if run.opts.SyncWorkItems {
		for _, p := range projects {
			if ctx.Err() != nil {
				return false
			}
			uc.syncAzureDevOpsWorkItems(ctx, run, client, p)
		}
	}

	if run.opts.SyncCommits {
		mapped := run.identity.Mapped()
		if len(mapped) == 0 {
			run.logger.Info("no mapped users, skip commit sync")
		}
		for _, p := range projects {
			if ctx.Err() != nil || len(mapped) == 0 {
				break
			}
			uc.syncAzureDevOpsCommits(ctx, run, client, p, mapped)
		}
	}

	return run.opts.SyncWorkItems && run.opts.IsFullSweep()
}

func (uc *SyncUseCase) syncAzureDevOpsWorkItems(ctx context.Context, run *syncRun, client azuredevops.Service, project *azuredevops.Project) {
	items, err := client.ListWorkItems(ctx, project.Name, azuredevops.WorkItemFilter{StartDate: run.opts.StartDate})
	if err != nil {
		run.fail(ctx, err, "Failed to sync work items for project %s", project.Name)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		wi, err := translateAzureDevOpsWorkItem(run, project.Name, item)
		if err != nil {
			run.fail(ctx, err, "Failed to translate work item in project %s", project.Name)
			continue
		}
		if err := uc.repo.WorkItem().Upsert(ctx, wi); err != nil {
			run.fail(ctx, err, "Failed to save work item %s", wi.ExternalID)
			continue
		}
		run.result.WorkItemsSynced++
		run.seen = append(run.seen, wi.ExternalID)
	}
	run.logger.Debug("synced project work items", "project", project.Name, "count", len(items))
}

func translateAzureDevOpsWorkItem(run *syncRun, project string, item *azuredevops.WorkItem) (*model.WorkItem, error) {
	if item.ID <= 0 {
		return nil, goerr.New("work item has no ID", goerr.V("url", item.URL))
	}
	if teamProject := item.String(azuredevops.FieldTeamProject); teamProject != "" {
		project = teamProject
	}

	wi := &model.WorkItem{
		ConnectionID:  run.conn.ID,
		ExternalID:    strconv.Itoa(item.ID),
		ExternalURL:   azuredevops.WorkItemURL(run.conn.OrganizationURL, project, item),
		Platform:      types.PlatformAzureDevOps,
		Title:         item.String(azuredevops.FieldTitle),
		Description:   item.String(azuredevops.FieldDescription),
		WorkItemType:  item.String(azuredevops.FieldWorkItemType),
		Status:        item.String(azuredevops.FieldState),
		Priority:      item.Priority(),
		CreatedDate:   item.Time(azuredevops.FieldCreatedDate),
		ModifiedDate:  item.Time(azuredevops.FieldChangedDate),
		CompletedDate: item.Time(azuredevops.FieldClosedDate),
		DueDate:       item.Time(azuredevops.FieldDueDate),
		Project:       project,
		AreaPath:      item.String(azuredevops.FieldAreaPath),
		IterationPath: item.String(azuredevops.FieldIterationPath),
		StoryPoints:   item.Float(azuredevops.FieldStoryPoints),
		Tags:          item.Tags(),
		Metadata: map[string]any{
			"id":     item.ID,
			"rev":    item.Rev,
			"url":    item.URL,
			"fields": item.Fields,
		},
		LastSyncedAt: run.syncedAt,
	}

	if assignee := item.AssignedTo(); assignee != nil {
		wi.AssignedTo = assignee.UniqueName
		wi.AssignedToName = assignee.DisplayName
		wi.AssignedToID = run.identity.Resolve(assignee.UniqueName)
	}
	return wi, nil
}

func (uc *SyncUseCase) syncAzureDevOpsCommits(ctx context.Context, run *syncRun, client azuredevops.Service, project *azuredevops.Project, mapped []*model.UserMapping) {
	repos, err := client.ListRepositories(ctx, project.Name)
	if err != nil {
		run.fail(ctx, err, "Failed to list repositories for project %s", project.Name)
		return
	}

	for _, repo := range repos {
		for _, user := range mapped {
			if ctx.Err() != nil {
				return
			}
			filter := azuredevops.CommitFilter{
				Author:   user.ExternalEmail,
				FromDate: run.opts.StartDate,
				ToDate:   run.opts.EndDate,
			}
			for commit, err := range client.ListCommits(ctx, project.Name, repo.ID, filter) {
				if err != nil {
					run.fail(ctx, err, "Failed to sync commits of %s in %s/%s", user.ExternalEmail, project.Name, repo.Name)
					break
				}
				dc, err := translateAzureDevOpsCommit(run, repo, commit, *user.EmployeeID)
				if err != nil {
					run.fail(ctx, err, "Failed to translate commit in %s/%s", project.Name, repo.Name)
					continue
				}
				if err := uc.repo.Commit().Upsert(ctx, dc); err != nil {
					run.fail(ctx, err, "Failed to save commit %s", dc.CommitHash)
					continue
				}
				run.result.CommitsSynced++
			}
		}
	}
}

func translateAzureDevOpsCommit(run *syncRun, repo *azuredevops.Repository, c *azuredevops.Commit, employeeID model.EmployeeID) (*model.DeveloperCommit, error) {
	if c.CommitID == "" {
		return nil, goerr.New("commit has no ID", goerr.V("repository", repo.Name))
	}

	url := c.RemoteURL
	if url == "" && repo.WebURL != "" {
		url = repo.WebURL + "/commit/" + c.CommitID
	}

	return &model.DeveloperCommit{
		ConnectionID:    run.conn.ID,
		EmployeeID:      employeeID,
		CommitHash:      c.CommitID,
		Message:         c.Comment,
		URL:             url,
		Repository:      repo.Name,
		FilesChanged:    c.ChangeCounts.Add + c.ChangeCounts.Edit + c.ChangeCounts.Delete,
		LinesAdded:      c.ChangeCounts.Add,
		LinesDeleted:    c.ChangeCounts.Delete,
		AuthorName:      c.Author.Name,
		AuthorEmail:     c.Author.Email,
		AuthorDate:      c.Author.Date,
		CommitterName:   c.Committer.Name,
		CommitterEmail:  c.Committer.Email,
		CommitDate:      c.Committer.Date,
		LinkedWorkItems: model.ExtractLinkedWorkItems(c.Comment),
		LastSyncedAt:    run.syncedAt,
	}, nil
}
