package azuredevops

import (
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

const (
	apiVersion = "7.0"

	// workItemBatchSize is the maximum number of IDs accepted by the batch work item endpoint
	workItemBatchSize = 200
	defaultCommitPage = 100
	projectPageSize   = 100

	continuationHeader = "x-ms-continuationtoken"
)

var ErrInvalidConfig = goerr.New("invalid Azure DevOps config")

type client struct {
	orgURL string
	api    *restapi.Client
}

// New creates an Azure DevOps service for the organization in cfg
func New(cfg Config, opts ...restapi.Option) (Service, error) {
	if cfg.Token == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "personal access token is required")
	}
	orgURL := strings.TrimRight(cfg.OrganizationURL, "/")
	if orgURL == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "organization URL is required")
	}

	api, err := restapi.New(restapi.Config{
		BaseURL:      orgURL,
		Auth:         restapi.BasicAuth{Password: cfg.Token},
		ErrorMessage: errorMessage,
	}.Apply(opts...))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Azure DevOps REST client", goerr.V("organization_url", orgURL))
	}

	return &client{orgURL: orgURL, api: api}, nil
}

func errorMessage(body []byte) string {
	var v struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &v); err == nil && v.Message != "" {
		return v.Message
	}
	return strings.TrimSpace(string(body))
}

func query(kv ...string) url.Values {
	q := url.Values{"api-version": {apiVersion}}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

func (c *client) TestConnection(ctx context.Context) bool {
	if _, err := c.api.GetJSON(ctx, "_apis/projects", query("$top", "1"), nil); err != nil {
		logging.From(ctx).Warn("Azure DevOps connection test failed",
			"organization_url", c.orgURL, "status", restapi.StatusCode(err), "error", err)
		return false
	}
	return true
}

func (c *client) ListProjects(ctx context.Context) ([]*Project, error) {
	var projects []*Project
	token := ""
	for {
		q := query("$top", strconv.Itoa(projectPageSize))
		if token != "" {
			q.Set("continuationToken", token)
		}

		var resp listResponse[*Project]
		raw, err := c.api.GetJSON(ctx, "_apis/projects", q, &resp)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list projects")
		}
		projects = append(projects, resp.Value...)

		token = raw.Header.Get(continuationHeader)
		if token == "" {
			return projects, nil
		}
	}
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

func (c *client) ListWorkItems(ctx context.Context, project string, filter WorkItemFilter) ([]*WorkItem, error) {
	q := query()
	if filter.Top > 0 {
		q.Set("$top", strconv.Itoa(filter.Top))
	}

	wiql := BuildWorkItemQuery(project, filter)
	var ids wiqlResponse
	if _, err := c.api.PostJSON(ctx, url.PathEscape(project)+"/_apis/wit/wiql", q, map[string]string{"query": wiql}, &ids); err != nil {
		return nil, goerr.Wrap(err, "failed to run WIQL query", goerr.V("project", project))
	}

	items := make([]*WorkItem, 0, len(ids.WorkItems))
	for start := 0; start < len(ids.WorkItems); start += workItemBatchSize {
		end := min(start+workItemBatchSize, len(ids.WorkItems))
		batch := make([]string, 0, end-start)
		for _, ref := range ids.WorkItems[start:end] {
			batch = append(batch, strconv.Itoa(ref.ID))
		}

		var resp listResponse[*WorkItem]
		_, err := c.api.GetJSON(ctx, "_apis/wit/workitems", query(
			"ids", strings.Join(batch, ","),
			"$expand", "all",
			"errorPolicy", "omit",
		), &resp)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch work items",
				goerr.V("project", project), goerr.V("batch_start", start), goerr.V("batch_size", len(batch)))
		}
		for _, item := range resp.Value {
			// omitted (deleted or inaccessible) items come back as null
			if item != nil {
				items = append(items, item)
			}
		}
	}

	return items, nil
}

func (c *client) ListRepositories(ctx context.Context, project string) ([]*Repository, error) {
	var resp listResponse[*Repository]
	if _, err := c.api.GetJSON(ctx, url.PathEscape(project)+"/_apis/git/repositories", query(), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to list repositories", goerr.V("project", project))
	}
	return resp.Value, nil
}

func (c *client) ListCommits(ctx context.Context, project, repositoryID string, filter CommitFilter) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		top := filter.Top
		if top <= 0 {
			top = defaultCommitPage
		}
		path := url.PathEscape(project) + "/_apis/git/repositories/" + url.PathEscape(repositoryID) + "/commits"

		for skip := 0; ; skip += top {
			q := query(
				"searchCriteria.$top", strconv.Itoa(top),
				"searchCriteria.$skip", strconv.Itoa(skip),
			)
			if filter.Author != "" {
				q.Set("searchCriteria.author", filter.Author)
			}
			if filter.FromDate != nil {
				q.Set("searchCriteria.fromDate", filter.FromDate.UTC().Format(time.RFC3339))
			}
			if filter.ToDate != nil {
				q.Set("searchCriteria.toDate", filter.ToDate.UTC().Format(time.RFC3339))
			}

			var resp listResponse[*Commit]
			if _, err := c.api.GetJSON(ctx, path, q, &resp); err != nil {
				yield(nil, goerr.Wrap(err, "failed to list commits",
					goerr.V("project", project), goerr.V("repository_id", repositoryID), goerr.V("skip", skip)))
				return
			}

			for _, commit := range resp.Value {
				if !yield(commit, nil) {
					return
				}
			}

			if len(resp.Value) < top {
				return
			}
		}
	}
}

type team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type teamMember struct {
	Identity IdentityRef `json:"identity"`
}

func (c *client) ListUsers(ctx context.Context, project string) ([]*User, error) {
	var teams listResponse[team]
	teamsPath := "_apis/projects/" + url.PathEscape(project) + "/teams"
	if _, err := c.api.GetJSON(ctx, teamsPath, query(), &teams); err != nil {
		return nil, goerr.Wrap(err, "failed to list teams", goerr.V("project", project))
	}

	seen := make(map[string]struct{})
	var users []*User
	for _, t := range teams.Value {
		var members listResponse[teamMember]
		if _, err := c.api.GetJSON(ctx, teamsPath+"/"+url.PathEscape(t.ID)+"/members", query(), &members); err != nil {
			return nil, goerr.Wrap(err, "failed to list team members", goerr.V("project", project), goerr.V("team", t.Name))
		}
		for _, m := range members.Value {
			if _, ok := seen[m.Identity.ID]; ok {
				continue
			}
			seen[m.Identity.ID] = struct{}{}
			users = append(users, &User{
				ID:          m.Identity.ID,
				DisplayName: m.Identity.DisplayName,
				UniqueName:  m.Identity.UniqueName,
			})
		}
	}
	return users, nil
}

// WorkItemURL returns the browser URL of item, falling back to the edit form URL
func WorkItemURL(orgURL, project string, item *WorkItem) string {
	if item.Links.HTML.Href != "" {
		return item.Links.HTML.Href
	}
	return strings.TrimRight(orgURL, "/") + "/" + url.PathEscape(project) + "/_workitems/edit/" + strconv.Itoa(item.ID)
}
