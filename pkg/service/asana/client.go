package asana

import (
	"context"
	"encoding/json"
	"iter"
	"maps"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

const (
	DefaultBaseURL = "https://app.asana.com/api/1.0"

	defaultPageSize = 100
	maxPageSize     = 100
)

// taskFields are requested through opt_fields so a single list call carries everything translation needs
var taskFields = strings.Join([]string{
	"gid", "name", "notes", "completed", "completed_at", "created_at", "modified_at", "due_on",
	"assignee.gid", "assignee.name", "assignee.email",
	"memberships.project.gid", "memberships.project.name", "memberships.section.gid", "memberships.section.name",
	"custom_fields.gid", "custom_fields.name", "custom_fields.type", "custom_fields.display_value",
	"custom_fields.enum_value.name", "custom_fields.number_value", "custom_fields.text_value",
	"tags.gid", "tags.name", "permalink_url", "resource_subtype",
}, ",")

var ErrInvalidConfig = goerr.New("invalid Asana config")

type client struct {
	api *restapi.Client
}

// New creates an Asana service authenticated with a personal access token
func New(cfg Config, opts ...restapi.Option) (Service, error) {
	if cfg.Token == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "personal access token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	api, err := restapi.New(restapi.Config{
		BaseURL:      baseURL,
		Auth:         restapi.BearerToken{Token: cfg.Token},
		ErrorMessage: errorMessage,
	}.Apply(opts...))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Asana REST client")
	}
	return &client{api: api}, nil
}

func errorMessage(body []byte) string {
	var v struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &v); err == nil && len(v.Errors) > 0 {
		msgs := make([]string, 0, len(v.Errors))
		for _, e := range v.Errors {
			if e.Message != "" {
				msgs = append(msgs, e.Message)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(body))
}

type envelope[T any] struct {
	Data     T `json:"data"`
	NextPage *struct {
		Offset string `json:"offset"`
	} `json:"next_page"`
}

func (e *envelope[T]) nextOffset() string {
	if e.NextPage == nil {
		return ""
	}
	return e.NextPage.Offset
}

// paginate fetches every page of path following next_page.offset
func paginate[T any](ctx context.Context, api *restapi.Client, path string, q url.Values) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		q := maps.Clone(q)
		offset := ""
		for {
			if offset != "" {
				q.Set("offset", offset)
			}
			var page envelope[[]T]
			if _, err := api.GetJSON(ctx, path, q, &page); err != nil {
				yield(zero, err)
				return
			}
			for _, v := range page.Data {
				if !yield(v, nil) {
					return
				}
			}
			if offset = page.nextOffset(); offset == "" {
				return
			}
		}
	}
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *client) TestConnection(ctx context.Context) bool {
	var me envelope[User]
	if _, err := c.api.GetJSON(ctx, "users/me", nil, &me); err != nil {
		logging.From(ctx).Warn("Asana connection test failed", "status", restapi.StatusCode(err), "error", err)
		return false
	}
	return true
}

func (c *client) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	q := url.Values{"limit": {strconv.Itoa(defaultPageSize)}}
	workspaces, err := collect(paginate[*Workspace](ctx, c.api, "workspaces", q))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list workspaces")
	}
	return workspaces, nil
}

func (c *client) ListProjects(ctx context.Context, workspaceID string) ([]*Project, error) {
	q := url.Values{
		"workspace":  {workspaceID},
		"archived":   {"false"},
		"limit":      {strconv.Itoa(defaultPageSize)},
		"opt_fields": {"gid,name,archived,workspace.gid"},
	}
	projects, err := collect(paginate[*Project](ctx, c.api, "projects", q))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects", goerr.V("workspace_id", workspaceID))
	}
	return projects, nil
}

func (c *client) ListTasks(ctx context.Context, projectID string, filter TaskFilter) iter.Seq2[*Task, error] {
	limit := filter.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	q := url.Values{
		"project":    {projectID},
		"limit":      {strconv.Itoa(limit)},
		"opt_fields": {taskFields},
	}
	if filter.ModifiedSince != nil {
		since := filter.ModifiedSince.UTC().Format(time.RFC3339)
		// completed_since keeps tasks completed inside the window, which modified_since alone drops
		q.Set("modified_since", since)
		q.Set("completed_since", since)
	}
	if filter.AssigneeGID != "" {
		q.Set("assignee", filter.AssigneeGID)
	}

	return func(yield func(*Task, error) bool) {
		for task, err := range paginate[*Task](ctx, c.api, "tasks", q) {
			if err != nil {
				yield(nil, goerr.Wrap(err, "failed to list tasks", goerr.V("project_id", projectID)))
				return
			}
			if !yield(task, nil) {
				return
			}
		}
	}
}

func (c *client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var resp envelope[*Task]
	q := url.Values{"opt_fields": {taskFields}}
	if _, err := c.api.GetJSON(ctx, "tasks/"+url.PathEscape(taskID), q, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to get task", goerr.V("task_id", taskID))
	}
	return resp.Data, nil
}

func (c *client) ListUsers(ctx context.Context, workspaceID string) ([]*User, error) {
	q := url.Values{
		"limit":      {strconv.Itoa(defaultPageSize)},
		"opt_fields": {"gid,name,email"},
	}
	users, err := collect(paginate[*User](ctx, c.api, "workspaces/"+url.PathEscape(workspaceID)+"/users", q))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list users", goerr.V("workspace_id", workspaceID))
	}
	return users, nil
}
