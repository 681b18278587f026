package asana

import (
	"context"
	"iter"
	"time"
)

// Service is the subset of the Asana REST API used for synchronization
type Service interface {
	TestConnection(ctx context.Context) bool
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)
	ListProjects(ctx context.Context, workspaceID string) ([]*Project, error)
	ListTasks(ctx context.Context, projectID string, filter TaskFilter) iter.Seq2[*Task, error]
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListUsers(ctx context.Context, workspaceID string) ([]*User, error)
}

type Config struct {
	// BaseURL defaults to DefaultBaseURL
	BaseURL string
	Token   string `masq:"secret"`
}

type TaskFilter struct {
	ModifiedSince *time.Time
	AssigneeGID   string
	// Limit is the page size, capped at 100 by the API
	Limit int
}

type Workspace struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

type Project struct {
	GID       string `json:"gid"`
	Name      string `json:"name"`
	Archived  bool   `json:"archived"`
	Workspace struct {
		GID string `json:"gid"`
	} `json:"workspace"`
}

type User struct {
	GID   string `json:"gid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Ref struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

type Membership struct {
	Project *Ref `json:"project"`
	Section *Ref `json:"section"`
}

type CustomField struct {
	GID          string   `json:"gid"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	DisplayValue *string  `json:"display_value"`
	EnumValue    *Ref     `json:"enum_value"`
	NumberValue  *float64 `json:"number_value"`
	TextValue    *string  `json:"text_value"`
}

type Task struct {
	GID             string         `json:"gid"`
	Name            string         `json:"name"`
	Notes           string         `json:"notes"`
	Completed       bool           `json:"completed"`
	CompletedAt     *time.Time     `json:"completed_at"`
	CreatedAt       *time.Time     `json:"created_at"`
	ModifiedAt      *time.Time     `json:"modified_at"`
	DueOn           string         `json:"due_on"`
	Assignee        *User          `json:"assignee"`
	Memberships     []Membership   `json:"memberships"`
	CustomFields    []CustomField  `json:"custom_fields"`
	Tags            []Ref          `json:"tags"`
	PermalinkURL    string         `json:"permalink_url"`
	ResourceSubtype string         `json:"resource_subtype"`
	Raw             map[string]any `json:"-"`
}

// DueDate parses the date-only due_on field
func (t *Task) DueDate() *time.Time {
	if t.DueOn == "" {
		return nil
	}
	d, err := time.Parse(time.DateOnly, t.DueOn)
	if err != nil {
		return nil
	}
	return &d
}

// TagNames returns the names of the tags attached to the task
func (t *Task) TagNames() []string {
	names := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if tag.Name != "" {
			names = append(names, tag.Name)
		}
	}
	return names
}
