package azuredevops

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"time"
)

// Service provides access to the Azure DevOps REST API (version 7.0)
type Service interface {
	// TestConnection reports whether the organization is reachable with the token.
	// Failures are logged, never returned.
	TestConnection(ctx context.Context) bool

	ListProjects(ctx context.Context) ([]*Project, error)

	// ListWorkItems runs a WIQL query in project and fetches the matching items in batches
	ListWorkItems(ctx context.Context, project string, filter WorkItemFilter) ([]*WorkItem, error)

	ListRepositories(ctx context.Context, project string) ([]*Repository, error)

	// ListCommits yields commits of a repository page by page
	ListCommits(ctx context.Context, project, repositoryID string, filter CommitFilter) iter.Seq2[*Commit, error]

	// ListUsers returns the members of every team in project, deduplicated by identity ID
	ListUsers(ctx context.Context, project string) ([]*User, error)
}

type Config struct {
	OrganizationURL string
	Token           string `masq:"secret"`
}

// WorkItemFilter narrows a WIQL query. Zero values are ignored.
type WorkItemFilter struct {
	AssignedTo string
	State      string
	StartDate  *time.Time
	Top        int
}

// CommitFilter maps onto searchCriteria parameters. Zero values are ignored.
type CommitFilter struct {
	Author   string
	FromDate *time.Time
	ToDate   *time.Time
	Top      int
}

type Project struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	State          string     `json:"state"`
	URL            string     `json:"url"`
	LastUpdateTime *time.Time `json:"lastUpdateTime"`
}

type IdentityRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// Field names used when translating work items
const (
	FieldTitle         = "System.Title"
	FieldDescription   = "System.Description"
	FieldWorkItemType  = "System.WorkItemType"
	FieldState         = "System.State"
	FieldAssignedTo    = "System.AssignedTo"
	FieldCreatedDate   = "System.CreatedDate"
	FieldChangedDate   = "System.ChangedDate"
	FieldClosedDate    = "Microsoft.VSTS.Common.ClosedDate"
	FieldDueDate       = "Microsoft.VSTS.Scheduling.DueDate"
	FieldPriority      = "Microsoft.VSTS.Common.Priority"
	FieldAreaPath      = "System.AreaPath"
	FieldIterationPath = "System.IterationPath"
	FieldStoryPoints   = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldTags          = "System.Tags"
	FieldTeamProject   = "System.TeamProject"
)

type WorkItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
	URL    string         `json:"url"`
	Links  struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

// String returns a string field, or "" when absent or of another type
func (w *WorkItem) String(field string) string {
	if v, ok := w.Fields[field].(string); ok {
		return v
	}
	return ""
}

// Time parses an RFC 3339 field
func (w *WorkItem) Time(field string) *time.Time {
	s := w.String(field)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// Float reads a numeric field. JSON numbers decode as float64.
func (w *WorkItem) Float(field string) *float64 {
	switch v := w.Fields[field].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Priority returns the priority field in its textual form
func (w *WorkItem) Priority() *string {
	switch v := w.Fields[FieldPriority].(type) {
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case string:
		if v != "" {
			return &v
		}
	}
	return nil
}

// AssignedTo decodes the identity object of System.AssignedTo
func (w *WorkItem) AssignedTo() *IdentityRef {
	raw, ok := w.Fields[FieldAssignedTo].(map[string]any)
	if !ok {
		return nil
	}
	ref := &IdentityRef{}
	ref.ID, _ = raw["id"].(string)
	ref.DisplayName, _ = raw["displayName"].(string)
	ref.UniqueName, _ = raw["uniqueName"].(string)
	return ref
}

// Tags splits the semicolon separated tag list
func (w *WorkItem) Tags() []string {
	tags := []string{}
	for _, t := range strings.Split(w.String(FieldTags), ";") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type Repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	RemoteURL     string `json:"remoteUrl"`
	WebURL        string `json:"webUrl"`
	DefaultBranch string `json:"defaultBranch"`
	Project       struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

type GitUserDate struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Date  *time.Time `json:"date"`
}

type ChangeCounts struct {
	Add    int `json:"Add"`
	Edit   int `json:"Edit"`
	Delete int `json:"Delete"`
}

type Commit struct {
	CommitID     string       `json:"commitId"`
	Comment      string       `json:"comment"`
	Author       GitUserDate  `json:"author"`
	Committer    GitUserDate  `json:"committer"`
	ChangeCounts ChangeCounts `json:"changeCounts"`
	URL          string       `json:"url"`
	RemoteURL    string       `json:"remoteUrl"`
}

type User struct {
	ID          string
	DisplayName string
	// UniqueName is the sign-in name, normally the email address
	UniqueName string
}
