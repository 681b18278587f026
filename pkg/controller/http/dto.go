package http

import (
	"time"

	"github.com/secmon-lab/tributary/pkg/domain/model"
)

// connectionResponse is the public view of a connection. The token never leaves the server.
type connectionResponse struct {
	ID              string     `json:"id"`
	Platform        string     `json:"platform"`
	Name            string     `json:"name"`
	OrganizationURL string     `json:"organization_url,omitempty"`
	WorkspaceID     string     `json:"workspace_id,omitempty"`
	SiteURL         string     `json:"site_url,omitempty"`
	SpaceKey        string     `json:"space_key,omitempty"`
	AccountEmail    string     `json:"account_email,omitempty"`
	HasToken        bool       `json:"has_token"`
	SyncEnabled     bool       `json:"sync_enabled"`
	IsActive        bool       `json:"is_active"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus  string     `json:"last_sync_status,omitempty"`
	LastSyncError   *string    `json:"last_sync_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toConnectionResponse(c *model.IntegrationConnection) connectionResponse {
	return connectionResponse{
		ID:              c.ID.String(),
		Platform:        c.Platform.String(),
		Name:            c.Name,
		OrganizationURL: c.OrganizationURL,
		WorkspaceID:     c.WorkspaceID,
		SiteURL:         c.SiteURL,
		SpaceKey:        c.SpaceKey,
		AccountEmail:    c.AccountEmail,
		HasToken:        c.HasToken(),
		SyncEnabled:     c.SyncEnabled,
		IsActive:        c.IsActive,
		LastSyncAt:      c.LastSyncAt,
		LastSyncStatus:  c.LastSyncStatus.String(),
		LastSyncError:   c.LastSyncError,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type mappingResponse struct {
	ID               string    `json:"id"`
	ConnectionID     string    `json:"connection_id"`
	ExternalID       string    `json:"external_id,omitempty"`
	ExternalUsername string    `json:"external_username,omitempty"`
	ExternalEmail    string    `json:"external_email"`
	EmployeeID       *string   `json:"employee_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toMappingResponse(m *model.UserMapping) mappingResponse {
	resp := mappingResponse{
		ID:               string(m.ID),
		ConnectionID:     m.ConnectionID.String(),
		ExternalID:       m.ExternalID,
		ExternalUsername: m.ExternalUsername,
		ExternalEmail:    m.ExternalEmail,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.EmployeeID != nil {
		id := string(*m.EmployeeID)
		resp.EmployeeID = &id
	}
	return resp
}

type workItemResponse struct {
	ExternalID     string         `json:"external_id"`
	ExternalURL    string         `json:"external_url"`
	Platform       string         `json:"platform"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	WorkItemType   string         `json:"work_item_type"`
	Status         string         `json:"status"`
	Priority       *string        `json:"priority,omitempty"`
	AssignedToID   *string        `json:"assigned_to_id,omitempty"`
	AssignedTo     string         `json:"assigned_to,omitempty"`
	AssignedToName string         `json:"assigned_to_name,omitempty"`
	CreatedDate    *time.Time     `json:"created_date,omitempty"`
	ModifiedDate   *time.Time     `json:"modified_date,omitempty"`
	CompletedDate  *time.Time     `json:"completed_date,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Project        string         `json:"project,omitempty"`
	Section        string         `json:"section,omitempty"`
	AreaPath       string         `json:"area_path,omitempty"`
	IterationPath  string         `json:"iteration_path,omitempty"`
	StoryPoints    *float64       `json:"story_points,omitempty"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Stale          bool           `json:"stale"`
	LastSyncedAt   time.Time      `json:"last_synced_at"`
}

func toWorkItemResponse(wi *model.WorkItem) workItemResponse {
	resp := workItemResponse{
		ExternalID:     wi.ExternalID,
		ExternalURL:    wi.ExternalURL,
		Platform:       wi.Platform.String(),
		Title:          wi.Title,
		Description:    wi.Description,
		WorkItemType:   wi.WorkItemType,
		Status:         wi.Status,
		Priority:       wi.Priority,
		AssignedTo:     wi.AssignedTo,
		AssignedToName: wi.AssignedToName,
		CreatedDate:    wi.CreatedDate,
		ModifiedDate:   wi.ModifiedDate,
		CompletedDate:  wi.CompletedDate,
		DueDate:        wi.DueDate,
		Project:        wi.Project,
		Section:        wi.Section,
		AreaPath:       wi.AreaPath,
		IterationPath:  wi.IterationPath,
		StoryPoints:    wi.StoryPoints,
		Tags:           wi.Tags,
		Metadata:       wi.Metadata,
		Stale:          wi.Stale,
		LastSyncedAt:   wi.LastSyncedAt,
	}
	if wi.AssignedToID != nil {
		id := string(*wi.AssignedToID)
		resp.AssignedToID = &id
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	return resp
}

type commitResponse struct {
	CommitHash      string     `json:"commit_hash"`
	EmployeeID      string     `json:"employee_id"`
	Message         string     `json:"message"`
	URL             string     `json:"url"`
	Repository      string     `json:"repository"`
	FilesChanged    int        `json:"files_changed"`
	LinesAdded      int        `json:"lines_added"`
	LinesDeleted    int        `json:"lines_deleted"`
	AuthorName      string     `json:"author_name"`
	AuthorEmail     string     `json:"author_email"`
	AuthorDate      *time.Time `json:"author_date,omitempty"`
	CommitterName   string     `json:"committer_name"`
	CommitterEmail  string     `json:"committer_email"`
	CommitDate      *time.Time `json:"commit_date,omitempty"`
	LinkedWorkItems []string   `json:"linked_work_items"`
	LastSyncedAt    time.Time  `json:"last_synced_at"`
}

func toCommitResponse(c *model.DeveloperCommit) commitResponse {
	resp := commitResponse{
		CommitHash:      c.CommitHash,
		EmployeeID:      string(c.EmployeeID),
		Message:         c.Message,
		URL:             c.URL,
		Repository:      c.Repository,
		FilesChanged:    c.FilesChanged,
		LinesAdded:      c.LinesAdded,
		LinesDeleted:    c.LinesDeleted,
		AuthorName:      c.AuthorName,
		AuthorEmail:     c.AuthorEmail,
		AuthorDate:      c.AuthorDate,
		CommitterName:   c.CommitterName,
		CommitterEmail:  c.CommitterEmail,
		CommitDate:      c.CommitDate,
		LinkedWorkItems: c.LinkedWorkItems,
		LastSyncedAt:    c.LastSyncedAt,
	}
	if resp.LinkedWorkItems == nil {
		resp.LinkedWorkItems = []string{}
	}
	return resp
}

type pageResponse struct {
	ExternalID     string     `json:"external_id"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Title          string     `json:"title"`
	Content        string     `json:"content,omitempty"`
	SpaceID        string     `json:"space_id"`
	SpaceKey       string     `json:"space_key"`
	SpaceName      string     `json:"space_name"`
	ParentID       *string    `json:"parent_id"`
	Position       *int       `json:"position,omitempty"`
	AuthorID       string     `json:"author_id,omitempty"`
	OwnerID        string     `json:"owner_id,omitempty"`
	VersionNumber  int        `json:"version_number"`
	VersionMessage string     `json:"version_message,omitempty"`
	CreatedDate    *time.Time `json:"created_date,omitempty"`
	UpdatedDate    *time.Time `json:"updated_date,omitempty"`
	URL            string     `json:"url"`
	Stale          bool       `json:"stale"`
	LastSyncedAt   time.Time  `json:"last_synced_at"`
}

// toPageResponse omits the body unless withContent is set; page bodies dominate the payload
func toPageResponse(p *model.ConfluencePage, withContent bool) pageResponse {
	resp := pageResponse{
		ExternalID:     p.ExternalID,
		Type:           p.Type,
		Status:         p.Status,
		Title:          p.Title,
		SpaceID:        p.SpaceID,
		SpaceKey:       p.SpaceKey,
		SpaceName:      p.SpaceName,
		ParentID:       p.ParentID,
		Position:       p.Position,
		AuthorID:       p.AuthorID,
		OwnerID:        p.OwnerID,
		VersionNumber:  p.VersionNumber,
		VersionMessage: p.VersionMessage,
		CreatedDate:    p.CreatedDate,
		UpdatedDate:    p.UpdatedDate,
		URL:            p.URL,
		Stale:          p.Stale,
		LastSyncedAt:   p.LastSyncedAt,
	}
	if withContent {
		resp.Content = p.Content
	}
	return resp
}

type syncRunResponse struct {
	ID              string    `json:"id"`
	Trigger         string    `json:"trigger"`
	Status          string    `json:"status"`
	WorkItemsSynced int       `json:"work_items_synced"`
	CommitsSynced   int       `json:"commits_synced"`
	PagesSynced     int       `json:"pages_synced"`
	StaleMarked     int       `json:"stale_marked"`
	Errors          []string  `json:"errors"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMs      int64     `json:"duration_ms"`
}

func toSyncRunResponse(r *model.SyncRun) syncRunResponse {
	resp := syncRunResponse{
		ID:              string(r.ID),
		Trigger:         string(r.Trigger),
		Status:          r.Status.String(),
		WorkItemsSynced: r.WorkItemsSynced,
		CommitsSynced:   r.CommitsSynced,
		PagesSynced:     r.PagesSynced,
		StaleMarked:     r.StaleMarked,
		Errors:          r.Errors,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		DurationMs:      r.DurationMs,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	return resp
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}
