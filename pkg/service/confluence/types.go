package confluence

import (
	"context"
	"encoding/json"
	"time"
)

// Service reads spaces and pages from Confluence Cloud through the v2 REST API
type Service interface {
	TestConnection(ctx context.Context) bool
	ListSpaces(ctx context.Context, keys ...string) ([]*Space, error)
	ListPages(ctx context.Context, spaceID string) ([]*Page, error)
	GetPage(ctx context.Context, pageID string) (*Page, error)
	ListChildPages(ctx context.Context, pageID string) ([]*Page, error)
	GetPageHierarchy(ctx context.Context, spaceID string) ([]*PageNode, error)
}

type Config struct {
	SiteURL string
	Email   string
	Token   string `masq:"secret"`
}

type Space struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

type Version struct {
	Number    int        `json:"number"`
	Message   string     `json:"message"`
	CreatedAt *time.Time `json:"createdAt"`
	AuthorID  string     `json:"authorId"`
}

type Body struct {
	Storage *struct {
		Value          string `json:"value"`
		Representation string `json:"representation"`
	} `json:"storage"`
}

type Page struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Title      string     `json:"title"`
	SpaceID    string     `json:"spaceId"`
	ParentID   string     `json:"parentId"`
	ParentType string     `json:"parentType"`
	Position   *int       `json:"position"`
	AuthorID   string     `json:"authorId"`
	OwnerID    string     `json:"ownerId"`
	CreatedAt  *time.Time `json:"createdAt"`
	Version    *Version   `json:"version"`
	Body       *Body      `json:"body"`
	Links      struct {
		WebUI  string `json:"webui"`
		EditUI string `json:"editui"`
		TinyUI string `json:"tinyui"`
	} `json:"_links"`

	// Raw is the page as returned by the API
	Raw map[string]any `json:"-"`
}

// UnmarshalJSON keeps the native record in Raw alongside the typed fields
func (p *Page) UnmarshalJSON(data []byte) error {
	type plain Page
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &v.Raw); err != nil {
		return err
	}
	*p = Page(v)
	return nil
}

// Content returns the storage-format body, or "" when the body was not requested
func (p *Page) Content() string {
	if p.Body == nil || p.Body.Storage == nil {
		return ""
	}
	return p.Body.Storage.Value
}

// PageNode is a page with its children resolved within one space
type PageNode struct {
	Page     *Page
	Children []*PageNode
}
