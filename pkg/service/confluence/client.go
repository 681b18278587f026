package confluence

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

const (
	apiPath  = "/wiki/api/v2"
	pageSize = 250
)

var ErrInvalidConfig = goerr.New("invalid Confluence config")

type client struct {
	siteURL string
	api     *restapi.Client
}

// New creates a Confluence Cloud service authenticated with an account email and API token
func New(cfg Config, opts ...restapi.Option) (Service, error) {
	siteURL := strings.TrimRight(cfg.SiteURL, "/")
	switch {
	case cfg.Token == "":
		return nil, goerr.Wrap(ErrInvalidConfig, "API token is required")
	case cfg.Email == "":
		return nil, goerr.Wrap(ErrInvalidConfig, "account email is required")
	case siteURL == "":
		return nil, goerr.Wrap(ErrInvalidConfig, "site URL is required")
	}

	api, err := restapi.New(restapi.Config{
		BaseURL:      siteURL + apiPath,
		Auth:         restapi.BasicAuth{Username: cfg.Email, Password: cfg.Token},
		ErrorMessage: errorMessage,
	}.Apply(opts...))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Confluence REST client", goerr.V("site_url", siteURL))
	}
	return &client{siteURL: siteURL, api: api}, nil
}

func errorMessage(body []byte) string {
	var v struct {
		Message string `json:"message"`
		Errors  []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &v); err == nil {
		var msgs []string
		for _, e := range v.Errors {
			switch {
			case e.Title != "" && e.Detail != "":
				msgs = append(msgs, e.Title+": "+e.Detail)
			case e.Title != "":
				msgs = append(msgs, e.Title)
			case e.Detail != "":
				msgs = append(msgs, e.Detail)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
		if v.Message != "" {
			return v.Message
		}
	}
	return strings.TrimSpace(string(body))
}

type listResponse[T any] struct {
	Results []T `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// listAll follows _links.next cursors. The next link is relative to the site root.
func listAll[T any](ctx context.Context, c *client, path string, q url.Values) ([]T, error) {
	var out []T
	for path != "" {
		var page listResponse[T]
		if _, err := c.api.GetJSON(ctx, path, q, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)

		path, q = "", nil
		if next := page.Links.Next; next != "" {
			path = c.siteURL + next
		}
	}
	return out, nil
}

func (c *client) TestConnection(ctx context.Context) bool {
	var page listResponse[*Space]
	if _, err := c.api.GetJSON(ctx, "spaces", url.Values{"limit": {"1"}}, &page); err != nil {
		logging.From(ctx).Warn("Confluence connection test failed",
			"site_url", c.siteURL, "status", restapi.StatusCode(err), "error", err)
		return false
	}
	return true
}

func (c *client) ListSpaces(ctx context.Context, keys ...string) ([]*Space, error) {
	q := url.Values{"limit": {strconv.Itoa(pageSize)}}
	if len(keys) > 0 {
		q.Set("keys", strings.Join(keys, ","))
	}
	spaces, err := listAll[*Space](ctx, c, "spaces", q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list spaces", goerr.V("keys", keys))
	}
	return spaces, nil
}

func (c *client) ListPages(ctx context.Context, spaceID string) ([]*Page, error) {
	q := url.Values{
		"body-format": {"storage"},
		"limit":       {strconv.Itoa(pageSize)},
	}
	pages, err := listAll[*Page](ctx, c, "spaces/"+url.PathEscape(spaceID)+"/pages", q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pages", goerr.V("space_id", spaceID))
	}
	return pages, nil
}

func (c *client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if _, err := c.api.GetJSON(ctx, "pages/"+url.PathEscape(pageID), url.Values{"body-format": {"storage"}}, &page); err != nil {
		return nil, goerr.Wrap(err, "failed to get page", goerr.V("page_id", pageID))
	}
	return &page, nil
}

func (c *client) ListChildPages(ctx context.Context, pageID string) ([]*Page, error) {
	q := url.Values{"limit": {strconv.Itoa(pageSize)}}
	pages, err := listAll[*Page](ctx, c, "pages/"+url.PathEscape(pageID)+"/children", q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list child pages", goerr.V("page_id", pageID))
	}
	return pages, nil
}

func (c *client) GetPageHierarchy(ctx context.Context, spaceID string) ([]*PageNode, error) {
	pages, err := c.ListPages(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return BuildPageHierarchy(pages), nil
}

// PageURL returns the browser URL of page on siteURL
func PageURL(siteURL string, page *Page) string {
	siteURL = strings.TrimRight(siteURL, "/")
	if page.Links.WebUI != "" {
		return siteURL + "/wiki" + page.Links.WebUI
	}
	return siteURL + "/wiki/pages/viewpage.action?pageId=" + url.QueryEscape(page.ID)
}
