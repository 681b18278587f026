package platform

import (
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/asana"
	"github.com/secmon-lab/tributary/pkg/service/azuredevops"
	"github.com/secmon-lab/tributary/pkg/service/confluence"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
)

// Factory builds a platform client from the credentials and addressing of a connection
type Factory interface {
	AzureDevOps(conn *model.IntegrationConnection) (azuredevops.Service, error)
	Asana(conn *model.IntegrationConnection) (asana.Service, error)
	Confluence(conn *model.IntegrationConnection) (confluence.Service, error)
}

// ErrPlatformMismatch is returned when a client is requested for a connection of another platform
var ErrPlatformMismatch = goerr.New("connection platform mismatch")

// Clients is the production Factory. Every client it creates shares the injected HTTP client.
type Clients struct {
	opts      []restapi.Option
	asanaBase string
}

type Option func(*Clients)

// WithHTTPClient injects the HTTP client used by every platform client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Clients) {
		c.opts = append(c.opts, restapi.WithHTTPClient(client))
	}
}

// WithRateLimit sets the per-client request rate
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Clients) {
		c.opts = append(c.opts, restapi.WithRateLimit(perSecond, burst))
	}
}

// WithRetry sets the retry policy of transient failures
func WithRetry(maxRetries int, baseBackoff time.Duration) Option {
	return func(c *Clients) {
		c.opts = append(c.opts, restapi.WithRetry(maxRetries, baseBackoff))
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Clients) {
		c.opts = append(c.opts, restapi.WithUserAgent(ua))
	}
}

// WithAsanaBaseURL overrides the Asana API endpoint
func WithAsanaBaseURL(baseURL string) Option {
	return func(c *Clients) {
		c.asanaBase = baseURL
	}
}

func New(opts ...Option) *Clients {
	c := &Clients{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func checkPlatform(conn *model.IntegrationConnection, want types.Platform) error {
	if conn.Platform != want {
		return goerr.Wrap(ErrPlatformMismatch, "unexpected connection platform",
			goerr.V(model.ConnectionIDKey, conn.ID), goerr.V(model.PlatformKey, conn.Platform), goerr.V("want", want))
	}
	return nil
}

func (c *Clients) AzureDevOps(conn *model.IntegrationConnection) (azuredevops.Service, error) {
	if err := checkPlatform(conn, types.PlatformAzureDevOps); err != nil {
		return nil, err
	}
	return azuredevops.New(azuredevops.Config{
		OrganizationURL: conn.OrganizationURL,
		Token:           conn.AccessToken,
	}, c.opts...)
}

func (c *Clients) Asana(conn *model.IntegrationConnection) (asana.Service, error) {
	if err := checkPlatform(conn, types.PlatformAsana); err != nil {
		return nil, err
	}
	return asana.New(asana.Config{
		BaseURL: c.asanaBase,
		Token:   conn.AccessToken,
	}, c.opts...)
}

func (c *Clients) Confluence(conn *model.IntegrationConnection) (confluence.Service, error) {
	if err := checkPlatform(conn, types.PlatformConfluence); err != nil {
		return nil, err
	}
	return confluence.New(confluence.Config{
		SiteURL: conn.SiteURL,
		Email:   conn.AccountEmail,
		Token:   conn.AccessToken,
	}, c.opts...)
}
