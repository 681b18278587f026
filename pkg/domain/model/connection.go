package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

// ConnectionID is a UUID-based identifier for IntegrationConnection
type ConnectionID string

// NewConnectionID generates a new UUID v4 ConnectionID
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

func (id ConnectionID) String() string {
	return string(id)
}

// IntegrationConnection is one configured link to an external platform.
// Only the Last* fields are touched by the sync orchestrator.
type IntegrationConnection struct {
	ID          ConnectionID
	Platform    types.Platform
	Name        string
	AccessToken string `masq:"secret"`

	// Azure DevOps
	OrganizationURL string
	// Asana
	WorkspaceID string
	// Confluence
	SiteURL      string
	SpaceKey     string
	AccountEmail string

	SyncEnabled bool
	IsActive    bool

	LastSyncAt     *time.Time
	LastSyncStatus types.SyncStatus
	LastSyncError  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanSync reports whether the connection is eligible for synchronization
func (c *IntegrationConnection) CanSync() bool {
	return c.IsActive && c.SyncEnabled
}

// HasToken reports whether a credential is stored
func (c *IntegrationConnection) HasToken() bool {
	return c.AccessToken != ""
}

// Validate checks the platform specific addressing fields. It does not contact the platform.
func (c *IntegrationConnection) Validate() error {
	if !c.Platform.IsValid() {
		return goerr.Wrap(ErrInvalidConnection, "unsupported platform", goerr.V(PlatformKey, c.Platform))
	}
	if strings.TrimSpace(c.Name) == "" {
		return goerr.Wrap(ErrInvalidConnection, "name is required")
	}
	if c.AccessToken == "" {
		return goerr.Wrap(ErrInvalidConnection, "access token is required")
	}

	switch c.Platform {
	case types.PlatformAzureDevOps:
		if err := validateHTTPURL(c.OrganizationURL); err != nil {
			return goerr.Wrap(err, "organization URL is invalid", goerr.V("organization_url", c.OrganizationURL))
		}
	case types.PlatformAsana:
		if c.WorkspaceID == "" {
			return goerr.Wrap(ErrInvalidConnection, "workspace ID is required for Asana")
		}
	case types.PlatformConfluence:
		if err := validateHTTPURL(c.SiteURL); err != nil {
			return goerr.Wrap(err, "site URL is invalid", goerr.V("site_url", c.SiteURL))
		}
		if c.AccountEmail == "" {
			return goerr.Wrap(ErrInvalidConnection, "account email is required for Confluence")
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return goerr.Wrap(ErrInvalidConnection, "URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return goerr.Wrap(ErrInvalidConnection, "URL cannot be parsed", goerr.V("cause", err.Error()))
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return goerr.Wrap(ErrInvalidConnection, "URL must be http or https")
	}
	if u.Host == "" {
		return goerr.Wrap(ErrInvalidConnection, "URL has no host")
	}
	return nil
}

// SyncStatusUpdate is the bookkeeping written back to a connection after each sync run
type SyncStatusUpdate struct {
	At     time.Time
	Status types.SyncStatus
	Error  *string
}
