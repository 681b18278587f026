package config

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// AppConfig holds the path of the optional provisioning file
type AppConfig struct {
	path string
}

// Flags returns CLI flags for the provisioning file
func (a *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "TOML file declaring connections and user mappings to provision at startup",
			Sources:     cli.EnvVars("TRIBUTARY_CONFIG"),
			Destination: &a.path,
		},
	}
}

// Configure loads the provisioning file. It returns nil when no file is configured.
func (a *AppConfig) Configure() (*File, error) {
	if a.path == "" {
		return nil, nil
	}
	return LoadFile(a.path)
}

// File is the provisioning file layout
//
//	[[connection]]
//	name = "acme"
//	platform = "AZURE_DEVOPS"
//	token_env = "ACME_ADO_PAT"
//	organization_url = "https://dev.azure.com/acme"
//
//	  [[connection.mapping]]
//	  email = "alice@example.com"
//	  employee_id = "emp-1"
type File struct {
	Connections []ConnectionConfig `toml:"connection"`
}

type ConnectionConfig struct {
	Name            string          `toml:"name"`
	Platform        string          `toml:"platform"`
	TokenEnv        string          `toml:"token_env"`
	OrganizationURL string          `toml:"organization_url"`
	WorkspaceID     string          `toml:"workspace_id"`
	SiteURL         string          `toml:"site_url"`
	SpaceKey        string          `toml:"space_key"`
	AccountEmail    string          `toml:"account_email"`
	SyncEnabled     *bool           `toml:"sync_enabled"`
	Mappings        []MappingConfig `toml:"mapping"`
}

type MappingConfig struct {
	Email      string `toml:"email"`
	EmployeeID string `toml:"employee_id"`
	ExternalID string `toml:"external_id"`
	Username   string `toml:"username"`
}

// Validate checks the declaration without reading the token variables
func (c *ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return goerr.Wrap(ErrInvalidConfig, "connection name is required")
	}
	if _, err := types.ParsePlatform(c.Platform); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid platform",
			goerr.V(ConnectionNameKey, c.Name), goerr.V("platform", c.Platform))
	}
	if c.TokenEnv == "" {
		return goerr.Wrap(ErrInvalidConfig, "token_env is required", goerr.V(ConnectionNameKey, c.Name))
	}

	emails := make(map[string]bool)
	for _, m := range c.Mappings {
		email := model.NormalizeEmail(m.Email)
		if email == "" {
			return goerr.Wrap(ErrInvalidConfig, "mapping email is required", goerr.V(ConnectionNameKey, c.Name))
		}
		if emails[email] {
			return goerr.Wrap(ErrInvalidConfig, "duplicate mapping email",
				goerr.V(ConnectionNameKey, c.Name), goerr.V(EmailKey, email))
		}
		emails[email] = true
	}
	return nil
}

// Validate checks every connection and rejects duplicate names
func (f *File) Validate() error {
	names := make(map[string]bool)
	for i := range f.Connections {
		c := &f.Connections[i]
		if err := c.Validate(); err != nil {
			return err
		}
		if names[c.Name] {
			return goerr.Wrap(ErrInvalidConfig, "duplicate connection name", goerr.V(ConnectionNameKey, c.Name))
		}
		names[c.Name] = true
	}
	return nil
}

// LoadFile reads and validates a provisioning file
func LoadFile(path string) (*File, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return &file, nil
}

// Provision creates the declared connections that do not exist yet, matched by platform and name,
// and makes sure every declared mapping exists with the declared employee. Existing connections
// keep their stored fields. Connectivity is not tested.
func (f *File) Provision(ctx context.Context, uc *usecase.UseCases) error {
	if f == nil {
		return nil
	}

	existing, err := uc.Connection.List(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list connections")
	}

	for _, cc := range f.Connections {
		platform := types.Platform(cc.Platform)
		conn := findConnection(existing, platform, cc.Name)

		if conn == nil {
			token := os.Getenv(cc.TokenEnv)
			if token == "" {
				return goerr.Wrap(ErrMissingToken, "cannot provision connection",
					goerr.V(ConnectionNameKey, cc.Name), goerr.V(TokenEnvKey, cc.TokenEnv))
			}
			syncEnabled := true
			if cc.SyncEnabled != nil {
				syncEnabled = *cc.SyncEnabled
			}

			conn, err = uc.Connection.Create(ctx, usecase.CreateConnectionInput{
				Platform:           platform,
				Name:               cc.Name,
				AccessToken:        token,
				OrganizationURL:    cc.OrganizationURL,
				WorkspaceID:        cc.WorkspaceID,
				SiteURL:            cc.SiteURL,
				SpaceKey:           cc.SpaceKey,
				AccountEmail:       cc.AccountEmail,
				SyncEnabled:        syncEnabled,
				SkipConnectionTest: true,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to provision connection", goerr.V(ConnectionNameKey, cc.Name))
			}
			logging.From(ctx).Info("connection provisioned",
				"name", conn.Name, "platform", conn.Platform, "connection_id", conn.ID.String())
		}

		if err := provisionMappings(ctx, uc, conn, cc.Mappings); err != nil {
			return err
		}
	}
	return nil
}

func findConnection(conns []*model.IntegrationConnection, platform types.Platform, name string) *model.IntegrationConnection {
	for _, c := range conns {
		if c.Platform == platform && c.Name == strings.TrimSpace(name) {
			return c
		}
	}
	return nil
}

func provisionMappings(ctx context.Context, uc *usecase.UseCases, conn *model.IntegrationConnection, mappings []MappingConfig) error {
	if len(mappings) == 0 {
		return nil
	}

	current, err := uc.Mapping.List(ctx, conn.ID)
	if err != nil {
		return err
	}
	byEmail := make(map[string]*model.UserMapping, len(current))
	for _, m := range current {
		byEmail[m.ExternalEmail] = m
	}

	for _, mc := range mappings {
		var employeeID *model.EmployeeID
		if mc.EmployeeID != "" {
			id := model.EmployeeID(mc.EmployeeID)
			employeeID = &id
		}

		if m, ok := byEmail[model.NormalizeEmail(mc.Email)]; ok {
			if sameEmployee(m.EmployeeID, employeeID) {
				continue
			}
			if _, err := uc.Mapping.Assign(ctx, conn.ID, m.ID, employeeID); err != nil {
				return goerr.Wrap(err, "failed to update provisioned mapping", goerr.V(EmailKey, mc.Email))
			}
			continue
		}

		_, err := uc.Mapping.Create(ctx, usecase.CreateMappingInput{
			ConnectionID:     conn.ID,
			ExternalID:       mc.ExternalID,
			ExternalUsername: mc.Username,
			ExternalEmail:    mc.Email,
			EmployeeID:       employeeID,
		})
		if err != nil && !errors.Is(err, interfaces.ErrAlreadyExists) {
			return goerr.Wrap(err, "failed to provision mapping", goerr.V(EmailKey, mc.Email))
		}
	}
	return nil
}

func sameEmployee(a, b *model.EmployeeID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
