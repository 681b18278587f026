package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/platform"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

// ConnectionUseCase manages integration connections and exposes the data synced through them
type ConnectionUseCase struct {
	repo    interfaces.Repository
	factory platform.Factory
	locks   *syncLocks
}

// NewConnectionUseCase creates a new ConnectionUseCase instance
func NewConnectionUseCase(repo interfaces.Repository, factory platform.Factory) *ConnectionUseCase {
	return &ConnectionUseCase{
		repo:    repo,
		factory: factory,
		locks:   newSyncLocks(),
	}
}

type CreateConnectionInput struct {
	Platform        types.Platform
	Name            string
	AccessToken     string `masq:"secret"`
	OrganizationURL string
	WorkspaceID     string
	SiteURL         string
	SpaceKey        string
	AccountEmail    string
	SyncEnabled     bool
	// SkipConnectionTest persists the connection without contacting the platform. Used when
	// provisioning from a config file at startup.
	SkipConnectionTest bool
}

// Create validates the input, tests connectivity and persists the connection
func (uc *ConnectionUseCase) Create(ctx context.Context, input CreateConnectionInput) (*model.IntegrationConnection, error) {
	conn := &model.IntegrationConnection{
		Platform:        input.Platform,
		Name:            strings.TrimSpace(input.Name),
		AccessToken:     input.AccessToken,
		OrganizationURL: strings.TrimRight(strings.TrimSpace(input.OrganizationURL), "/"),
		WorkspaceID:     strings.TrimSpace(input.WorkspaceID),
		SiteURL:         strings.TrimRight(strings.TrimSpace(input.SiteURL), "/"),
		SpaceKey:        strings.TrimSpace(input.SpaceKey),
		AccountEmail:    strings.TrimSpace(input.AccountEmail),
		SyncEnabled:     input.SyncEnabled,
		IsActive:        true,
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	if !input.SkipConnectionTest {
		if err := uc.testConnection(ctx, conn); err != nil {
			return nil, err
		}
	}

	created, err := uc.repo.Connection().Create(ctx, conn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection")
	}
	return created, nil
}

// testConnection returns ErrConnectionTestFailed when the platform cannot be reached with conn
func (uc *ConnectionUseCase) testConnection(ctx context.Context, conn *model.IntegrationConnection) error {
	ok, err := uc.reach(ctx, conn)
	if err != nil {
		return goerr.Wrap(err, "failed to build platform client", goerr.V(PlatformKey, conn.Platform))
	}
	if !ok {
		return goerr.Wrap(ErrConnectionTestFailed, "platform rejected the connection",
			goerr.V(PlatformKey, conn.Platform), goerr.V("name", conn.Name))
	}
	return nil
}

func (uc *ConnectionUseCase) reach(ctx context.Context, conn *model.IntegrationConnection) (bool, error) {
	switch conn.Platform {
	case types.PlatformAzureDevOps:
		client, err := uc.factory.AzureDevOps(conn)
		if err != nil {
			return false, err
		}
		return client.TestConnection(ctx), nil
	case types.PlatformAsana:
		client, err := uc.factory.Asana(conn)
		if err != nil {
			return false, err
		}
		return client.TestConnection(ctx), nil
	case types.PlatformConfluence:
		client, err := uc.factory.Confluence(conn)
		if err != nil {
			return false, err
		}
		return client.TestConnection(ctx), nil
	default:
		return false, goerr.Wrap(types.ErrInvalidPlatform, "unsupported platform", goerr.V(PlatformKey, conn.Platform))
	}
}

func (uc *ConnectionUseCase) Get(ctx context.Context, id model.ConnectionID) (*model.IntegrationConnection, error) {
	conn, err := uc.repo.Connection().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, id))
	}
	return conn, nil
}

func (uc *ConnectionUseCase) List(ctx context.Context) ([]*model.IntegrationConnection, error) {
	conns, err := uc.repo.Connection().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list connections")
	}
	return conns, nil
}

// UpdateConnectionInput carries the fields to change. Nil fields are left untouched.
type UpdateConnectionInput struct {
	ID              model.ConnectionID
	Name            *string
	AccessToken     *string `masq:"secret"`
	OrganizationURL *string
	WorkspaceID     *string
	SiteURL         *string
	SpaceKey        *string
	AccountEmail    *string
	SyncEnabled     *bool
	IsActive        *bool
}

// Update applies input to an existing connection. Connectivity is tested again whenever the
// credential or the addressing changes.
func (uc *ConnectionUseCase) Update(ctx context.Context, input UpdateConnectionInput) (*model.IntegrationConnection, error) {
	conn, err := uc.repo.Connection().Get(ctx, input.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, input.ID))
	}

	retest := false
	set := func(dst *string, src *string, affectsAccess bool) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst && affectsAccess {
			retest = true
		}
		*dst = v
	}
	set(&conn.Name, input.Name, false)
	set(&conn.OrganizationURL, input.OrganizationURL, true)
	set(&conn.WorkspaceID, input.WorkspaceID, false)
	set(&conn.SiteURL, input.SiteURL, true)
	set(&conn.SpaceKey, input.SpaceKey, false)
	set(&conn.AccountEmail, input.AccountEmail, true)
	conn.OrganizationURL = strings.TrimRight(conn.OrganizationURL, "/")
	conn.SiteURL = strings.TrimRight(conn.SiteURL, "/")

	if input.AccessToken != nil && *input.AccessToken != "" && *input.AccessToken != conn.AccessToken {
		conn.AccessToken = *input.AccessToken
		retest = true
	}
	if input.SyncEnabled != nil {
		conn.SyncEnabled = *input.SyncEnabled
	}
	if input.IsActive != nil {
		conn.IsActive = *input.IsActive
	}

	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if retest {
		if err := uc.testConnection(ctx, conn); err != nil {
			return nil, err
		}
	}

	updated, err := uc.repo.Connection().Update(ctx, conn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update connection", goerr.V(ConnectionIDKey, input.ID))
	}
	return updated, nil
}

// Delete removes the connection together with its mappings, synced objects and history. It fails
// with ErrSyncInProgress while the connection is syncing.
func (uc *ConnectionUseCase) Delete(ctx context.Context, id model.ConnectionID) error {
	release, ok := uc.locks.tryLock(id)
	if !ok {
		return goerr.Wrap(ErrSyncInProgress, "cannot delete a syncing connection", goerr.V(ConnectionIDKey, id))
	}
	defer release()

	if _, err := uc.repo.Connection().Get(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, id))
	}

	cascade := []struct {
		name string
		fn   func(context.Context, model.ConnectionID) error
	}{
		{"user mappings", uc.repo.UserMapping().DeleteByConnection},
		{"work items", uc.repo.WorkItem().DeleteByConnection},
		{"commits", uc.repo.Commit().DeleteByConnection},
		{"pages", uc.repo.Page().DeleteByConnection},
		{"sync runs", uc.repo.SyncRun().DeleteByConnection},
	}
	for _, c := range cascade {
		if err := c.fn(ctx, id); err != nil {
			return goerr.Wrap(err, "failed to delete "+c.name, goerr.V(ConnectionIDKey, id))
		}
	}

	if err := uc.repo.Connection().Delete(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete connection", goerr.V(ConnectionIDKey, id))
	}
	return nil
}

// Test runs the connectivity check of a stored connection
func (uc *ConnectionUseCase) Test(ctx context.Context, id model.ConnectionID) (bool, error) {
	conn, err := uc.repo.Connection().Get(ctx, id)
	if err != nil {
		return false, goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, id))
	}
	ok, err := uc.reach(ctx, conn)
	if err != nil {
		logging.From(ctx).Warn("cannot build platform client", "connection_id", id.String(), "error", err)
		return false, nil
	}
	return ok, nil
}

// Container is a remote project or space that can be put on a sync allow-list
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

// ListContainers lists the remote projects (Azure DevOps, Asana) or spaces (Confluence)
func (uc *ConnectionUseCase) ListContainers(ctx context.Context, id model.ConnectionID) ([]Container, error) {
	conn, err := uc.repo.Connection().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, id))
	}

	var out []Container
	switch conn.Platform {
	case types.PlatformAzureDevOps:
		client, err := uc.factory.AzureDevOps(conn)
		if err != nil {
			return nil, err
		}
		projects, err := client.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			out = append(out, Container{ID: p.ID, Name: p.Name})
		}
	case types.PlatformAsana:
		client, err := uc.factory.Asana(conn)
		if err != nil {
			return nil, err
		}
		projects, err := client.ListProjects(ctx, conn.WorkspaceID)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			out = append(out, Container{ID: p.GID, Name: p.Name})
		}
	case types.PlatformConfluence:
		client, err := uc.factory.Confluence(conn)
		if err != nil {
			return nil, err
		}
		var keys []string
		if conn.SpaceKey != "" {
			keys = append(keys, conn.SpaceKey)
		}
		spaces, err := client.ListSpaces(ctx, keys...)
		if err != nil {
			return nil, err
		}
		for _, s := range spaces {
			out = append(out, Container{ID: s.ID, Name: s.Name, Key: s.Key})
		}
	}
	return out, nil
}

func (uc *ConnectionUseCase) ListWorkItems(ctx context.Context, id model.ConnectionID) ([]*model.WorkItem, error) {
	items, err := uc.repo.WorkItem().List(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list work items", goerr.V(ConnectionIDKey, id))
	}
	return items, nil
}

func (uc *ConnectionUseCase) ListCommits(ctx context.Context, id model.ConnectionID) ([]*model.DeveloperCommit, error) {
	commits, err := uc.repo.Commit().List(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list commits", goerr.V(ConnectionIDKey, id))
	}
	return commits, nil
}

func (uc *ConnectionUseCase) ListPages(ctx context.Context, id model.ConnectionID) ([]*model.ConfluencePage, error) {
	pages, err := uc.repo.Page().List(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pages", goerr.V(ConnectionIDKey, id))
	}
	return pages, nil
}

// ListSyncRuns returns the latest runs first
func (uc *ConnectionUseCase) ListSyncRuns(ctx context.Context, id model.ConnectionID, limit int) ([]*model.SyncRun, error) {
	runs, err := uc.repo.SyncRun().List(ctx, id, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sync runs", goerr.V(ConnectionIDKey, id))
	}
	return runs, nil
}
