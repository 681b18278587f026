package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/platform"
)

// MappingUseCase maintains the external identity to employee mappings of a connection
type MappingUseCase struct {
	repo    interfaces.Repository
	factory platform.Factory
}

// NewMappingUseCase creates a new MappingUseCase instance
func NewMappingUseCase(repo interfaces.Repository, factory platform.Factory) *MappingUseCase {
	return &MappingUseCase{
		repo:    repo,
		factory: factory,
	}
}

func (uc *MappingUseCase) List(ctx context.Context, connID model.ConnectionID) ([]*model.UserMapping, error) {
	mappings, err := uc.repo.UserMapping().List(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list user mappings", goerr.V(ConnectionIDKey, connID))
	}
	return mappings, nil
}

type CreateMappingInput struct {
	ConnectionID     model.ConnectionID
	ExternalID       string
	ExternalUsername string
	ExternalEmail    string
	EmployeeID       *model.EmployeeID
}

// Create stores a new mapping. The email is normalized and must be unique within the connection.
func (uc *MappingUseCase) Create(ctx context.Context, input CreateMappingInput) (*model.UserMapping, error) {
	if _, err := uc.repo.Connection().Get(ctx, input.ConnectionID); err != nil {
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, input.ConnectionID))
	}

	mapping := &model.UserMapping{
		ConnectionID:     input.ConnectionID,
		ExternalID:       strings.TrimSpace(input.ExternalID),
		ExternalUsername: strings.TrimSpace(input.ExternalUsername),
		ExternalEmail:    model.NormalizeEmail(input.ExternalEmail),
		EmployeeID:       normalizeEmployeeID(input.EmployeeID),
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	created, err := uc.repo.UserMapping().Create(ctx, mapping)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create user mapping",
			goerr.V(ConnectionIDKey, input.ConnectionID), goerr.V(model.EmailKey, mapping.ExternalEmail))
	}
	return created, nil
}

// Assign pairs the mapping with an employee. A nil or empty employeeID clears the pairing.
func (uc *MappingUseCase) Assign(ctx context.Context, connID model.ConnectionID, id model.UserMappingID, employeeID *model.EmployeeID) (*model.UserMapping, error) {
	mapping, err := uc.repo.UserMapping().Get(ctx, connID, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user mapping", goerr.V(ConnectionIDKey, connID), goerr.V(MappingIDKey, id))
	}

	mapping.EmployeeID = normalizeEmployeeID(employeeID)
	updated, err := uc.repo.UserMapping().Update(ctx, mapping)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update user mapping", goerr.V(ConnectionIDKey, connID), goerr.V(MappingIDKey, id))
	}
	return updated, nil
}

func (uc *MappingUseCase) Delete(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) error {
	if err := uc.repo.UserMapping().Delete(ctx, connID, id); err != nil {
		return goerr.Wrap(err, "failed to delete user mapping", goerr.V(ConnectionIDKey, connID), goerr.V(MappingIDKey, id))
	}
	return nil
}

func normalizeEmployeeID(id *model.EmployeeID) *model.EmployeeID {
	if id == nil {
		return nil
	}
	v := model.EmployeeID(strings.TrimSpace(string(*id)))
	if v == "" {
		return nil
	}
	return &v
}

// remoteUser is an identity reported by a platform's user listing
type remoteUser struct {
	id       string
	username string
	email    string
}

// Discover lists the users known to the platform and creates an unmapped entry for every email
// the connection does not know yet. It returns the created mappings.
func (uc *MappingUseCase) Discover(ctx context.Context, connID model.ConnectionID) ([]*model.UserMapping, error) {
	conn, err := uc.repo.Connection().Get(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(ConnectionIDKey, connID))
	}

	users, err := uc.listRemoteUsers(ctx, conn)
	if err != nil {
		return nil, err
	}

	var created []*model.UserMapping
	for _, u := range users {
		email := model.NormalizeEmail(u.email)
		if email == "" {
			continue
		}
		existing, err := uc.repo.UserMapping().FindByEmail(ctx, connID, email)
		if err != nil {
			return created, goerr.Wrap(err, "failed to look up user mapping", goerr.V(model.EmailKey, email))
		}
		if existing != nil {
			continue
		}

		m, err := uc.repo.UserMapping().Create(ctx, &model.UserMapping{
			ConnectionID:     connID,
			ExternalID:       u.id,
			ExternalUsername: u.username,
			ExternalEmail:    email,
		})
		if errors.Is(err, interfaces.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, goerr.Wrap(err, "failed to create user mapping", goerr.V(model.EmailKey, email))
		}
		created = append(created, m)
	}
	return created, nil
}

func (uc *MappingUseCase) listRemoteUsers(ctx context.Context, conn *model.IntegrationConnection) ([]remoteUser, error) {
	var users []remoteUser

	switch conn.Platform {
	case types.PlatformAzureDevOps:
		client, err := uc.factory.AzureDevOps(conn)
		if err != nil {
			return nil, err
		}
		projects, err := client.ListProjects(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list projects")
		}
		for _, p := range projects {
			members, err := client.ListUsers(ctx, p.Name)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to list users", goerr.V("project", p.Name))
			}
			for _, m := range members {
				users = append(users, remoteUser{id: m.ID, username: m.DisplayName, email: m.UniqueName})
			}
		}

	case types.PlatformAsana:
		client, err := uc.factory.Asana(conn)
		if err != nil {
			return nil, err
		}
		members, err := client.ListUsers(ctx, conn.WorkspaceID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list users")
		}
		for _, m := range members {
			users = append(users, remoteUser{id: m.GID, username: m.Name, email: m.Email})
		}

	default:
		return nil, goerr.Wrap(ErrUserDiscoveryUnsupported, "cannot discover users",
			goerr.V(ConnectionIDKey, conn.ID), goerr.V(PlatformKey, conn.Platform))
	}

	return users, nil
}
