package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type userMappingRepository struct {
	pool *pgxpool.Pool
}

const userMappingColumns = `id, connection_id, external_id, external_username, external_email,
	employee_id, created_at, updated_at`

func scanUserMapping(row scanner) (*model.UserMapping, error) {
	var (
		m          model.UserMapping
		id         string
		connID     string
		employeeID *string
	)
	if err := row.Scan(&id, &connID, &m.ExternalID, &m.ExternalUsername, &m.ExternalEmail,
		&employeeID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ID = model.UserMappingID(id)
	m.ConnectionID = model.ConnectionID(connID)
	if employeeID != nil {
		eid := model.EmployeeID(*employeeID)
		m.EmployeeID = &eid
	}
	return &m, nil
}

func employeeIDParam(id *model.EmployeeID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func (r *userMappingRepository) Create(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error) {
	now := time.Now().UTC()
	created := *mapping
	if created.ID == "" {
		created.ID = model.NewUserMappingID()
	}
	created.ExternalEmail = model.NormalizeEmail(created.ExternalEmail)
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `INSERT INTO integration_user_mappings (`+userMappingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(created.ID), string(created.ConnectionID), created.ExternalID, created.ExternalUsername,
		created.ExternalEmail, employeeIDParam(created.EmployeeID), created.CreatedAt, created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(ErrAlreadyExists, "mapping for email already exists",
				goerr.V(model.ConnectionIDKey, created.ConnectionID), goerr.V(model.EmailKey, created.ExternalEmail))
		}
		return nil, goerr.Wrap(err, "failed to insert user mapping", goerr.V(model.ConnectionIDKey, created.ConnectionID))
	}
	return &created, nil
}

func (r *userMappingRepository) Get(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) (*model.UserMapping, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userMappingColumns+` FROM integration_user_mappings
		WHERE connection_id = $1 AND id = $2`, string(connID), string(id))
	m, err := scanUserMapping(row)
	if err != nil {
		if isNoRows(err) {
			return nil, goerr.Wrap(ErrNotFound, "user mapping not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V("mapping_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get user mapping", goerr.V("mapping_id", id))
	}
	return m, nil
}

func (r *userMappingRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.UserMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userMappingColumns+` FROM integration_user_mappings
		WHERE connection_id = $1 ORDER BY external_email`, string(connID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list user mappings", goerr.V(model.ConnectionIDKey, connID))
	}
	defer rows.Close()

	var mappings []*model.UserMapping
	for rows.Next() {
		m, err := scanUserMapping(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan user mapping")
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate user mappings")
	}
	return mappings, nil
}

func (r *userMappingRepository) FindByEmail(ctx context.Context, connID model.ConnectionID, email string) (*model.UserMapping, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userMappingColumns+` FROM integration_user_mappings
		WHERE connection_id = $1 AND external_email = $2`, string(connID), model.NormalizeEmail(email))
	m, err := scanUserMapping(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to find user mapping", goerr.V(model.EmailKey, email))
	}
	return m, nil
}

func (r *userMappingRepository) Update(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error) {
	row := r.pool.QueryRow(ctx, `UPDATE integration_user_mappings SET
			external_id = $3, external_username = $4, external_email = $5, employee_id = $6, updated_at = $7
		WHERE connection_id = $1 AND id = $2
		RETURNING `+userMappingColumns,
		string(mapping.ConnectionID), string(mapping.ID), mapping.ExternalID, mapping.ExternalUsername,
		model.NormalizeEmail(mapping.ExternalEmail), employeeIDParam(mapping.EmployeeID), time.Now().UTC())

	updated, err := scanUserMapping(row)
	if err != nil {
		switch {
		case isNoRows(err):
			return nil, goerr.Wrap(ErrNotFound, "user mapping not found", goerr.V("mapping_id", mapping.ID))
		case isUniqueViolation(err):
			return nil, goerr.Wrap(ErrAlreadyExists, "mapping for email already exists",
				goerr.V(model.EmailKey, mapping.ExternalEmail))
		}
		return nil, goerr.Wrap(err, "failed to update user mapping", goerr.V("mapping_id", mapping.ID))
	}
	return updated, nil
}

func (r *userMappingRepository) Delete(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM integration_user_mappings WHERE connection_id = $1 AND id = $2`,
		string(connID), string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to delete user mapping", goerr.V("mapping_id", id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(ErrNotFound, "user mapping not found", goerr.V("mapping_id", id))
	}
	return nil
}

func (r *userMappingRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM integration_user_mappings WHERE connection_id = $1`, string(connID)); err != nil {
		return goerr.Wrap(err, "failed to delete user mappings", goerr.V(model.ConnectionIDKey, connID))
	}
	return nil
}
