package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

type connectionRepository struct {
	pool *pgxpool.Pool
}

const connectionColumns = `id, platform, name, access_token, organization_url, workspace_id, site_url,
	space_key, account_email, sync_enabled, is_active, last_sync_at, last_sync_status, last_sync_error,
	created_at, updated_at`

func scanConnection(row scanner) (*model.IntegrationConnection, error) {
	var (
		conn       model.IntegrationConnection
		id         string
		platform   string
		lastStatus string
	)
	if err := row.Scan(&id, &platform, &conn.Name, &conn.AccessToken, &conn.OrganizationURL,
		&conn.WorkspaceID, &conn.SiteURL, &conn.SpaceKey, &conn.AccountEmail, &conn.SyncEnabled,
		&conn.IsActive, &conn.LastSyncAt, &lastStatus, &conn.LastSyncError,
		&conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}
	conn.ID = model.ConnectionID(id)
	conn.Platform = types.Platform(platform)
	conn.LastSyncStatus = types.SyncStatus(lastStatus)
	return &conn, nil
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error) {
	now := time.Now().UTC()
	created := *conn
	if created.ID == "" {
		created.ID = model.NewConnectionID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `INSERT INTO integration_connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		string(created.ID), string(created.Platform), created.Name, created.AccessToken,
		created.OrganizationURL, created.WorkspaceID, created.SiteURL, created.SpaceKey,
		created.AccountEmail, created.SyncEnabled, created.IsActive, created.LastSyncAt,
		string(created.LastSyncStatus), created.LastSyncError, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(ErrAlreadyExists, "connection already exists", goerr.V(model.ConnectionIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert connection", goerr.V(model.ConnectionIDKey, created.ID))
	}

	return &created, nil
}

func (r *connectionRepository) Get(ctx context.Context, id model.ConnectionID) (*model.IntegrationConnection, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+connectionColumns+` FROM integration_connections WHERE id = $1`, string(id))
	conn, err := scanConnection(row)
	if err != nil {
		if isNoRows(err) {
			return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(model.ConnectionIDKey, id))
	}
	return conn, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*model.IntegrationConnection, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+connectionColumns+` FROM integration_connections ORDER BY created_at, id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list connections")
	}
	defer rows.Close()

	var conns []*model.IntegrationConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan connection")
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate connections")
	}
	return conns, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error) {
	row := r.pool.QueryRow(ctx, `UPDATE integration_connections SET
			platform = $2, name = $3, access_token = $4, organization_url = $5, workspace_id = $6,
			site_url = $7, space_key = $8, account_email = $9, sync_enabled = $10, is_active = $11,
			updated_at = $12
		WHERE id = $1
		RETURNING `+connectionColumns,
		string(conn.ID), string(conn.Platform), conn.Name, conn.AccessToken, conn.OrganizationURL,
		conn.WorkspaceID, conn.SiteURL, conn.SpaceKey, conn.AccountEmail, conn.SyncEnabled,
		conn.IsActive, time.Now().UTC())

	updated, err := scanConnection(row)
	if err != nil {
		if isNoRows(err) {
			return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, conn.ID))
		}
		return nil, goerr.Wrap(err, "failed to update connection", goerr.V(model.ConnectionIDKey, conn.ID))
	}
	return updated, nil
}

func (r *connectionRepository) UpdateSyncStatus(ctx context.Context, id model.ConnectionID, update model.SyncStatusUpdate) error {
	tag, err := r.pool.Exec(ctx, `UPDATE integration_connections
		SET last_sync_at = $2, last_sync_status = $3, last_sync_error = $4
		WHERE id = $1`,
		string(id), update.At, string(update.Status), update.Error)
	if err != nil {
		return goerr.Wrap(err, "failed to update sync status", goerr.V(model.ConnectionIDKey, id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id model.ConnectionID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM integration_connections WHERE id = $1`, string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to delete connection", goerr.V(model.ConnectionIDKey, id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
	}
	return nil
}
