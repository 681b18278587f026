package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type pageRepository struct {
	pool *pgxpool.Pool
}

const pageColumns = `connection_id, external_id, type, status, title, content, space_id, space_key,
	space_name, parent_id, position, author_id, owner_id, version_number, version_message, created_date,
	updated_date, url, metadata, stale, last_synced_at`

func scanPage(row scanner) (*model.ConfluencePage, error) {
	var (
		p      model.ConfluencePage
		connID string
	)
	if err := row.Scan(&connID, &p.ExternalID, &p.Type, &p.Status, &p.Title, &p.Content, &p.SpaceID,
		&p.SpaceKey, &p.SpaceName, &p.ParentID, &p.Position, &p.AuthorID, &p.OwnerID, &p.VersionNumber,
		&p.VersionMessage, &p.CreatedDate, &p.UpdatedDate, &p.URL, &p.Metadata, &p.Stale,
		&p.LastSyncedAt); err != nil {
		return nil, err
	}
	p.ConnectionID = model.ConnectionID(connID)
	return &p, nil
}

func (r *pageRepository) Upsert(ctx context.Context, p *model.ConfluencePage) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO confluence_pages (`+pageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			space_id = EXCLUDED.space_id,
			space_key = EXCLUDED.space_key,
			space_name = EXCLUDED.space_name,
			parent_id = EXCLUDED.parent_id,
			position = EXCLUDED.position,
			author_id = EXCLUDED.author_id,
			owner_id = EXCLUDED.owner_id,
			version_number = EXCLUDED.version_number,
			version_message = EXCLUDED.version_message,
			created_date = EXCLUDED.created_date,
			updated_date = EXCLUDED.updated_date,
			url = EXCLUDED.url,
			metadata = EXCLUDED.metadata,
			stale = EXCLUDED.stale,
			last_synced_at = EXCLUDED.last_synced_at`,
		string(p.ConnectionID), p.ExternalID, p.Type, p.Status, p.Title, p.Content, p.SpaceID, p.SpaceKey,
		p.SpaceName, p.ParentID, p.Position, p.AuthorID, p.OwnerID, p.VersionNumber, p.VersionMessage,
		p.CreatedDate, p.UpdatedDate, p.URL, p.Metadata, p.Stale, p.LastSyncedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert page",
			goerr.V(model.ConnectionIDKey, p.ConnectionID), goerr.V(model.ExternalIDKey, p.ExternalID))
	}
	return nil
}

func (r *pageRepository) Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.ConfluencePage, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pageColumns+` FROM confluence_pages
		WHERE connection_id = $1 AND external_id = $2`, string(connID), externalID)
	p, err := scanPage(row)
	if err != nil {
		if isNoRows(err) {
			return nil, goerr.Wrap(ErrNotFound, "page not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V(model.ExternalIDKey, externalID))
		}
		return nil, goerr.Wrap(err, "failed to get page", goerr.V(model.ExternalIDKey, externalID))
	}
	return p, nil
}

func (r *pageRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.ConfluencePage, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pageColumns+` FROM confluence_pages
		WHERE connection_id = $1 ORDER BY external_id`, string(connID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pages", goerr.V(model.ConnectionIDKey, connID))
	}
	defer rows.Close()

	var pages []*model.ConfluencePage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan page")
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate pages")
	}
	return pages, nil
}

func (r *pageRepository) MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE confluence_pages SET stale = TRUE
		WHERE connection_id = $1 AND stale = FALSE AND NOT (external_id = ANY($2))`,
		string(connID), nonNil(seen))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to mark stale pages", goerr.V(model.ConnectionIDKey, connID))
	}
	return int(tag.RowsAffected()), nil
}

func (r *pageRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM confluence_pages WHERE connection_id = $1`, string(connID)); err != nil {
		return goerr.Wrap(err, "failed to delete pages", goerr.V(model.ConnectionIDKey, connID))
	}
	return nil
}
