package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

type commitRepository struct {
	pool *pgxpool.Pool
}

const commitColumns = `connection_id, commit_hash, employee_id, message, url, repository, files_changed,
	lines_added, lines_deleted, author_name, author_email, author_date, committer_name, committer_email,
	commit_date, linked_work_items, last_synced_at`

func scanCommit(row scanner) (*model.DeveloperCommit, error) {
	var (
		c          model.DeveloperCommit
		connID     string
		employeeID string
	)
	if err := row.Scan(&connID, &c.CommitHash, &employeeID, &c.Message, &c.URL, &c.Repository,
		&c.FilesChanged, &c.LinesAdded, &c.LinesDeleted, &c.AuthorName, &c.AuthorEmail, &c.AuthorDate,
		&c.CommitterName, &c.CommitterEmail, &c.CommitDate, &c.LinkedWorkItems, &c.LastSyncedAt); err != nil {
		return nil, err
	}
	c.ConnectionID = model.ConnectionID(connID)
	c.EmployeeID = model.EmployeeID(employeeID)
	c.LinkedWorkItems = nonNil(c.LinkedWorkItems)
	return &c, nil
}

func (r *commitRepository) Upsert(ctx context.Context, c *model.DeveloperCommit) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO developer_commits (`+commitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (connection_id, commit_hash) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			message = EXCLUDED.message,
			url = EXCLUDED.url,
			repository = EXCLUDED.repository,
			files_changed = EXCLUDED.files_changed,
			lines_added = EXCLUDED.lines_added,
			lines_deleted = EXCLUDED.lines_deleted,
			author_name = EXCLUDED.author_name,
			author_email = EXCLUDED.author_email,
			author_date = EXCLUDED.author_date,
			committer_name = EXCLUDED.committer_name,
			committer_email = EXCLUDED.committer_email,
			commit_date = EXCLUDED.commit_date,
			linked_work_items = EXCLUDED.linked_work_items,
			last_synced_at = EXCLUDED.last_synced_at`,
		string(c.ConnectionID), c.CommitHash, string(c.EmployeeID), c.Message, c.URL, c.Repository,
		c.FilesChanged, c.LinesAdded, c.LinesDeleted, c.AuthorName, c.AuthorEmail, c.AuthorDate,
		c.CommitterName, c.CommitterEmail, c.CommitDate, nonNil(c.LinkedWorkItems), c.LastSyncedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert commit",
			goerr.V(model.ConnectionIDKey, c.ConnectionID), goerr.V("commit_hash", c.CommitHash))
	}
	return nil
}

func (r *commitRepository) Get(ctx context.Context, connID model.ConnectionID, hash string) (*model.DeveloperCommit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+commitColumns+` FROM developer_commits
		WHERE connection_id = $1 AND commit_hash = $2`, string(connID), hash)
	c, err := scanCommit(row)
	if err != nil {
		if isNoRows(err) {
			return nil, goerr.Wrap(ErrNotFound, "commit not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V("commit_hash", hash))
		}
		return nil, goerr.Wrap(err, "failed to get commit", goerr.V("commit_hash", hash))
	}
	return c, nil
}

func (r *commitRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.DeveloperCommit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commitColumns+` FROM developer_commits
		WHERE connection_id = $1 ORDER BY commit_hash`, string(connID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list commits", goerr.V(model.ConnectionIDKey, connID))
	}
	defer rows.Close()

	var commits []*model.DeveloperCommit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan commit")
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate commits")
	}
	return commits, nil
}

func (r *commitRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM developer_commits WHERE connection_id = $1`, string(connID)); err != nil {
		return goerr.Wrap(err, "failed to delete commits", goerr.V(model.ConnectionIDKey, connID))
	}
	return nil
}
