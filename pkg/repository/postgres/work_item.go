package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

type workItemRepository struct {
	pool *pgxpool.Pool
}

const workItemColumns = `connection_id, external_id, external_url, platform, title, description,
	work_item_type, status, priority, assigned_to_id, assigned_to, assigned_to_name, created_date,
	modified_date, completed_date, due_date, project, section, area_path, iteration_path, story_points,
	tags, metadata, stale, last_synced_at`

func scanWorkItem(row scanner) (*model.WorkItem, error) {
	var (
		item         model.WorkItem
		connID       string
		platform     string
		assignedToID *string
	)
	if err := row.Scan(&connID, &item.ExternalID, &item.ExternalURL, &platform, &item.Title,
		&item.Description, &item.WorkItemType, &item.Status, &item.Priority, &assignedToID,
		&item.AssignedTo, &item.AssignedToName, &item.CreatedDate, &item.ModifiedDate,
		&item.CompletedDate, &item.DueDate, &item.Project, &item.Section, &item.AreaPath,
		&item.IterationPath, &item.StoryPoints, &item.Tags, &item.Metadata, &item.Stale,
		&item.LastSyncedAt); err != nil {
		return nil, err
	}
	item.ConnectionID = model.ConnectionID(connID)
	item.Platform = types.Platform(platform)
	if assignedToID != nil {
		id := model.EmployeeID(*assignedToID)
		item.AssignedToID = &id
	}
	return &item, nil
}

// Upsert writes every column on conflict, which also clears the stale flag
func (r *workItemRepository) Upsert(ctx context.Context, item *model.WorkItem) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO work_items (`+workItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			external_url = EXCLUDED.external_url,
			platform = EXCLUDED.platform,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			work_item_type = EXCLUDED.work_item_type,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			assigned_to_id = EXCLUDED.assigned_to_id,
			assigned_to = EXCLUDED.assigned_to,
			assigned_to_name = EXCLUDED.assigned_to_name,
			created_date = EXCLUDED.created_date,
			modified_date = EXCLUDED.modified_date,
			completed_date = EXCLUDED.completed_date,
			due_date = EXCLUDED.due_date,
			project = EXCLUDED.project,
			section = EXCLUDED.section,
			area_path = EXCLUDED.area_path,
			iteration_path = EXCLUDED.iteration_path,
			story_points = EXCLUDED.story_points,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			stale = EXCLUDED.stale,
			last_synced_at = EXCLUDED.last_synced_at`,
		string(item.ConnectionID), item.ExternalID, item.ExternalURL, string(item.Platform), item.Title,
		item.Description, item.WorkItemType, item.Status, item.Priority, employeeIDParam(item.AssignedToID),
		item.AssignedTo, item.AssignedToName, item.CreatedDate, item.ModifiedDate, item.CompletedDate,
		item.DueDate, item.Project, item.Section, item.AreaPath, item.IterationPath, item.StoryPoints,
		nonNil(item.Tags), item.Metadata, item.Stale, item.LastSyncedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert work item",
			goerr.V(model.ConnectionIDKey, item.ConnectionID), goerr.V(model.ExternalIDKey, item.ExternalID))
	}
	return nil
}

func (r *workItemRepository) Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.WorkItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workItemColumns+` FROM work_items
		WHERE connection_id = $1 AND external_id = $2`, string(connID), externalID)
	item, err := scanWorkItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, goerr.Wrap(ErrNotFound, "work item not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V(model.ExternalIDKey, externalID))
		}
		return nil, goerr.Wrap(err, "failed to get work item", goerr.V(model.ExternalIDKey, externalID))
	}
	return item, nil
}

func (r *workItemRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.WorkItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workItemColumns+` FROM work_items
		WHERE connection_id = $1 ORDER BY external_id`, string(connID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list work items", goerr.V(model.ConnectionIDKey, connID))
	}
	defer rows.Close()

	var items []*model.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan work item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate work items")
	}
	return items, nil
}

func (r *workItemRepository) MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE work_items SET stale = TRUE
		WHERE connection_id = $1 AND stale = FALSE AND NOT (external_id = ANY($2))`,
		string(connID), nonNil(seen))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to mark stale work items", goerr.V(model.ConnectionIDKey, connID))
	}
	return int(tag.RowsAffected()), nil
}

func (r *workItemRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM work_items WHERE connection_id = $1`, string(connID)); err != nil {
		return goerr.Wrap(err, "failed to delete work items", goerr.V(model.ConnectionIDKey, connID))
	}
	return nil
}
