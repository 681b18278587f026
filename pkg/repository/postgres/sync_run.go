package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

type syncRunRepository struct {
	pool *pgxpool.Pool
}

const syncRunColumns = `id, connection_id, trigger, status, work_items_synced, commits_synced,
	pages_synced, stale_marked, errors, start_time, end_time, duration_ms`

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sync_runs (`+syncRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(run.ID), string(run.ConnectionID), string(run.Trigger), string(run.Status),
		run.WorkItemsSynced, run.CommitsSynced, run.PagesSynced, run.StaleMarked, nonNil(run.Errors),
		run.StartTime, run.EndTime, run.DurationMs)
	if err != nil {
		return goerr.Wrap(err, "failed to insert sync run",
			goerr.V(model.ConnectionIDKey, run.ConnectionID), goerr.V("sync_run_id", run.ID))
	}
	return nil
}

func (r *syncRunRepository) List(ctx context.Context, connID model.ConnectionID, limit int) ([]*model.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE connection_id = $1 ORDER BY start_time DESC`
	args := []any{string(connID)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sync runs", goerr.V(model.ConnectionIDKey, connID))
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		var (
			run     model.SyncRun
			id      string
			cid     string
			trigger string
			status  string
		)
		if err := rows.Scan(&id, &cid, &trigger, &status, &run.WorkItemsSynced, &run.CommitsSynced,
			&run.PagesSynced, &run.StaleMarked, &run.Errors, &run.StartTime, &run.EndTime,
			&run.DurationMs); err != nil {
			return nil, goerr.Wrap(err, "failed to scan sync run")
		}
		run.ID = model.SyncRunID(id)
		run.ConnectionID = model.ConnectionID(cid)
		run.Trigger = types.SyncTrigger(trigger)
		run.Status = types.SyncStatus(status)
		run.Errors = nonNil(run.Errors)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate sync runs")
	}
	return runs, nil
}

func (r *syncRunRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sync_runs WHERE connection_id = $1`, string(connID)); err != nil {
		return goerr.Wrap(err, "failed to delete sync runs", goerr.V(model.ConnectionIDKey, connID))
	}
	return nil
}
