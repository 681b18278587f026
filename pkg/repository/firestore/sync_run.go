package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"google.golang.org/api/iterator"
)

type syncRunDocument struct {
	ID              string    `firestore:"id"`
	ConnectionID    string    `firestore:"connection_id"`
	Trigger         string    `firestore:"trigger"`
	Status          string    `firestore:"status"`
	WorkItemsSynced int       `firestore:"work_items_synced"`
	CommitsSynced   int       `firestore:"commits_synced"`
	PagesSynced     int       `firestore:"pages_synced"`
	StaleMarked     int       `firestore:"stale_marked"`
	Errors          []string  `firestore:"errors"`
	StartTime       time.Time `firestore:"start_time"`
	EndTime         time.Time `firestore:"end_time"`
	DurationMs      int64     `firestore:"duration_ms"`
}

type syncRunRepository struct {
	client *firestore.Client
	cols   *collections
}

func (r *syncRunRepository) collection(connID model.ConnectionID) *firestore.CollectionRef {
	return r.cols.sub(connID, syncRunsCollection)
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	doc := &syncRunDocument{
		ID:              string(run.ID),
		ConnectionID:    string(run.ConnectionID),
		Trigger:         string(run.Trigger),
		Status:          string(run.Status),
		WorkItemsSynced: run.WorkItemsSynced,
		CommitsSynced:   run.CommitsSynced,
		PagesSynced:     run.PagesSynced,
		StaleMarked:     run.StaleMarked,
		Errors:          run.Errors,
		StartTime:       run.StartTime,
		EndTime:         run.EndTime,
		DurationMs:      run.DurationMs,
	}

	if _, err := r.collection(run.ConnectionID).Doc(doc.ID).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to create sync run",
			goerr.V(model.ConnectionIDKey, run.ConnectionID), goerr.V("sync_run_id", run.ID))
	}
	return nil
}

func (r *syncRunRepository) List(ctx context.Context, connID model.ConnectionID, limit int) ([]*model.SyncRun, error) {
	query := r.collection(connID).OrderBy("start_time", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var runs []*model.SyncRun
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate sync runs", goerr.V(model.ConnectionIDKey, connID))
		}

		var doc syncRunDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal sync run", goerr.V("docID", snap.Ref.ID))
		}
		errs := doc.Errors
		if errs == nil {
			errs = []string{}
		}
		runs = append(runs, &model.SyncRun{
			ID:              model.SyncRunID(doc.ID),
			ConnectionID:    model.ConnectionID(doc.ConnectionID),
			Trigger:         types.SyncTrigger(doc.Trigger),
			Status:          types.SyncStatus(doc.Status),
			WorkItemsSynced: doc.WorkItemsSynced,
			CommitsSynced:   doc.CommitsSynced,
			PagesSynced:     doc.PagesSynced,
			StaleMarked:     doc.StaleMarked,
			Errors:          errs,
			StartTime:       doc.StartTime,
			EndTime:         doc.EndTime,
			DurationMs:      doc.DurationMs,
		})
	}
	return runs, nil
}

func (r *syncRunRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	return deleteAll(ctx, r.client, r.collection(connID))
}
