package http

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/async"
)

const defaultSyncRunLimit = 20

// syncRequest is the optional body of a sync request. Omitted switches default to true.
type syncRequest struct {
	SyncWorkItems *bool      `json:"sync_work_items"`
	SyncCommits   *bool      `json:"sync_commits"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	ProjectIDs    []string   `json:"project_ids"`
}

func (req syncRequest) options() (model.SyncOptions, error) {
	opts := model.DefaultSyncOptions()
	if req.SyncWorkItems != nil {
		opts.SyncWorkItems = *req.SyncWorkItems
	}
	if req.SyncCommits != nil {
		opts.SyncCommits = *req.SyncCommits
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return opts, goerr.Wrap(errBadRequest, "end_date is before start_date")
	}
	opts.StartDate = req.StartDate
	opts.EndDate = req.EndDate
	opts.ProjectIDs = req.ProjectIDs
	opts.Trigger = types.SyncTriggerManual
	return opts, nil
}

func (s *Server) syncConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := connectionID(r)

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if _, err := s.uc.Connection.Get(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if s.uc.Sync.IsRunning(id) {
			writeError(ctx, w, goerr.Wrap(usecase.ErrSyncInProgress, "connection is already syncing", goerr.V(usecase.ConnectionIDKey, id)))
			return
		}
		async.Dispatch(ctx, "sync", func(ctx context.Context) error {
			_, err := s.uc.Sync.SyncConnection(ctx, id, opts)
			return err
		})
		writeJSON(ctx, w, http.StatusAccepted, map[string]string{
			"connection_id": id.String(),
			"status":        "accepted",
		})
		return
	}

	result, err := s.uc.Sync.SyncConnection(ctx, id, opts)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, result)
}

func (s *Server) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := queryInt(r, "limit", defaultSyncRunLimit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	runs, err := s.uc.Connection.ListSyncRuns(ctx, connectionID(r), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, mapSlice(runs, toSyncRunResponse))
}
