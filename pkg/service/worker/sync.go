package worker

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/errutil"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of connections synchronized in parallel
const DefaultConcurrency = 4

// Syncer is the part of usecase.SyncUseCase the worker drives
type Syncer interface {
	ListSyncable(ctx context.Context) ([]*model.IntegrationConnection, error)
	SyncConnection(ctx context.Context, id model.ConnectionID, opts model.SyncOptions) (*model.SyncResult, error)
}

// SyncWorker periodically synchronizes every syncable connection
//
// Architecture assumptions:
// - Single server instance. The per-connection lock is in-process only.
type SyncWorker struct {
	syncer      Syncer
	interval    time.Duration
	concurrency int
	options     func() model.SyncOptions
	stopCh      chan struct{}
	doneCh      chan struct{}
}

type Option func(*SyncWorker)

// WithConcurrency bounds the number of connections synchronized at the same time
func WithConcurrency(n int) Option {
	return func(w *SyncWorker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithSyncOptions sets the options builder evaluated at every tick
func WithSyncOptions(fn func() model.SyncOptions) Option {
	return func(w *SyncWorker) {
		w.options = fn
	}
}

// NewSyncWorker creates a new worker for scheduled synchronization
func NewSyncWorker(syncer Syncer, interval time.Duration, opts ...Option) *SyncWorker {
	w := &SyncWorker{
		syncer:      syncer,
		interval:    interval,
		concurrency: DefaultConcurrency,
		options:     model.DefaultSyncOptions,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background sync loop. It does not block.
func (w *SyncWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return goerr.New("sync interval must be positive", goerr.V("interval", w.interval))
	}
	logging.Default().Info("Sync worker starting",
		"interval", w.interval.String(),
		"concurrency", w.concurrency)

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for the running cycle to finish
func (w *SyncWorker) Stop() {
	logging.Default().Info("Sync worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Sync worker stopped")
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := w.RunOnce(ctx); err != nil {
		_ = errutil.Handle(ctx, err, "initial scheduled sync failed (will retry next interval)")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				_ = errutil.Handle(ctx, err, "scheduled sync failed (will retry next interval)")
			}

		case <-ctx.Done():
			logging.Default().Info("Sync worker loop exited")
			return
		}
	}
}

// RunOnce synchronizes all syncable connections once, at most concurrency at a time.
// Per-connection outcomes are logged. Only failures to enumerate connections or repository failures
// are returned.
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	startTime := time.Now()
	conns, err := w.syncer.ListSyncable(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list syncable connections")
	}
	if len(conns) == 0 {
		logging.Default().Debug("no syncable connections")
		return nil
	}

	opts := w.options()
	opts.Trigger = types.SyncTriggerScheduled

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(w.concurrency)
	for _, conn := range conns {
		eg.Go(func() error {
			logger := logging.Default().With("connection_id", conn.ID.String(), "name", conn.Name)
			result, err := w.syncer.SyncConnection(logging.With(egCtx, logger), conn.ID, opts)
			switch {
			case errors.Is(err, usecase.ErrSyncInProgress):
				logger.Info("skip connection already syncing")
				return nil
			case err != nil:
				// other connections keep syncing
				_ = errutil.Handle(egCtx, err, "scheduled sync of connection failed")
				return nil
			}
			logger.Info("scheduled sync done",
				"success", result.Success,
				"work_items", result.WorkItemsSynced,
				"commits", result.CommitsSynced,
				"errors", len(result.Errors))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	logging.Default().Info("Scheduled sync cycle completed",
		"connections", len(conns),
		"duration", time.Since(startTime).String())
	return nil
}
