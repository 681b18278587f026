package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/platform"
	"github.com/secmon-lab/tributary/pkg/utils/errutil"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

// writeBackTimeout bounds the status write-back, which runs after the run deadline may have expired
const writeBackTimeout = 30 * time.Second

// SyncUseCase pulls remote objects of a connection into the unified store
type SyncUseCase struct {
	repo    interfaces.Repository
	factory platform.Factory
	timeout time.Duration
	locks   *syncLocks
	now     func() time.Time
}

// NewSyncUseCase creates a new SyncUseCase instance
func NewSyncUseCase(repo interfaces.Repository, factory platform.Factory, timeout time.Duration) *SyncUseCase {
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	return &SyncUseCase{
		repo:    repo,
		factory: factory,
		timeout: timeout,
		locks:   newSyncLocks(),
		now:     time.Now,
	}
}

// syncLocks is the per-connection "sync in progress" flag
type syncLocks struct {
	mu      sync.Mutex
	running map[model.ConnectionID]struct{}
}

func newSyncLocks() *syncLocks {
	return &syncLocks{running: make(map[model.ConnectionID]struct{})}
}

// tryLock returns a release func, or false when id is already locked
func (l *syncLocks) tryLock(id model.ConnectionID) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.running[id]; ok {
		return nil, false
	}
	l.running[id] = struct{}{}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.running, id)
	}, true
}

func (l *syncLocks) isLocked(id model.ConnectionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.running[id]
	return ok
}

// IsRunning reports whether a sync of the connection is in progress
func (uc *SyncUseCase) IsRunning(id model.ConnectionID) bool {
	return uc.locks.isLocked(id)
}

// syncRun is the state of one SyncConnection call
type syncRun struct {
	conn     *model.IntegrationConnection
	opts     model.SyncOptions
	result   *model.SyncResult
	identity *identityResolver
	syncedAt time.Time
	logger   *slog.Logger

	// seen collects external IDs written in this run for stale marking
	seen []string
}

// fail records a partial failure. Failures caused by the run being cancelled are folded into the
// single deadline error added when the run ends.
func (r *syncRun) fail(ctx context.Context, err error, format string, args ...any) {
	if ctx.Err() != nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
	}
	r.result.AddError(msg)
	r.logger.Warn("sync step failed", "message", msg)
}

// SyncConnection synchronizes one connection. Remote and per-object failures are reported in the
// result. A Go error is returned only when the connection cannot be loaded from the repository or
// another sync of the connection is already running.
func (uc *SyncUseCase) SyncConnection(ctx context.Context, id model.ConnectionID, opts model.SyncOptions) (*model.SyncResult, error) {
	release, ok := uc.locks.tryLock(id)
	if !ok {
		return nil, goerr.Wrap(ErrSyncInProgress, "connection is already syncing", goerr.V(ConnectionIDKey, id))
	}
	defer release()

	logger := logging.From(ctx).With("connection_id", id.String(), "trigger", opts.Trigger.Normalize())
	ctx = logging.With(ctx, logger)
	result := model.NewSyncResult(uc.now())

	conn, err := uc.repo.Connection().Get(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		result.AddError(msgConnectionNotFound)
		result.Finish(uc.now())
		return result, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load connection", goerr.V(ConnectionIDKey, id))
	}

	if !conn.CanSync() {
		result.AddError(msgSyncGated)
		result.Finish(uc.now())
		logger.Info("sync skipped", "is_active", conn.IsActive, "sync_enabled", conn.SyncEnabled)
		uc.record(ctx, &syncRun{conn: conn, opts: opts, result: result, logger: logger})
		return result, nil
	}

	mappings, err := uc.repo.UserMapping().List(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load user mappings", goerr.V(ConnectionIDKey, id))
	}

	run := &syncRun{
		conn:     conn,
		opts:     opts,
		result:   result,
		identity: newIdentityResolver(mappings),
		syncedAt: result.StartTime,
		logger:   logger.With("platform", conn.Platform.String()),
	}
	run.logger.Info("sync started", "mappings", len(mappings))

	runCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var sweep bool
	switch conn.Platform {
	case types.PlatformAzureDevOps:
		sweep = uc.syncAzureDevOps(runCtx, run)
	case types.PlatformAsana:
		sweep = uc.syncAsana(runCtx, run)
	case types.PlatformConfluence:
		sweep = uc.syncConfluence(runCtx, run)
	default:
		result.AddError(fmt.Sprintf("unsupported platform: %s", conn.Platform))
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.AddError(fmt.Sprintf("sync deadline exceeded (%s)", uc.timeout))
	case ctx.Err() != nil:
		result.AddError("sync canceled: " + ctx.Err().Error())
	}

	// a background context keeps tombstoning and the write-back alive past the run deadline
	bgCtx, bgCancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer bgCancel()

	if sweep && len(result.Errors) == 0 {
		uc.markStale(bgCtx, run)
	}

	result.Finish(uc.now())
	uc.record(bgCtx, run)

	return result, nil
}

func (uc *SyncUseCase) markStale(ctx context.Context, run *syncRun) {
	var (
		n   int
		err error
	)
	if run.conn.Platform == types.PlatformConfluence {
		n, err = uc.repo.Page().MarkStale(ctx, run.conn.ID, run.seen)
	} else {
		n, err = uc.repo.WorkItem().MarkStale(ctx, run.conn.ID, run.seen)
	}
	if err != nil {
		run.fail(ctx, err, "Failed to mark stale objects")
		return
	}
	run.result.StaleMarked = n
	if n > 0 {
		run.logger.Info("marked vanished objects stale", "count", n)
	}
}

// record writes the connection's last sync status and the run history
func (uc *SyncUseCase) record(ctx context.Context, run *syncRun) {
	result := run.result
	update := model.SyncStatusUpdate{
		At:     result.EndTime,
		Status: result.Status(),
	}
	if len(result.Errors) > 0 {
		joined := strings.Join(result.Errors, "; ")
		update.Error = &joined
	}

	if err := uc.repo.Connection().UpdateSyncStatus(ctx, run.conn.ID, update); err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to update sync status", goerr.V(ConnectionIDKey, run.conn.ID)),
			"failed to write back sync status")
	}

	syncRunRow := model.NewSyncRun(run.conn.ID, run.opts.Trigger, result)
	if err := uc.repo.SyncRun().Create(ctx, syncRunRow); err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to save sync run", goerr.V(ConnectionIDKey, run.conn.ID)),
			"failed to record sync run")
	}

	attrs := []any{
		"status", update.Status,
		"work_items", result.WorkItemsSynced,
		"commits", result.CommitsSynced,
		"stale_marked", result.StaleMarked,
		"errors", len(result.Errors),
		"duration_ms", result.DurationMs,
	}
	if result.PagesSynced != nil {
		attrs = append(attrs, "pages", *result.PagesSynced)
	}
	if result.Success {
		run.logger.Info("sync finished", attrs...)
	} else {
		run.logger.Warn("sync finished with errors", attrs...)
	}
}

// SyncAll synchronizes every syncable connection one after another
func (uc *SyncUseCase) SyncAll(ctx context.Context, opts model.SyncOptions) (map[model.ConnectionID]*model.SyncResult, error) {
	conns, err := uc.ListSyncable(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[model.ConnectionID]*model.SyncResult, len(conns))
	for _, conn := range conns {
		if ctx.Err() != nil {
			return results, goerr.Wrap(ctx.Err(), "sync interrupted")
		}
		result, err := uc.SyncConnection(ctx, conn.ID, opts)
		if errors.Is(err, ErrSyncInProgress) {
			logging.From(ctx).Info("skip connection already syncing", "connection_id", conn.ID.String())
			continue
		}
		if err != nil {
			return results, err
		}
		results[conn.ID] = result
	}
	return results, nil
}

// ListSyncable returns connections eligible for synchronization
func (uc *SyncUseCase) ListSyncable(ctx context.Context) ([]*model.IntegrationConnection, error) {
	conns, err := uc.repo.Connection().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list connections")
	}
	var out []*model.IntegrationConnection
	for _, c := range conns {
		if c.CanSync() {
			out = append(out, c)
		}
	}
	return out, nil
}
