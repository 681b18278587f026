package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

// Sentinel errors, shared with the other backends
var (
	ErrNotFound      = interfaces.ErrNotFound
	ErrAlreadyExists = interfaces.ErrAlreadyExists
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultMaxConns     = 10
	defaultConnAttempts = 10
	defaultConnInterval = time.Second

	uniqueViolation = "23505"
)

type Postgres struct {
	pool         *pgxpool.Pool
	maxConns     int32
	connAttempts int
	connInterval time.Duration

	connection  *connectionRepository
	userMapping *userMappingRepository
	workItem    *workItemRepository
	commit      *commitRepository
	page        *pageRepository
	syncRun     *syncRunRepository
}

var _ interfaces.Repository = &Postgres{}

type Option func(*Postgres)

func WithMaxConns(n int32) Option {
	return func(p *Postgres) {
		p.maxConns = n
	}
}

// WithConnAttempts sets how many times New tries to reach the database before giving up
func WithConnAttempts(n int, interval time.Duration) Option {
	return func(p *Postgres) {
		p.connAttempts = n
		p.connInterval = interval
	}
}

// New opens a connection pool and waits until the database answers a ping
func New(ctx context.Context, url string, opts ...Option) (*Postgres, error) {
	p := &Postgres{
		maxConns:     defaultMaxConns,
		connAttempts: defaultConnAttempts,
		connInterval: defaultConnInterval,
	}
	for _, opt := range opts {
		opt(p)
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse postgres URL")
	}
	poolConfig.MaxConns = p.maxConns

	for attempt := 1; ; attempt++ {
		p.pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = p.pool.Ping(ctx); err == nil {
				break
			}
			p.pool.Close()
		}

		if attempt >= p.connAttempts {
			return nil, goerr.Wrap(err, "failed to connect to postgres", goerr.V("attempts", attempt))
		}
		logging.From(ctx).Info("postgres is not ready, retrying",
			"attempts_left", p.connAttempts-attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "interrupted while connecting to postgres")
		case <-time.After(p.connInterval):
		}
	}

	p.connection = &connectionRepository{pool: p.pool}
	p.userMapping = &userMappingRepository{pool: p.pool}
	p.workItem = &workItemRepository{pool: p.pool}
	p.commit = &commitRepository{pool: p.pool}
	p.page = &pageRepository{pool: p.pool}
	p.syncRun = &syncRunRepository{pool: p.pool}

	return p, nil
}

func (p *Postgres) Connection() interfaces.ConnectionRepository {
	return p.connection
}

func (p *Postgres) UserMapping() interfaces.UserMappingRepository {
	return p.userMapping
}

func (p *Postgres) WorkItem() interfaces.WorkItemRepository {
	return p.workItem
}

func (p *Postgres) Commit() interfaces.CommitRepository {
	return p.commit
}

func (p *Postgres) Page() interfaces.PageRepository {
	return p.page
}

func (p *Postgres) SyncRun() interfaces.SyncRunRepository {
	return p.syncRun
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations. It reports whether anything changed.
func Migrate(ctx context.Context, url string) (bool, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return false, goerr.Wrap(err, "failed to open postgres for migration")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.From(ctx).Warn("failed to close migration connection", "error", err)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return false, goerr.Wrap(err, "failed to ping postgres for migration")
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return false, goerr.Wrap(err, "failed to create migration driver")
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, goerr.Wrap(err, "failed to load embedded migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return false, goerr.Wrap(err, "failed to create migrator")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, goerr.Wrap(err, "migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return true, goerr.Wrap(err, "failed to read migration version")
	}
	logging.From(ctx).Info("postgres schema migrated", "version", version, "dirty", dirty)

	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
