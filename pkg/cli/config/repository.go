package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/repository/firestore"
	"github.com/secmon-lab/tributary/pkg/repository/memory"
	"github.com/secmon-lab/tributary/pkg/repository/postgres"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend     string
	projectID   string
	databaseID  string
	postgresURL string `masq:"secret"`
	autoMigrate bool
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (memory, firestore or postgres)",
			Category:    "Repository",
			Value:       "memory",
			Sources:     cli.EnvVars("TRIBUTARY_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("TRIBUTARY_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("TRIBUTARY_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "postgres-url",
			Usage:       "PostgreSQL connection URL (required when using postgres backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("TRIBUTARY_POSTGRES_URL"),
			Destination: &r.postgresURL,
		},
		&cli.BoolFlag{
			Name:        "postgres-auto-migrate",
			Usage:       "Apply schema migrations before opening the postgres backend",
			Category:    "Repository",
			Sources:     cli.EnvVars("TRIBUTARY_POSTGRES_AUTO_MIGRATE"),
			Destination: &r.autoMigrate,
		},
	}
}

// LogValue implements slog.LogValuer. The postgres URL may embed a password and is left out.
func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
		slog.Bool("postgres_auto_migrate", r.autoMigrate),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// PostgresURL returns the PostgreSQL connection URL
func (r *Repository) PostgresURL() string {
	return r.postgresURL
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.New("firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case "postgres":
		if r.postgresURL == "" {
			return nil, goerr.New("postgres-url is required when using postgres backend")
		}
		if r.autoMigrate {
			changed, err := postgres.Migrate(ctx, r.postgresURL)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to migrate postgres schema")
			}
			logging.Default().Info("Postgres schema migrated", "changed", changed)
		}
		repo, err := postgres.New(ctx, r.postgresURL)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize postgres repository")
		}
		logging.Default().Info("Using Postgres repository")
		return repo, nil

	case "memory":
		logging.Default().Info("Using in-memory repository (development mode)")
		return memory.New(), nil

	default:
		return nil, goerr.New("invalid repository backend", goerr.V("backend", r.backend))
	}
}
