package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/repository/postgres"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var target string
	var projectID string
	var databaseID string
	var postgresURL string
	var dryRun bool

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Apply Firestore indexes or PostgreSQL schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "target",
				Usage:       "Migration target (firestore or postgres)",
				Value:       "firestore",
				Sources:     cli.EnvVars("TRIBUTARY_MIGRATE_TARGET"),
				Destination: &target,
			},
			&cli.StringFlag{
				Name:        "firestore-project-id",
				Usage:       "Firestore Project ID (required for firestore)",
				Sources:     cli.EnvVars("TRIBUTARY_FIRESTORE_PROJECT_ID"),
				Destination: &projectID,
			},
			&cli.StringFlag{
				Name:        "firestore-database-id",
				Usage:       "Firestore Database ID",
				Sources:     cli.EnvVars("TRIBUTARY_FIRESTORE_DATABASE_ID"),
				Destination: &databaseID,
			},
			&cli.StringFlag{
				Name:        "postgres-url",
				Usage:       "PostgreSQL connection URL (required for postgres)",
				Sources:     cli.EnvVars("TRIBUTARY_POSTGRES_URL"),
				Destination: &postgresURL,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "Preview changes without applying (firestore only)",
				Destination: &dryRun,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			switch target {
			case "firestore":
				if projectID == "" {
					return goerr.New("firestore-project-id is required for firestore migration")
				}
				return migrateFirestore(ctx, projectID, databaseID, dryRun)
			case "postgres":
				if postgresURL == "" {
					return goerr.New("postgres-url is required for postgres migration")
				}
				if dryRun {
					return goerr.New("dry-run is not supported for postgres migration")
				}
				changed, err := postgres.Migrate(ctx, postgresURL)
				if err != nil {
					return goerr.Wrap(err, "failed to apply postgres migrations")
				}
				logging.Default().Info("Postgres migrations applied", "changed", changed)
				return nil
			default:
				return goerr.New("invalid migration target", goerr.V("target", target))
			}
		},
	}
}

func migrateFirestore(ctx context.Context, projectID, databaseID string, dryRun bool) error {
	logger := logging.Default()

	logger.Info("Migrate configuration",
		"projectID", projectID,
		"databaseID", databaseID,
		"dryRun", dryRun)

	indexConfig := getIndexConfig()

	client, err := fireconf.NewClient(ctx, projectID, databaseID)
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", "error", err.Error())
		}
	}()

	if !dryRun {
		logger.Info("Applying migrations")
		if err := client.Migrate(ctx, indexConfig); err != nil {
			return goerr.Wrap(err, "failed to apply migrations")
		}
		logger.Info("Migrations applied successfully")
		return nil
	}

	logger.Info("Dry run mode - previewing changes")
	plan, err := client.GetMigrationPlan(ctx, indexConfig)
	if err != nil {
		return goerr.Wrap(err, "failed to create migration plan")
	}

	if len(plan.Steps) == 0 {
		logger.Info("No changes required")
		return nil
	}

	for _, step := range plan.Steps {
		logger.Info("Migration step",
			"collection", step.Collection,
			"operation", step.Operation,
			"description", step.Description,
			"destructive", step.Destructive)
	}
	return nil
}

// staleSweepIndex backs the stale marking query: stale == false ORDER BY external_id
func staleSweepIndex() fireconf.Index {
	return fireconf.Index{
		Fields: []fireconf.IndexField{
			{Path: "stale", Order: fireconf.OrderAscending},
			{Path: "external_id", Order: fireconf.OrderAscending},
		},
	}
}

// getIndexConfig returns the Firestore index configuration. Synced objects live in
// per-connection subcollections, which share their indexes by collection ID.
func getIndexConfig() *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name:    "work_items",
				Indexes: []fireconf.Index{staleSweepIndex()},
			},
			{
				Name:    "pages",
				Indexes: []fireconf.Index{staleSweepIndex()},
			},
		},
	}
}
