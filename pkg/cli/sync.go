package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/cli/config"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSync() *cli.Command {
	var connectionIDs []string
	var projects []string
	var since string
	var noWorkItems bool
	var noCommits bool
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var syncCfg config.Sync

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "connection-id",
			Aliases:     []string{"i"},
			Usage:       "Target connection IDs (can be specified multiple times, omit for all syncable connections)",
			Destination: &connectionIDs,
		},
		&cli.StringFlag{
			Name:        "since",
			Usage:       "Only sync objects changed within this period (e.g., 24h, 7d). Disables stale marking",
			Destination: &since,
		},
		&cli.StringSliceFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Restrict to projects or spaces by ID, name or key (can be specified multiple times)",
			Destination: &projects,
		},
		&cli.BoolFlag{
			Name:        "no-work-items",
			Usage:       "Skip work items, tasks and pages",
			Destination: &noWorkItems,
		},
		&cli.BoolFlag{
			Name:        "no-commits",
			Usage:       "Skip Azure DevOps commits",
			Destination: &noCommits,
		},
	}
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, syncCfg.Flags()...)

	return &cli.Command{
		Name:  "sync",
		Usage: "Run a one-shot sync of connections",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			opts := model.SyncOptions{
				SyncWorkItems: !noWorkItems,
				SyncCommits:   !noCommits,
				ProjectIDs:    projects,
				Trigger:       types.SyncTriggerCLI,
			}
			if since != "" {
				dur, err := parseDuration(since)
				if err != nil {
					return goerr.Wrap(err, "failed to parse since", goerr.V("since", since))
				}
				start := time.Now().UTC().Add(-dur)
				opts.StartDate = &start
			}

			provision, err := appCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load config file")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			ucOpts, err := syncCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure sync")
			}
			uc := usecase.New(repo, ucOpts...)

			if err := provision.Provision(ctx, uc); err != nil {
				return goerr.Wrap(err, "failed to provision connections")
			}

			targets, err := syncTargets(ctx, uc, connectionIDs)
			if err != nil {
				return err
			}
			logger.Info("Sync configuration",
				"connections", len(targets),
				"since", since,
				"projects", projects,
				"work_items", opts.SyncWorkItems,
				"commits", opts.SyncCommits)

			var outcomes []syncOutcome
			for _, conn := range targets {
				result, err := uc.Sync.SyncConnection(ctx, conn.ID, opts)
				if err != nil {
					return goerr.Wrap(err, "failed to sync connection", goerr.V("connection_id", conn.ID))
				}
				outcomes = append(outcomes, syncOutcome{conn: conn, result: result})
			}

			printSyncSummary(os.Stdout, outcomes)

			failed := slices.IndexFunc(outcomes, func(o syncOutcome) bool { return !o.result.Success })
			if failed >= 0 {
				return goerr.New("sync completed with errors")
			}
			return nil
		},
	}
}

// syncTargets resolves the requested connections, or every syncable one when none is requested
func syncTargets(ctx context.Context, uc *usecase.UseCases, ids []string) ([]*model.IntegrationConnection, error) {
	if len(ids) == 0 {
		conns, err := uc.Sync.ListSyncable(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list syncable connections")
		}
		return conns, nil
	}

	conns := make([]*model.IntegrationConnection, 0, len(ids))
	for _, id := range ids {
		conn, err := uc.Connection.Get(ctx, model.ConnectionID(id))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get connection", goerr.V("connection_id", id))
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

type syncOutcome struct {
	conn   *model.IntegrationConnection
	result *model.SyncResult
}

func printSyncSummary(w io.Writer, outcomes []syncOutcome) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)

	if len(outcomes) == 0 {
		_, _ = warn.Fprintln(w, "No syncable connections")
		return
	}

	for _, o := range outcomes {
		r := o.result
		status := r.Status()

		var marker *color.Color
		switch status {
		case types.SyncStatusSuccess:
			marker = ok
		case types.SyncStatusPartial:
			marker = warn
		default:
			marker = fail
		}

		_, _ = bold.Fprintf(w, "%s ", o.conn.Name)
		_, _ = fmt.Fprintf(w, "(%s, %s) ", o.conn.Platform.DisplayName(), o.conn.ID)
		_, _ = marker.Fprintln(w, status)

		_, _ = fmt.Fprintf(w, "  work items: %d  commits: %d", r.WorkItemsSynced, r.CommitsSynced)
		if r.PagesSynced != nil {
			_, _ = fmt.Fprintf(w, "  pages: %d", *r.PagesSynced)
		}
		if r.StaleMarked > 0 {
			_, _ = fmt.Fprintf(w, "  stale: %d", r.StaleMarked)
		}
		_, _ = fmt.Fprintf(w, "  duration: %s\n", time.Duration(r.DurationMs)*time.Millisecond)

		for _, e := range r.Errors {
			_, _ = fail.Fprintf(w, "  ! %s\n", e)
		}
	}
}

// parseDuration parses duration string with support for days (e.g., "7d")
func parseDuration(s string) (time.Duration, error) {
	var d time.Duration
	var err error
	if len(s) > 1 && s[len(s)-1] == 'd' {
		d, err = time.ParseDuration(s[:len(s)-1] + "h")
		d *= 24
	} else {
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, goerr.New("duration must be positive", goerr.V("duration", s))
	}
	return d, nil
}
