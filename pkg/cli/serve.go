package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/cli/config"
	httpctrl "github.com/secmon-lab/tributary/pkg/controller/http"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var apiToken string
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var syncCfg config.Sync

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("TRIBUTARY_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "api-token",
			Usage:       "Bearer token required on /api routes. The API is open when empty",
			Sources:     cli.EnvVars("TRIBUTARY_API_TOKEN"),
			Destination: &apiToken,
		},
	}

	// Add shared config flags
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, syncCfg.Flags()...)
	flags = append(flags, syncCfg.WorkerFlags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server and the scheduled sync worker",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
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
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			ucOpts, err := syncCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure sync")
			}
			uc := usecase.New(repo, ucOpts...)
			logging.Default().Info("Sync configured", "sync", syncCfg, "repository", repoCfg)

			if err := provision.Provision(ctx, uc); err != nil {
				return goerr.Wrap(err, "failed to provision connections")
			}

			var httpOpts []httpctrl.Options
			if apiToken != "" {
				httpOpts = append(httpOpts, httpctrl.WithAPIToken(apiToken))
			} else {
				logging.Default().Warn("API token not configured, /api is not authenticated")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			syncWorker := syncCfg.Worker(uc.Sync)
			if syncWorker != nil {
				if err := syncWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start sync worker")
				}
			} else {
				logging.Default().Info("Scheduled sync disabled")
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				if syncWorker != nil {
					syncWorker.Stop()
				}
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop scheduling first; a running cycle finishes its write-back
				if syncWorker != nil {
					syncWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
