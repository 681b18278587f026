package config

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/service/platform"
	"github.com/secmon-lab/tributary/pkg/service/restapi"
	"github.com/secmon-lab/tributary/pkg/service/worker"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Sync holds CLI flags for the platform clients and the sync orchestrator
type Sync struct {
	interval    time.Duration
	concurrency int
	timeout     time.Duration
	httpTimeout time.Duration
	rateLimit   float64
	rateBurst   int
	maxRetries  int
	userAgent   string
}

// Flags returns CLI flags for sync configuration
func (s *Sync) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "sync-timeout",
			Usage:       "Deadline of a single sync run",
			Category:    "Sync",
			Value:       usecase.DefaultSyncTimeout,
			Sources:     cli.EnvVars("TRIBUTARY_SYNC_TIMEOUT"),
			Destination: &s.timeout,
		},
		&cli.DurationFlag{
			Name:        "http-timeout",
			Usage:       "Timeout of a single request to a platform API",
			Category:    "Sync",
			Value:       restapi.DefaultTimeout,
			Sources:     cli.EnvVars("TRIBUTARY_HTTP_TIMEOUT"),
			Destination: &s.httpTimeout,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Requests per second allowed per platform client",
			Category:    "Sync",
			Value:       restapi.DefaultRateLimit,
			Sources:     cli.EnvVars("TRIBUTARY_RATE_LIMIT"),
			Destination: &s.rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Request burst allowed per platform client",
			Category:    "Sync",
			Value:       restapi.DefaultRateBurst,
			Sources:     cli.EnvVars("TRIBUTARY_RATE_BURST"),
			Destination: &s.rateBurst,
		},
		&cli.IntFlag{
			Name:        "max-retries",
			Usage:       "Retries of throttled or failed platform requests (negative disables)",
			Category:    "Sync",
			Value:       restapi.DefaultMaxRetries,
			Sources:     cli.EnvVars("TRIBUTARY_MAX_RETRIES"),
			Destination: &s.maxRetries,
		},
		&cli.StringFlag{
			Name:        "user-agent",
			Usage:       "User-Agent sent to platform APIs",
			Category:    "Sync",
			Value:       "tributary",
			Sources:     cli.EnvVars("TRIBUTARY_USER_AGENT"),
			Destination: &s.userAgent,
		},
	}
}

// WorkerFlags returns the flags of the scheduled worker, used by serve only
func (s *Sync) WorkerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "sync-interval",
			Usage:       "Interval of scheduled sync of all connections (0 disables)",
			Category:    "Sync",
			Sources:     cli.EnvVars("TRIBUTARY_SYNC_INTERVAL"),
			Destination: &s.interval,
		},
		&cli.IntFlag{
			Name:        "sync-concurrency",
			Usage:       "Connections synchronized in parallel by the scheduled worker",
			Category:    "Sync",
			Value:       worker.DefaultConcurrency,
			Sources:     cli.EnvVars("TRIBUTARY_SYNC_CONCURRENCY"),
			Destination: &s.concurrency,
		},
	}
}

// LogValue implements slog.LogValuer
func (s Sync) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("interval", s.interval.String()),
		slog.Int("concurrency", s.concurrency),
		slog.String("timeout", s.timeout.String()),
		slog.String("http_timeout", s.httpTimeout.String()),
		slog.Float64("rate_limit", s.rateLimit),
		slog.Int("rate_burst", s.rateBurst),
		slog.Int("max_retries", s.maxRetries),
	)
}

// Configure builds the use case options: the platform client factory and the run deadline
func (s *Sync) Configure() ([]usecase.Option, error) {
	if s.rateLimit <= 0 {
		return nil, goerr.New("rate-limit must be positive", goerr.V("rate_limit", s.rateLimit))
	}
	if s.interval < 0 {
		return nil, goerr.New("sync-interval must not be negative", goerr.V("interval", s.interval))
	}

	factory := platform.New(
		platform.WithHTTPClient(&http.Client{Timeout: s.httpTimeout}),
		platform.WithRateLimit(s.rateLimit, s.rateBurst),
		platform.WithRetry(s.maxRetries, restapi.DefaultBaseBackoff),
		platform.WithUserAgent(s.userAgent),
	)

	return []usecase.Option{
		usecase.WithPlatformFactory(factory),
		usecase.WithSyncTimeout(s.timeout),
	}, nil
}

// Worker returns the scheduled worker, or nil when scheduling is disabled
func (s *Sync) Worker(syncer worker.Syncer) *worker.SyncWorker {
	if s.interval <= 0 {
		return nil
	}
	return worker.NewSyncWorker(syncer, s.interval, worker.WithConcurrency(s.concurrency))
}
