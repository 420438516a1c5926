package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/httpapi"
	"horse.fit/transync/internal/logging"
	"horse.fit/transync/internal/translation"
)

// activePoller runs one poll cycle over every active job.
type activePoller interface {
	FetchActive(ctx context.Context) (translation.FetchActiveStats, error)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 2*time.Minute, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	pollInterval := fs.Duration("poll-interval", 0, "Poll active jobs this often (0 uses POLL_INTERVAL, negative disables)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "serve does not accept positional arguments")
		return 2
	}
	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cfg.ValidateProvider(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid Gengo configuration: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	manager, err := newManager(cfg, pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid Gengo configuration: %v\n", err)
		return 1
	}

	interval := *pollInterval
	if interval == 0 {
		interval = cfg.PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	srv := httpapi.NewServer(pool, manager, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		CallbackSecret:  cfg.GengoCallbackSecret,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gCtx)
	})
	if interval > 0 {
		g.Go(func() error {
			return runPollLoop(gCtx, manager, interval, logging.Component(logger, "poller"))
		})
	} else {
		logger.Info().Msg("poll loop disabled")
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}

// runPollLoop polls every active job once per interval until ctx is done.
// A cycle that outlasts the interval delays the next one; cycles never overlap.
func runPollLoop(ctx context.Context, poller activePoller, interval time.Duration, logger zerolog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	logger.Info().Dur("interval", interval).Msg("poll loop started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("poll loop stopped")
			return nil
		case <-ticker.C:
			started := time.Now()
			stats, err := poller.FetchActive(ctx)
			if err != nil && ctx.Err() != nil {
				logger.Info().Msg("poll loop stopped")
				return nil
			}

			var event *zerolog.Event
			if err != nil {
				event = logger.Warn().Err(err)
			} else {
				event = logger.Info()
			}
			event.
				Int("jobs", stats.Jobs).
				Int("failed", stats.Failed).
				Int("waiting", stats.Waiting).
				Int("translated", stats.Totals.Translated).
				Dur("took", time.Since(started)).
				Msg("poll cycle finished")
		}
	}
}
