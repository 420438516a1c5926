package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/gengomock"
	"horse.fit/transync/internal/logging"
)

// runMockServe starts the in-memory Gengo emulator. It needs no database.
func runMockServe(args []string) int {
	fs := flag.NewFlagSet("mock-serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "127.0.0.1", "Host interface to bind")
	port := fs.Int("port", 8091, "HTTP port")
	privateKey := fs.String("private-key", "", "Verify request signatures with this key (defaults to GENGO_PRIVATE_KEY)")
	logLevel := fs.String("log-level", "info", "Log level")
	advanceEvery := fs.Duration("advance-every", 0, "Turn queued orders into jobs and finish them this often (0 disables)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "mock-serve does not accept positional arguments")
		return 2
	}
	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}
	if *advanceEvery < 0 {
		fmt.Fprintln(os.Stderr, "--advance-every must not be negative")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	key := *privateKey
	if key == "" {
		key = os.Getenv("GENGO_PRIVATE_KEY")
	}

	logger, err := logging.New(os.Getenv("ENVIRONMENT"), *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	logger = logging.Component(logger, "gengomock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	mock := gengomock.New(gengomock.Options{PrivateKey: key, Logger: logger})
	addr := net.JoinHostPort(*host, strconv.Itoa(*port))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mock.Start(gCtx, addr)
	})
	if *advanceEvery > 0 {
		g.Go(func() error {
			runMockAdvance(gCtx, mock, *advanceEvery, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("mock provider failed")
		fmt.Fprintf(os.Stderr, "Mock provider failed: %v\n", err)
		return 1
	}
	return 0
}

func runMockAdvance(ctx context.Context, mock *gengomock.Server, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			created := mock.Advance()
			completed := mock.CompleteAll()
			if created > 0 || completed > 0 {
				logger.Info().Int("created", created).Int("completed", completed).Msg("mock jobs advanced")
			}
		}
	}
}
