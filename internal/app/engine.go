package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/config"
	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
	"horse.fit/transync/internal/logging"
	"horse.fit/transync/internal/translation"
)

// engineRuntime bundles what the reconciliation commands need.
type engineRuntime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *db.Pool
	manager *translation.Manager
}

func (r *engineRuntime) Close() {
	if r != nil && r.pool != nil {
		_ = r.pool.Close()
	}
}

func newGengoClient(cfg *config.Config, logger zerolog.Logger) *gengo.Client {
	return gengo.NewClient(gengo.Options{
		PublicKey:  cfg.GengoPublicKey,
		PrivateKey: cfg.GengoPrivateKey,
		UseSandbox: cfg.GengoUseSandbox,
		BaseURL:    cfg.GengoMockURL,
		Debug:      cfg.GengoDebug,
		Timeout:    cfg.GengoTimeout,
		Logger:     logging.Component(logger, "gengo"),
	})
}

func newManager(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*translation.Manager, error) {
	languageMap, err := cfg.LanguageMap()
	if err != nil {
		return nil, err
	}
	callbackURL, err := cfg.CallbackURL()
	if err != nil {
		return nil, err
	}
	return translation.NewManager(pool, newGengoClient(cfg, logger), logging.Component(logger, "translation"), translation.Options{
		AutoApprove:  cfg.GengoAutoApprove,
		UsePreferred: cfg.GengoUsePreferred,
		CallbackURL:  callbackURL,
		LanguageMap:  languageMap,
	}), nil
}

// connectEngine loads config, checks provider credentials, connects to the
// database and builds the translation manager.
func connectEngine(timeout time.Duration, envLoader *cli.EnvLoader) (context.Context, context.CancelFunc, *engineRuntime, error) {
	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.ValidateProvider(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid Gengo configuration: %w", err)
	}

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		cancel()
		logger.Error().Err(err).Msg("connect to database failed")
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	manager, err := newManager(cfg, pool, logger)
	if err != nil {
		cancel()
		_ = pool.Close()
		return nil, nil, nil, fmt.Errorf("invalid Gengo configuration: %w", err)
	}

	return ctx, cancel, &engineRuntime{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		manager: manager,
	}, nil
}

// describeEngineError turns engine errors into one line for the terminal.
func describeEngineError(err error, jobID int64) string {
	switch {
	case errors.Is(err, translation.ErrJobNotFound):
		return fmt.Sprintf("Job not found: %d", jobID)
	case errors.Is(err, translation.ErrNothingToTranslate):
		return fmt.Sprintf("Job %d has nothing to translate", jobID)
	case errors.Is(err, translation.ErrJobAlreadySubmitted):
		return fmt.Sprintf("Job %d has already been submitted; use fetch to poll it", jobID)
	case errors.Is(err, translation.ErrMappingNotFound):
		return fmt.Sprintf("No remote job is mapped yet: %v", err)
	}
	return err.Error()
}
