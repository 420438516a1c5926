package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrNothingToTranslate  = errors.New("job has nothing to translate")
	ErrMappingNotFound     = errors.New("remote mapping not found")
	ErrJobRejected         = errors.New("job rejected by translation service")
	ErrJobAlreadySubmitted = errors.New("job has already been submitted")
	ErrCallbackUnverified  = errors.New("callback does not match the translation service")
)

// Store is the host work-management store plus the mapping store.
type Store interface {
	MappingStore

	GetTranslationJob(ctx context.Context, jobID int64) (*db.Job, error)
	MarkJobSubmitted(ctx context.Context, jobID int64, message string) error
	MarkJobRejected(ctx context.Context, jobID int64, message string) error
	AppendJobMessage(ctx context.Context, jobID int64, level, message string) error
	SetTranslatedText(ctx context.Context, jobID, jobItemID int64, path, text string) error
	ListActiveJobIDs(ctx context.Context) ([]int64, error)
}

// Provider is the remote translation service. *gengo.Client implements it.
type Provider interface {
	SubmitJobs(ctx context.Context, batch *gengo.Batch) (*gengo.SubmitResponse, error)
	Quote(ctx context.Context, batch *gengo.Batch) (json.RawMessage, error)
	GetOrder(ctx context.Context, orderID string) (*gengo.Order, error)
	GetJobs(ctx context.Context, jobIDs []string) ([]gengo.Job, error)
	ApproveJob(ctx context.Context, jobID string, opts gengo.ApproveOptions) error
	ReviseJob(ctx context.Context, jobID, comment string) error
	Languages(ctx context.Context, remoteSource string) ([]gengo.Language, error)
	LanguagePairs(ctx context.Context, remoteSource string) ([]gengo.LanguagePair, error)
}

// Options are the submission settings shared by every job.
type Options struct {
	AutoApprove  bool
	UsePreferred bool
	CallbackURL  string

	// LanguageMap maps local language codes to provider codes.
	LanguageMap map[string]string
}

// SubmitStats reports what a submission did.
type SubmitStats struct {
	Sent               int    `json:"sent"`
	Duplicates         int    `json:"duplicates"`
	Skipped            int    `json:"skipped"`
	Mapped             int    `json:"mapped"`
	Placeholders       int    `json:"placeholders"`
	Translated         int    `json:"translated"`
	Held               int    `json:"held"`
	ProviderDuplicates int    `json:"provider_duplicates"`
	Inconsistent       int    `json:"inconsistent"`
	OrderID            string `json:"order_id,omitempty"`
}

// SubmitResult carries the stats and the provider response as received.
type SubmitResult struct {
	JobID    int64           `json:"job_id"`
	Stats    SubmitStats     `json:"stats"`
	Response json.RawMessage `json:"response,omitempty"`
}

// FetchStats reports what one poll cycle did.
type FetchStats struct {
	Orders       int  `json:"orders"`
	OrdersFailed int  `json:"orders_failed"`
	Waiting      bool `json:"waiting"`
	NewJobs      int  `json:"new_jobs"`
	Records      int  `json:"records"`
	Filled       int  `json:"filled"`
	Created      int  `json:"created"`
	Translated   int  `json:"translated"`
	Inconsistent int  `json:"inconsistent"`
}

func (s *FetchStats) add(other FetchStats) {
	s.Orders += other.Orders
	s.OrdersFailed += other.OrdersFailed
	s.NewJobs += other.NewJobs
	s.Records += other.Records
	s.Filled += other.Filled
	s.Created += other.Created
	s.Translated += other.Translated
	s.Inconsistent += other.Inconsistent
}

// FetchActiveStats aggregates a poll over every active job.
type FetchActiveStats struct {
	Jobs    int        `json:"jobs"`
	Failed  int        `json:"failed"`
	Waiting int        `json:"waiting"`
	Totals  FetchStats `json:"totals"`
}

// Manager reconciles local jobs with the remote translation service.
type Manager struct {
	store     Store
	provider  Provider
	mapper    identityMapper
	languages languageMap
	opts      Options
	logger    zerolog.Logger
}

func NewManager(pool *db.Pool, provider Provider, logger zerolog.Logger, opts Options) *Manager {
	var store Store
	if pool != nil {
		store = pool
	}
	return NewManagerWithStore(store, provider, logger, opts)
}

func NewManagerWithStore(store Store, provider Provider, logger zerolog.Logger, opts Options) *Manager {
	return &Manager{
		store:     store,
		provider:  provider,
		mapper:    identityMapper{store: store},
		languages: newLanguageMap(opts.LanguageMap),
		opts:      opts,
		logger:    logger,
	}
}

func (m *Manager) ready() error {
	if m == nil || m.store == nil || m.provider == nil {
		return fmt.Errorf("translation manager is not initialized")
	}
	return nil
}

func (m *Manager) loadJob(ctx context.Context, jobID int64) (*db.Job, error) {
	job, err := m.store.GetTranslationJob(ctx, jobID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("load job %d: %w", jobID, err)
	}
	return job, nil
}

func (m *Manager) submissionOptions(quoteOnly bool) planOptions {
	return planOptions{
		QuoteOnly:    quoteOnly,
		AutoApprove:  m.opts.AutoApprove,
		UsePreferred: m.opts.UsePreferred,
		CallbackURL:  m.opts.CallbackURL,
		Languages:    m.languages,
	}
}

// addMessage records a job message. Failures are logged, never returned:
// diagnostics must not abort reconciliation.
func (m *Manager) addMessage(ctx context.Context, jobID int64, level, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if err := m.store.AppendJobMessage(ctx, jobID, level, message); err != nil {
		m.logger.Error().Err(err).Int64("job_id", jobID).Str("message", message).Msg("record job message failed")
	}
}
