package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
	"horse.fit/transync/internal/globaltime"
	"horse.fit/transync/internal/translation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store is the read side the API exposes. *db.Pool implements it.
type Store interface {
	Ping(ctx context.Context) error
	ListJobs(ctx context.Context, state string, limit int) ([]db.JobSummary, error)
	ListRemoteMappingsByJob(ctx context.Context, jobID int64) ([]db.RemoteMapping, error)
	ListJobMessages(ctx context.Context, jobID int64) ([]db.JobMessage, error)
}

// Engine runs reconciliation. *translation.Manager implements it.
type Engine interface {
	Submit(ctx context.Context, jobID int64) (translation.SubmitResult, error)
	Fetch(ctx context.Context, jobID int64) (translation.FetchStats, error)
	HandleCallback(ctx context.Context, record gengo.Job) (translation.CallbackResult, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// CallbackSecret, when set, must match the "secret" query parameter of
	// every provider callback.
	CallbackSecret string
}

type Server struct {
	store  Store
	engine Engine
	logger zerolog.Logger
	opts   Options
}

type jobListItem struct {
	JobID           int64  `json:"job_id"`
	JobUUID         string `json:"job_uuid"`
	Label           string `json:"label,omitempty"`
	SourceLang      string `json:"source_lang"`
	TargetLang      string `json:"target_lang"`
	Tier            string `json:"tier"`
	State           string `json:"state"`
	ItemCount       int64  `json:"item_count"`
	DataItemCount   int64  `json:"data_item_count"`
	TranslatedCount int64  `json:"translated_count"`
}

type mappingItem struct {
	RemoteMappingUUID string    `json:"remote_mapping_uuid"`
	JobItemID         int64     `json:"job_item_id"`
	DataItemPath      string    `json:"data_item_path"`
	RemoteOrderID     string    `json:"remote_order_id,omitempty"`
	RemoteJobID       string    `json:"remote_job_id,omitempty"`
	Placeholder       bool      `json:"placeholder"`
	WordCount         int64     `json:"word_count"`
	Credits           float64   `json:"credits,omitempty"`
	Tier              string    `json:"tier,omitempty"`
	Duplicates        []string  `json:"duplicates,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type messageItem struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewServer(store Store, engine Engine, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:  store,
		engine: engine,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			CallbackSecret:  strings.TrimSpace(opts.CallbackSecret),
		},
	}
}

// Handler builds the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/jobs", s.handleJobs)
	api.POST("/jobs/:job_id/submit", s.handleSubmit)
	api.POST("/jobs/:job_id/fetch", s.handleFetch)
	api.GET("/jobs/:job_id/mappings", s.handleMappings)
	api.GET("/jobs/:job_id/messages", s.handleMessages)

	e.POST("/gengo/callback", s.handleCallback)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil || s.engine == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.routes()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("transync api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("transync api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		return errorWithStatus(c, http.StatusServiceUnavailable, "Database unavailable")
	}
	return success(c, map[string]any{
		"service": "transync",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleJobs(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	state := strings.TrimSpace(strings.ToLower(c.QueryParam("state")))
	switch state {
	case "", db.JobStateUnprocessed, db.JobStateActive, db.JobStateRejected:
	default:
		return failValidation(c, map[string]string{"state": "must be unprocessed, active or rejected"})
	}

	rows, err := s.store.ListJobs(c.Request().Context(), state, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs failed")
		return internalError(c, "Failed to load jobs")
	}

	items := make([]jobListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, jobListItem{
			JobID:           row.JobID,
			JobUUID:         row.JobUUID,
			Label:           row.Label,
			SourceLang:      row.SourceLang,
			TargetLang:      row.TargetLang,
			Tier:            row.Tier,
			State:           row.State,
			ItemCount:       row.ItemCount,
			DataItemCount:   row.DataItemCount,
			TranslatedCount: row.TranslatedCount,
		})
	}
	return success(c, map[string]any{
		"items": items,
		"state": state,
		"limit": limit,
	})
}

func (s *Server) handleSubmit(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return failValidation(c, map[string]string{"job_id": err.Error()})
	}

	result, err := s.engine.Submit(c.Request().Context(), jobID)
	if err != nil {
		return s.engineError(c, jobID, "submit", err)
	}
	return success(c, result)
}

func (s *Server) handleFetch(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return failValidation(c, map[string]string{"job_id": err.Error()})
	}

	stats, err := s.engine.Fetch(c.Request().Context(), jobID)
	if err != nil {
		return s.engineError(c, jobID, "fetch", err)
	}
	return success(c, stats)
}

func (s *Server) handleMappings(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return failValidation(c, map[string]string{"job_id": err.Error()})
	}

	rows, err := s.store.ListRemoteMappingsByJob(c.Request().Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("list remote mappings failed")
		return internalError(c, "Failed to load remote mappings")
	}

	items := make([]mappingItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, mappingItem{
			RemoteMappingUUID: row.RemoteMappingUUID,
			JobItemID:         row.JobItemID,
			DataItemPath:      row.DataItemPath,
			RemoteOrderID:     row.RemoteOrderID,
			RemoteJobID:       row.RemoteJobID,
			Placeholder:       row.IsPlaceholder(),
			WordCount:         row.WordCount,
			Credits:           row.RemoteData.Credits,
			Tier:              row.RemoteData.Tier,
			Duplicates:        row.RemoteData.Duplicates,
			UpdatedAt:         row.UpdatedAt,
		})
	}
	return success(c, map[string]any{
		"job_id": jobID,
		"items":  items,
	})
}

func (s *Server) handleMessages(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return failValidation(c, map[string]string{"job_id": err.Error()})
	}

	rows, err := s.store.ListJobMessages(c.Request().Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("list job messages failed")
		return internalError(c, "Failed to load job messages")
	}

	items := make([]messageItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, messageItem{
			Level:     row.Level,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
		})
	}
	return success(c, map[string]any{
		"job_id": jobID,
		"items":  items,
	})
}

func (s *Server) engineError(c echo.Context, jobID int64, op string, err error) error {
	switch {
	case errors.Is(err, translation.ErrJobNotFound):
		return failNotFound(c, "Job not found")
	case errors.Is(err, translation.ErrNothingToTranslate):
		return fail(c, http.StatusUnprocessableEntity, "Job has nothing to translate", nil)
	case errors.Is(err, translation.ErrJobAlreadySubmitted):
		return failConflict(c, "Job has already been submitted")
	case errors.Is(err, translation.ErrJobRejected), gengo.IsProviderError(err):
		s.logger.Warn().Err(err).Int64("job_id", jobID).Str("op", op).Msg("translation service refused request")
		return errorWithStatus(c, http.StatusBadGateway, err.Error())
	}
	s.logger.Error().Err(err).Int64("job_id", jobID).Str("op", op).Msg("job operation failed")
	return internalError(c, fmt.Sprintf("Failed to %s job", op))
}

func parseJobID(c echo.Context) (int64, error) {
	raw := strings.TrimSpace(c.Param("job_id"))
	if raw == "" {
		return 0, fmt.Errorf("is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return id, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
