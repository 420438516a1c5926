// Package gengomock emulates the subset of the Gengo v2 API that transync
// talks to. It backs the mock-service mode and the integration tests.
package gengomock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/transync/internal/gengo"
)

// MachineTier is served synchronously: jobs come back finished, without a job id.
const MachineTier = "machine"

const (
	errCodeAuth       = 1100
	errCodeBadRequest = 1150
	errCodeNotFound   = 2400
)

// Options configure the emulator.
type Options struct {
	// PrivateKey enables signature checks when set.
	PrivateKey string
	Logger     zerolog.Logger
}

// Server keeps every order and job in memory.
type Server struct {
	mu         sync.Mutex
	privateKey string
	logger     zerolog.Logger
	nextOrder  int64
	nextJob    int64
	orders     map[string]*mockOrder
	jobs       map[string]*gengo.Job
	echo       *echo.Echo
}

type mockOrder struct {
	id     string
	queued []gengo.JobRequest
	jobIDs []string
}

func New(opts Options) *Server {
	s := &Server{
		privateKey: strings.TrimSpace(opts.PrivateKey),
		logger:     opts.Logger,
		nextOrder:  1000,
		nextJob:    5000,
		orders:     map[string]*mockOrder{},
		jobs:       map[string]*gengo.Job{},
	}
	s.echo = s.routes()
	return s
}

// Handler exposes the emulator for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("mock provider shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("mock provider started")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start mock provider: %w", err)
	}
	s.logger.Info().Msg("mock provider stopped")
	return nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api := e.Group("/"+gengo.APIVersion, s.verifySignature)
	api.POST("/translate/jobs", s.handleSubmit)
	api.POST("/translate/service/quote", s.handleQuote)
	api.GET("/translate/order/:order_id", s.handleOrder)
	api.GET("/translate/jobs/:job_ids", s.handleJobs)
	api.PUT("/translate/job/:job_id", s.handleJobAction)
	api.GET("/translate/service/languages", s.handleLanguages)
	api.GET("/translate/service/language_pairs", s.handleLanguagePairs)
	return e
}

// Advance expands every queued order into available jobs and returns how many
// jobs were created.
func (s *Server) Advance() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, id := range s.sortedOrderIDs() {
		order := s.orders[id]
		for _, req := range order.queued {
			job := s.newJobLocked(req, gengo.StatusAvailable)
			job.OrderID = gengo.ID(order.id)
			order.jobIDs = append(order.jobIDs, string(job.JobID))
			created++
		}
		order.queued = nil
	}
	return created
}

// CompleteAll moves every available or pending job to reviewable with a
// machine-made target text, and returns how many changed.
func (s *Server) CompleteAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, job := range s.jobs {
		if job.Status != gengo.StatusAvailable && job.Status != gengo.StatusPending {
			continue
		}
		body := fakeTranslation(job.LcTgt, job.BodySrc)
		job.BodyTgt = &body
		job.Status = gengo.StatusReviewable
		changed++
	}
	return changed
}

// Job returns a copy of a stored job.
func (s *Server) Job(id string) (gengo.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return gengo.Job{}, false
	}
	return *job, true
}

func (s *Server) verifySignature(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.privateKey == "" {
			return next(c)
		}
		ts := strings.TrimSpace(c.FormValue("ts"))
		sig := strings.TrimSpace(c.FormValue("api_sig"))
		if ts == "" || sig == "" || gengo.Sign(s.privateKey, ts) != sig {
			return providerError(c, errCodeAuth, "authentication failed")
		}
		return next(c)
	}
}

type submitPayload struct {
	Jobs    gengo.RawJobEntries `json:"jobs"`
	AsGroup int                 `json:"as_group"`
}

func decodeSubmitPayload(c echo.Context) ([]gengo.JobRequest, error) {
	var payload submitPayload
	if err := json.Unmarshal([]byte(c.FormValue("data")), &payload); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	out := make([]gengo.JobRequest, 0, len(payload.Jobs))
	for _, entry := range payload.Jobs {
		var req gengo.JobRequest
		if err := json.Unmarshal(entry.Raw, &req); err != nil {
			return nil, fmt.Errorf("decode job %q: %w", entry.Key, err)
		}
		if req.CustomData == "" {
			req.CustomData = entry.Key
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *Server) handleSubmit(c echo.Context) error {
	requests, err := decodeSubmitPayload(c)
	if err != nil {
		return providerError(c, errCodeBadRequest, err.Error())
	}
	if len(requests) == 0 {
		return providerError(c, errCodeBadRequest, "no jobs submitted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if allMachine(requests) {
		jobs := make([]gengo.Job, 0, len(requests))
		for _, req := range requests {
			body := fakeTranslation(req.LcTgt, req.BodySrc)
			jobs = append(jobs, gengo.Job{
				JobID:      gengo.NullJobID,
				Status:     gengo.StatusApproved,
				Slug:       req.Slug,
				BodySrc:    req.BodySrc,
				BodyTgt:    &body,
				LcSrc:      req.LcSrc,
				LcTgt:      req.LcTgt,
				Tier:       req.Tier,
				UnitCount:  gengo.FlexInt(wordCount(req.BodySrc)),
				Currency:   "USD",
				CustomData: req.CustomData,
			})
		}
		return ok(c, map[string]any{"jobs": jobs})
	}

	s.nextOrder++
	order := &mockOrder{id: strconv.FormatInt(s.nextOrder, 10), queued: requests}
	s.orders[order.id] = order

	credits := 0.0
	for _, req := range requests {
		credits += creditsFor(req)
	}
	return ok(c, map[string]any{
		"order_id":     order.id,
		"job_count":    len(requests),
		"credits_used": fmt.Sprintf("%.2f", credits),
		"currency":     "USD",
	})
}

func (s *Server) handleQuote(c echo.Context) error {
	requests, err := decodeSubmitPayload(c)
	if err != nil {
		return providerError(c, errCodeBadRequest, err.Error())
	}
	quotes := map[string]any{}
	for _, req := range requests {
		quotes[req.CustomData] = map[string]any{
			"unit_count": wordCount(req.BodySrc),
			"credits":    creditsFor(req),
			"currency":   "USD",
			"eta":        3600,
		}
	}
	return ok(c, map[string]any{"jobs": quotes})
}

func (s *Server) handleOrder(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[c.Param("order_id")]
	if !exists {
		return providerError(c, errCodeNotFound, "order not found")
	}

	buckets := map[string][]string{}
	for _, id := range order.jobIDs {
		job := s.jobs[id]
		buckets[job.Status] = append(buckets[job.Status], id)
	}
	total := len(order.queued) + len(order.jobIDs)
	return ok(c, map[string]any{
		"order": map[string]any{
			"order_id":        order.id,
			"total_jobs":      strconv.Itoa(total),
			"jobs_queued":     strconv.Itoa(len(order.queued)),
			"jobs_available":  nonNil(buckets[gengo.StatusAvailable]),
			"jobs_pending":    nonNil(buckets[gengo.StatusPending]),
			"jobs_reviewable": nonNil(buckets[gengo.StatusReviewable]),
			"jobs_approved":   nonNil(buckets[gengo.StatusApproved]),
			"jobs_revising":   nonNil(buckets[gengo.StatusRevising]),
			"currency":        "USD",
		},
	})
}

func (s *Server) handleJobs(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]gengo.Job, 0, 8)
	for _, id := range strings.Split(c.Param("job_ids"), ",") {
		if job, exists := s.jobs[strings.TrimSpace(id)]; exists {
			jobs = append(jobs, *job)
		}
	}
	return ok(c, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobAction(c echo.Context) error {
	var payload struct {
		Action  string `json:"action"`
		Comment string `json:"comment"`
	}
	if err := json.Unmarshal([]byte(c.FormValue("data")), &payload); err != nil {
		return providerError(c, errCodeBadRequest, fmt.Sprintf("decode data: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[c.Param("job_id")]
	if !exists {
		return providerError(c, errCodeNotFound, "job not found")
	}

	switch payload.Action {
	case "approve":
		if job.Status != gengo.StatusReviewable {
			return providerError(c, errCodeBadRequest, "job is not reviewable")
		}
		job.Status = gengo.StatusApproved
	case "revise":
		if strings.TrimSpace(payload.Comment) == "" {
			return providerError(c, errCodeBadRequest, "revise requires a comment")
		}
		job.Status = gengo.StatusRevising
	default:
		return providerError(c, errCodeBadRequest, fmt.Sprintf("unsupported action %q", payload.Action))
	}
	return ok(c, map[string]any{})
}

var mockLanguages = []gengo.Language{
	{Code: "de", Language: "German", LocalizedName: "Deutsch", UnitType: "word"},
	{Code: "en", Language: "English", LocalizedName: "English", UnitType: "word"},
	{Code: "ja", Language: "Japanese", LocalizedName: "日本語", UnitType: "character"},
	{Code: "zh", Language: "Chinese (Simplified)", LocalizedName: "中文", UnitType: "character"},
	{Code: "zh-tw", Language: "Chinese (Traditional)", LocalizedName: "繁體中文", UnitType: "character"},
}

func (s *Server) handleLanguages(c echo.Context) error {
	source := strings.TrimSpace(c.QueryParam("lc_src"))
	out := make([]gengo.Language, 0, len(mockLanguages))
	for _, lang := range mockLanguages {
		if lang.Code == source {
			continue
		}
		out = append(out, lang)
	}
	return ok(c, out)
}

func (s *Server) handleLanguagePairs(c echo.Context) error {
	source := strings.TrimSpace(c.QueryParam("lc_src"))
	pairs := make([]map[string]any, 0, 16)
	for _, src := range mockLanguages {
		if source != "" && src.Code != source {
			continue
		}
		for _, tgt := range mockLanguages {
			if src.Code == tgt.Code {
				continue
			}
			for _, tier := range []string{"standard", "pro"} {
				pairs = append(pairs, map[string]any{
					"lc_src":     src.Code,
					"lc_tgt":     tgt.Code,
					"tier":       tier,
					"unit_price": tierPrice(tier),
					"currency":   "USD",
				})
			}
		}
	}
	return ok(c, pairs)
}

func (s *Server) newJobLocked(req gengo.JobRequest, status string) *gengo.Job {
	s.nextJob++
	job := &gengo.Job{
		JobID:      gengo.ID(strconv.FormatInt(s.nextJob, 10)),
		Status:     status,
		Slug:       req.Slug,
		BodySrc:    req.BodySrc,
		LcSrc:      req.LcSrc,
		LcTgt:      req.LcTgt,
		Tier:       req.Tier,
		UnitCount:  gengo.FlexInt(wordCount(req.BodySrc)),
		Credits:    gengo.FlexFloat(creditsFor(req)),
		Currency:   "USD",
		CustomData: req.CustomData,
	}
	s.jobs[string(job.JobID)] = job
	return job
}

func (s *Server) sortedOrderIDs() []string {
	ids := make([]string, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func ok(c echo.Context, response any) error {
	return c.JSON(http.StatusOK, map[string]any{
		"opstat":   "ok",
		"response": response,
	})
}

func providerError(c echo.Context, code int, message string) error {
	return c.JSON(http.StatusOK, map[string]any{
		"opstat": "error",
		"err": map[string]any{
			"code": code,
			"msg":  message,
		},
	})
}

func allMachine(requests []gengo.JobRequest) bool {
	for _, req := range requests {
		if !strings.EqualFold(strings.TrimSpace(req.Tier), MachineTier) {
			return false
		}
	}
	return true
}

func fakeTranslation(targetLang, source string) string {
	return "[" + targetLang + "] " + source
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func tierPrice(tier string) float64 {
	switch tier {
	case MachineTier:
		return 0
	case "pro":
		return 0.15
	default:
		return 0.06
	}
}

func creditsFor(req gengo.JobRequest) float64 {
	return float64(wordCount(req.BodySrc)) * tierPrice(req.Tier)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
