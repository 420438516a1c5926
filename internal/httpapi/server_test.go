package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
	"horse.fit/transync/internal/translation"
)

type fakeStore struct {
	pingErr    error
	jobs       []db.JobSummary
	mappings   map[int64][]db.RemoteMapping
	messages   map[int64][]db.JobMessage
	listStates []string
}

func (s *fakeStore) Ping(_ context.Context) error { return s.pingErr }

func (s *fakeStore) ListJobs(_ context.Context, state string, limit int) ([]db.JobSummary, error) {
	s.listStates = append(s.listStates, state)
	out := make([]db.JobSummary, 0, len(s.jobs))
	for _, job := range s.jobs {
		if state != "" && job.State != state {
			continue
		}
		out = append(out, job)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ListRemoteMappingsByJob(_ context.Context, jobID int64) ([]db.RemoteMapping, error) {
	return s.mappings[jobID], nil
}

func (s *fakeStore) ListJobMessages(_ context.Context, jobID int64) ([]db.JobMessage, error) {
	return s.messages[jobID], nil
}

type fakeEngine struct {
	submitErr   error
	submitCalls []int64
	fetchStats  translation.FetchStats
	fetchErr    error
	callbacks   []gengo.Job
	callbackErr error
}

func (e *fakeEngine) Submit(_ context.Context, jobID int64) (translation.SubmitResult, error) {
	e.submitCalls = append(e.submitCalls, jobID)
	if e.submitErr != nil {
		return translation.SubmitResult{}, e.submitErr
	}
	return translation.SubmitResult{JobID: jobID, Stats: translation.SubmitStats{Sent: 2, Duplicates: 1}}, nil
}

func (e *fakeEngine) Fetch(_ context.Context, _ int64) (translation.FetchStats, error) {
	return e.fetchStats, e.fetchErr
}

func (e *fakeEngine) HandleCallback(_ context.Context, record gengo.Job) (translation.CallbackResult, error) {
	e.callbacks = append(e.callbacks, record)
	if e.callbackErr != nil {
		return translation.CallbackResult{}, e.callbackErr
	}
	return translation.CallbackResult{JobID: 7, Key: "1][p0", Mapped: true, Translated: 1}, nil
}

func newTestServer(store *fakeStore, engine *fakeEngine) http.Handler {
	return NewServer(store, engine, zerolog.Nop(), Options{}).Handler()
}

type testEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	handler := newTestServer(&fakeStore{}, &fakeEngine{})
	rec, env := serve(t, handler, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}

	handler = newTestServer(&fakeStore{pingErr: errors.New("down")}, &fakeEngine{})
	rec, env = serve(t, handler, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable || env.Status != "error" {
		t.Fatalf("unexpected unhealthy response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleJobsFiltersByState(t *testing.T) {
	t.Parallel()

	store := &fakeStore{jobs: []db.JobSummary{
		{JobID: 1, State: db.JobStateActive, SourceLang: "en", TargetLang: "de"},
		{JobID: 2, State: db.JobStateRejected, SourceLang: "en", TargetLang: "fr"},
	}}
	handler := newTestServer(store, &fakeEngine{})

	rec, env := serve(t, handler, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?state=Active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	var data struct {
		Items []jobListItem `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Items) != 1 || data.Items[0].JobID != 1 {
		t.Fatalf("unexpected items: %+v", data.Items)
	}

	rec, _ = serve(t, handler, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?state=done", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad state: got %d want %d", rec.Code, http.StatusBadRequest)
	}
	rec, _ = serve(t, handler, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for bad limit: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSubmitMapsErrors(t *testing.T) {
	t.Parallel()

	rejected := fmt.Errorf("%w: %w", translation.ErrJobRejected, &gengo.Error{Code: 1100})
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{translation.ErrJobNotFound, http.StatusNotFound},
		{translation.ErrNothingToTranslate, http.StatusUnprocessableEntity},
		{translation.ErrJobAlreadySubmitted, http.StatusConflict},
		{rejected, http.StatusBadGateway},
		{errors.New("database is gone"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		submitErr, want := tc.err, tc.want
		engine := &fakeEngine{submitErr: submitErr}
		handler := newTestServer(&fakeStore{}, engine)

		rec, _ := serve(t, handler, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/7/submit", nil))
		if rec.Code != want {
			t.Fatalf("submit error %v: got status %d want %d", submitErr, rec.Code, want)
		}
		if len(engine.submitCalls) != 1 || engine.submitCalls[0] != 7 {
			t.Fatalf("unexpected submit calls: %v", engine.submitCalls)
		}
	}
}

func TestHandleSubmitRejectsBadJobID(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	handler := newTestServer(&fakeStore{}, engine)
	for _, id := range []string{"0", "-3", "abc"} {
		rec, _ := serve(t, handler, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+id+"/submit", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("job id %q: got status %d want %d", id, rec.Code, http.StatusBadRequest)
		}
	}
	if len(engine.submitCalls) != 0 {
		t.Fatalf("invalid ids must not reach the engine")
	}
}

func TestHandleFetchReturnsStats(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{fetchStats: translation.FetchStats{Orders: 1, Filled: 2, Translated: 3}}
	handler := newTestServer(&fakeStore{}, engine)

	rec, env := serve(t, handler, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/7/fetch", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	var stats translation.FetchStats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Filled != 2 || stats.Translated != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHandleMappingsMarksPlaceholders(t *testing.T) {
	t.Parallel()

	store := &fakeStore{mappings: map[int64][]db.RemoteMapping{
		7: {
			{JobID: 7, JobItemID: 1, DataItemPath: "p0", RemoteOrderID: "55", RemoteData: db.RemoteData{Duplicates: []string{"1][p2"}}},
			{JobID: 7, JobItemID: 1, DataItemPath: "p1", RemoteOrderID: "55", RemoteJobID: "100"},
		},
	}}
	handler := newTestServer(store, &fakeEngine{})

	_, env := serve(t, handler, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/7/mappings", nil))
	var data struct {
		Items []mappingItem `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Items) != 2 {
		t.Fatalf("unexpected mapping count: got %d want 2", len(data.Items))
	}
	if !data.Items[0].Placeholder || data.Items[1].Placeholder {
		t.Fatalf("unexpected placeholder flags: %+v", data.Items)
	}
	if len(data.Items[0].Duplicates) != 1 {
		t.Fatalf("expected duplicates on first mapping: %+v", data.Items[0])
	}
}

func TestHandleCallback(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	handler := newTestServer(&fakeStore{}, engine)

	form := url.Values{}
	form.Set("job", `{"job_id":100,"status":"reviewable","body_tgt":"Hallo","custom_data":"7][1][p0"}`)
	req := httptest.NewRequest(http.MethodPost, "/gengo/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec, _ := serve(t, handler, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(engine.callbacks) != 1 {
		t.Fatalf("unexpected callback count: got %d want 1", len(engine.callbacks))
	}
	got := engine.callbacks[0]
	if got.JobID != "100" || got.CustomData != "7][1][p0" || got.BodyTgt == nil || *got.BodyTgt != "Hallo" {
		t.Fatalf("unexpected decoded record: %+v", got)
	}
}

func TestHandleCallbackErrors(t *testing.T) {
	t.Parallel()

	post := func(handler http.Handler, body string) *httptest.ResponseRecorder {
		form := url.Values{}
		if body != "" {
			form.Set("job", body)
		}
		req := httptest.NewRequest(http.MethodPost, "/gengo/callback", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec, _ := serve(t, handler, req)
		return rec
	}

	handler := newTestServer(&fakeStore{}, &fakeEngine{})
	if rec := post(handler, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing job: got %d want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := post(handler, "{not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: got %d want %d", rec.Code, http.StatusBadRequest)
	}

	handler = newTestServer(&fakeStore{}, &fakeEngine{callbackErr: fmt.Errorf("%w: %q", translation.ErrMalformedToken, "x")})
	if rec := post(handler, `{"custom_data":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed token: got %d want %d", rec.Code, http.StatusBadRequest)
	}

	handler = newTestServer(&fakeStore{}, &fakeEngine{callbackErr: translation.ErrJobNotFound})
	if rec := post(handler, `{"custom_data":"9][1][p0"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: got %d want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleCallbackRejectsForgedRequests(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	handler := NewServer(&fakeStore{}, engine, zerolog.Nop(), Options{CallbackSecret: "s3cret"}).Handler()

	post := func(target string) *httptest.ResponseRecorder {
		form := url.Values{}
		form.Set("job", `{"job_id":100,"status":"approved","body_tgt":"forged","custom_data":"7][1][p0"}`)
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec, _ := serve(t, handler, req)
		return rec
	}

	for _, target := range []string{"/gengo/callback", "/gengo/callback?secret=guess"} {
		if rec := post(target); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: got %d want %d", target, rec.Code, http.StatusForbidden)
		}
	}
	if len(engine.callbacks) != 0 {
		t.Fatalf("forged callbacks reached the engine: %d", len(engine.callbacks))
	}

	if rec := post("/gengo/callback?secret=s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("valid secret: got %d want %d", rec.Code, http.StatusOK)
	}
	if len(engine.callbacks) != 1 {
		t.Fatalf("unexpected callback count: got %d want 1", len(engine.callbacks))
	}

	unverified := &fakeEngine{callbackErr: fmt.Errorf("%w: remote job 100 belongs to %q", translation.ErrCallbackUnverified, "7][1][p1")}
	handler = newTestServer(&fakeStore{}, unverified)
	if rec := post("/gengo/callback"); rec.Code != http.StatusForbidden {
		t.Fatalf("unverified record: got %d want %d", rec.Code, http.StatusForbidden)
	}
}
