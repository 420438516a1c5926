package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

type fakeStore struct {
	jobs          map[int64]*db.Job
	messages      []db.JobMessage
	mappings      []db.RemoteMapping
	nextMappingID int64
	translations  map[string]string
	writes        map[string]int
	createCalls   int
	updateCalls   int
	activeErr     error
	createErr     error
}

func newFakeStore(jobs ...*db.Job) *fakeStore {
	s := &fakeStore{
		jobs:         map[int64]*db.Job{},
		translations: map[string]string{},
		writes:       map[string]int{},
	}
	for _, job := range jobs {
		s.jobs[job.JobID] = job
	}
	return s
}

func (s *fakeStore) GetTranslationJob(_ context.Context, jobID int64) (*db.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, db.ErrNoRows
	}
	return job, nil
}

func (s *fakeStore) MarkJobSubmitted(_ context.Context, jobID int64, message string) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return db.ErrNoRows
	}
	job.State = db.JobStateActive
	s.messages = append(s.messages, db.JobMessage{JobID: jobID, Level: db.MessageLevelStatus, Message: message})
	return nil
}

func (s *fakeStore) MarkJobRejected(_ context.Context, jobID int64, message string) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return db.ErrNoRows
	}
	job.State = db.JobStateRejected
	s.messages = append(s.messages, db.JobMessage{JobID: jobID, Level: db.MessageLevelError, Message: message})
	return nil
}

func (s *fakeStore) AppendJobMessage(_ context.Context, jobID int64, level, message string) error {
	s.messages = append(s.messages, db.JobMessage{JobID: jobID, Level: level, Message: message})
	return nil
}

func (s *fakeStore) SetTranslatedText(_ context.Context, jobID, jobItemID int64, path, text string) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return db.ErrNoRows
	}
	for _, item := range job.Items {
		if item.JobItemID != jobItemID {
			continue
		}
		for _, data := range item.DataItems {
			if data.Path == path {
				key := NewToken(jobID, jobItemID, path).String()
				s.translations[key] = text
				s.writes[key]++
				return nil
			}
		}
	}
	return db.ErrNoRows
}

func (s *fakeStore) ListActiveJobIDs(_ context.Context) ([]int64, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	ids := make([]int64, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.State == db.JobStateActive {
			ids = append(ids, id)
		}
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids, nil
}

func (s *fakeStore) FindRemoteMapping(_ context.Context, jobID, jobItemID int64, path string) (db.RemoteMapping, error) {
	for _, mapping := range s.mappings {
		if mapping.JobID == jobID && mapping.JobItemID == jobItemID && mapping.DataItemPath == path {
			return mapping, nil
		}
	}
	return db.RemoteMapping{}, db.ErrNoRows
}

func (s *fakeStore) ListRemoteMappingsByJob(_ context.Context, jobID int64) ([]db.RemoteMapping, error) {
	out := make([]db.RemoteMapping, 0, len(s.mappings))
	for _, mapping := range s.mappings {
		if mapping.JobID == jobID {
			out = append(out, mapping)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateRemoteMapping(_ context.Context, mapping *db.RemoteMapping) error {
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	s.nextMappingID++
	mapping.RemoteMappingID = s.nextMappingID
	s.mappings = append(s.mappings, *mapping)
	return nil
}

func (s *fakeStore) UpdateRemoteMapping(_ context.Context, mappingID int64, mutate func(*db.RemoteMapping) error) (db.RemoteMapping, error) {
	s.updateCalls++
	for idx := range s.mappings {
		if s.mappings[idx].RemoteMappingID != mappingID {
			continue
		}
		current := s.mappings[idx]
		if err := mutate(&current); err != nil {
			return db.RemoteMapping{}, err
		}
		s.mappings[idx] = current
		return current, nil
	}
	return db.RemoteMapping{}, db.ErrNoRows
}

func (s *fakeStore) messagesAt(level string) []string {
	out := make([]string, 0, len(s.messages))
	for _, message := range s.messages {
		if message.Level == level {
			out = append(out, message.Message)
		}
	}
	return out
}

type fakeProvider struct {
	submitResp *gengo.SubmitResponse
	submitErr  error
	submitted  []*gengo.Batch

	quoteResp json.RawMessage
	quoted    []*gengo.Batch

	orders     map[string]*gengo.Order
	orderErrs  map[string]error
	orderCalls []string

	jobs         map[string]gengo.Job
	jobErrs      map[string]error
	getJobsErr   error
	getJobsCalls [][]string

	approved []string
	revised  []string

	languages []gengo.Language
	pairs     []gengo.LanguagePair
	langCalls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		orders:    map[string]*gengo.Order{},
		orderErrs: map[string]error{},
		jobs:      map[string]gengo.Job{},
		jobErrs:   map[string]error{},
	}
}

func (p *fakeProvider) SubmitJobs(_ context.Context, batch *gengo.Batch) (*gengo.SubmitResponse, error) {
	p.submitted = append(p.submitted, batch)
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return p.submitResp, nil
}

func (p *fakeProvider) Quote(_ context.Context, batch *gengo.Batch) (json.RawMessage, error) {
	p.quoted = append(p.quoted, batch)
	return p.quoteResp, nil
}

func (p *fakeProvider) GetOrder(_ context.Context, orderID string) (*gengo.Order, error) {
	p.orderCalls = append(p.orderCalls, orderID)
	if err := p.orderErrs[orderID]; err != nil {
		return nil, err
	}
	order, ok := p.orders[orderID]
	if !ok {
		return nil, &gengo.Error{Op: "get order", Code: 2400, Message: "order not found"}
	}
	return order, nil
}

func (p *fakeProvider) GetJobs(_ context.Context, jobIDs []string) ([]gengo.Job, error) {
	p.getJobsCalls = append(p.getJobsCalls, append([]string(nil), jobIDs...))
	if p.getJobsErr != nil {
		return nil, p.getJobsErr
	}
	for _, id := range jobIDs {
		if err := p.jobErrs[id]; err != nil {
			return nil, err
		}
	}
	out := make([]gengo.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		if job, ok := p.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (p *fakeProvider) ApproveJob(_ context.Context, jobID string, _ gengo.ApproveOptions) error {
	p.approved = append(p.approved, jobID)
	return nil
}

func (p *fakeProvider) ReviseJob(_ context.Context, jobID, _ string) error {
	p.revised = append(p.revised, jobID)
	return nil
}

func (p *fakeProvider) Languages(_ context.Context, remoteSource string) ([]gengo.Language, error) {
	p.langCalls = append(p.langCalls, remoteSource)
	return append([]gengo.Language(nil), p.languages...), nil
}

func (p *fakeProvider) LanguagePairs(_ context.Context, remoteSource string) ([]gengo.LanguagePair, error) {
	p.langCalls = append(p.langCalls, remoteSource)
	return append([]gengo.LanguagePair(nil), p.pairs...), nil
}

func newTestManager(store *fakeStore, provider *fakeProvider) *Manager {
	return NewManagerWithStore(store, provider, zerolog.Nop(), Options{
		CallbackURL: "https://example.test/gengo/callback",
		LanguageMap: map[string]string{"zh-hans": "zh", "zh-hant": "zh-tw"},
	})
}

// newTextJob builds a job with one item holding one data item per text, at
// paths p0, p1, ...
func newTextJob(jobID, itemID int64, texts ...string) *db.Job {
	item := db.JobItem{JobItemID: itemID, JobID: jobID, Label: "Page"}
	for idx, text := range texts {
		item.DataItems = append(item.DataItems, db.DataItem{
			JobItemID:  itemID,
			Path:       "p" + strconv.Itoa(idx),
			SourceText: text,
			Position:   idx,
		})
	}
	return &db.Job{
		JobID:      jobID,
		SourceLang: "en",
		TargetLang: "de",
		Tier:       "standard",
		State:      db.JobStateUnprocessed,
		Items:      []db.JobItem{item},
	}
}

func decodeSubmitResponse(t *testing.T, raw string) *gengo.SubmitResponse {
	t.Helper()
	var resp gengo.SubmitResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	resp.Raw = json.RawMessage(raw)
	return &resp
}

func textPtr(v string) *string { return &v }

func tokenFor(jobID, itemID int64, path string) string {
	return fmt.Sprintf("%d][%d][%s", jobID, itemID, path)
}
