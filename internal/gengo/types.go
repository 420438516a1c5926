package gengo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Job statuses reported by the provider.
const (
	StatusQueued     = "queued"
	StatusAvailable  = "available"
	StatusPending    = "pending"
	StatusReviewable = "reviewable"
	StatusApproved   = "approved"
	StatusRevising   = "revising"
	StatusRejected   = "rejected"
	StatusCanceled   = "canceled"
	StatusHeld       = "held"
)

// NullJobID is the literal the provider returns as job id for machine translations.
const NullJobID = "NULL"

// ID is a provider identifier. The API sends ids as numbers or strings
// depending on the endpoint, so both decode to the same value.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", string(trimmed), err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// FlexInt decodes integers sent either as JSON numbers or numeric strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("decode integer %q: %w", raw, err)
	}
	*f = FlexInt(int64(v))
	return nil
}

// FlexFloat decodes decimals sent either as JSON numbers or numeric strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("decode decimal %q: %w", raw, err)
	}
	*f = FlexFloat(v)
	return nil
}

// Job is one remote job record.
type Job struct {
	JobID      ID              `json:"job_id"`
	OrderID    ID              `json:"order_id,omitempty"`
	Status     string          `json:"status"`
	Slug       string          `json:"slug,omitempty"`
	BodySrc    string          `json:"body_src,omitempty"`
	BodyTgt    *string         `json:"body_tgt,omitempty"`
	LcSrc      string          `json:"lc_src,omitempty"`
	LcTgt      string          `json:"lc_tgt,omitempty"`
	Tier       string          `json:"tier,omitempty"`
	UnitCount  FlexInt         `json:"unit_count"`
	Credits    FlexFloat       `json:"credits"`
	Currency   string          `json:"currency,omitempty"`
	CustomData string          `json:"custom_data,omitempty"`
	Duplicate  json.RawMessage `json:"duplicate,omitempty"`
}

// IsDuplicate reports whether the provider flagged the job as a duplicate of
// content it already has.
func (j Job) IsDuplicate() bool {
	trimmed := bytes.TrimSpace(j.Duplicate)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// JobRequest is one outbound job in a submission or quote batch.
type JobRequest struct {
	Type         string `json:"type"`
	Slug         string `json:"slug"`
	BodySrc      string `json:"body_src"`
	LcSrc        string `json:"lc_src"`
	LcTgt        string `json:"lc_tgt"`
	Tier         string `json:"tier"`
	CallbackURL  string `json:"callback_url,omitempty"`
	CustomData   string `json:"custom_data"`
	Position     int    `json:"position"`
	AutoApprove  int    `json:"auto_approve"`
	UsePreferred int    `json:"use_preferred"`
	Comment      string `json:"comment,omitempty"`
}

// Batch is an insertion-ordered set of job requests keyed by correlation
// token. It marshals to a JSON object in insertion order.
type Batch struct {
	keys []string
	jobs map[string]JobRequest
}

func NewBatch() *Batch {
	return &Batch{jobs: map[string]JobRequest{}}
}

// Add appends a request. Adding an existing key replaces the request in place.
func (b *Batch) Add(key string, req JobRequest) {
	if _, exists := b.jobs[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.jobs[key] = req
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

func (b *Batch) Keys() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

func (b *Batch) Get(key string) (JobRequest, bool) {
	if b == nil {
		return JobRequest{}, false
	}
	req, ok := b.jobs[key]
	return req, ok
}

// KeyAt returns the key at the given insertion position.
func (b *Batch) KeyAt(position int) (string, bool) {
	if b == nil || position < 0 || position >= len(b.keys) {
		return "", false
	}
	return b.keys[position], true
}

func (b *Batch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if b != nil {
		for i, key := range b.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			encodedJob, err := json.Marshal(b.jobs[key])
			if err != nil {
				return nil, err
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			buf.Write(encodedJob)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RawJobEntry is one undecoded element of a submission response's job list.
// Key is the object key, or the decimal index when the list was an array.
type RawJobEntry struct {
	Key string
	Raw json.RawMessage
}

// RawJobEntries keeps the job list of a submission response in wire order.
type RawJobEntries []RawJobEntry

func (e *RawJobEntries) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*e = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode job list: %w", err)
		}
		out := make(RawJobEntries, 0, len(items))
		for idx, item := range items {
			out = append(out, RawJobEntry{Key: strconv.Itoa(idx), Raw: item})
		}
		*e = out
		return nil
	case '{':
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := decoder.Token(); err != nil {
			return fmt.Errorf("decode job map: %w", err)
		}
		out := RawJobEntries{}
		for decoder.More() {
			keyToken, err := decoder.Token()
			if err != nil {
				return fmt.Errorf("decode job map key: %w", err)
			}
			key, ok := keyToken.(string)
			if !ok {
				return fmt.Errorf("decode job map key: unexpected token %v", keyToken)
			}
			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				return fmt.Errorf("decode job map value for %q: %w", key, err)
			}
			out = append(out, RawJobEntry{Key: key, Raw: raw})
		}
		*e = out
		return nil
	default:
		return fmt.Errorf("decode job list: unexpected JSON %q", string(trimmed[:1]))
	}
}

// SubmitResponse is the provider answer to a job submission. It carries either
// a job list or an order id.
type SubmitResponse struct {
	OrderID     ID            `json:"order_id"`
	JobCount    FlexInt       `json:"job_count"`
	CreditsUsed FlexFloat     `json:"credits_used"`
	Currency    string        `json:"currency,omitempty"`
	Jobs        RawJobEntries `json:"jobs"`

	Raw json.RawMessage `json:"-"`
}

// Order is the provider's view of an order and the jobs it expanded into.
type Order struct {
	OrderID        ID        `json:"order_id"`
	TotalJobs      FlexInt   `json:"total_jobs"`
	JobsQueued     FlexInt   `json:"jobs_queued"`
	TotalCredits   FlexFloat `json:"total_credits"`
	TotalUnits     FlexInt   `json:"total_units"`
	Currency       string    `json:"currency,omitempty"`
	JobsAvailable  []ID      `json:"jobs_available"`
	JobsPending    []ID      `json:"jobs_pending"`
	JobsReviewable []ID      `json:"jobs_reviewable"`
	JobsApproved   []ID      `json:"jobs_approved"`
	JobsRevising   []ID      `json:"jobs_revising"`
}

// NothingQueuedYet reports whether no job of the order exists yet.
func (o Order) NothingQueuedYet() bool {
	return o.JobsQueued == o.TotalJobs
}

// JobIDs returns the distinct job ids across every status bucket, in bucket order.
func (o Order) JobIDs() []ID {
	seen := map[ID]struct{}{}
	out := make([]ID, 0, len(o.JobsAvailable)+len(o.JobsPending)+len(o.JobsReviewable)+len(o.JobsApproved)+len(o.JobsRevising))
	for _, bucket := range [][]ID{o.JobsAvailable, o.JobsPending, o.JobsReviewable, o.JobsApproved, o.JobsRevising} {
		for _, id := range bucket {
			if id == "" {
				continue
			}
			if _, exists := seen[id]; exists {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Language is one provider-supported language.
type Language struct {
	Code          string `json:"lc"`
	Language      string `json:"language"`
	LocalizedName string `json:"localized_name,omitempty"`
	UnitType      string `json:"unit_type,omitempty"`
}

// LanguagePair is one provider-supported source/target/tier combination.
type LanguagePair struct {
	LcSrc     string    `json:"lc_src"`
	LcTgt     string    `json:"lc_tgt"`
	Tier      string    `json:"tier"`
	UnitPrice FlexFloat `json:"unit_price"`
	Currency  string    `json:"currency,omitempty"`
}

// ApproveOptions carries the optional review feedback sent with an approval.
type ApproveOptions struct {
	Rating        int    `json:"rating,omitempty"`
	ForTranslator string `json:"for_translator,omitempty"`
	ForGengo      string `json:"for_mygengo,omitempty"`
	Public        bool   `json:"-"`
}
