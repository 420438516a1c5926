package gengo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"horse.fit/transync/internal/globaltime"
)

const (
	// ProductionURL is the live translation service.
	ProductionURL = "https://api.gengo.com"
	// SandboxURL is the provider's sandbox; jobs there are never billed.
	SandboxURL = "https://api.sandbox.gengo.com"
	// APIVersion is the path prefix of every endpoint.
	APIVersion = "v2"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "transync; Gengo API v2"
	debugBodyLimit   = 4096
)

// Options configure a Client. Endpoint selection is explicit: BaseURL wins,
// then UseSandbox, then production.
type Options struct {
	PublicKey  string
	PrivateKey string
	UseSandbox bool
	BaseURL    string
	Debug      bool
	Timeout    time.Duration
	UserAgent  string
	Logger     zerolog.Logger
}

// Client signs and sends requests to the provider API and unwraps its
// response envelope.
type Client struct {
	http       *resty.Client
	baseURL    string
	publicKey  string
	privateKey string
	debug      bool
	logger     zerolog.Logger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = ProductionURL
		if opts.UseSandbox {
			base = SandboxURL
		}
	}

	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", "application/json"),
		baseURL:    base,
		publicKey:  strings.TrimSpace(opts.PublicKey),
		privateKey: strings.TrimSpace(opts.PrivateKey),
		debug:      opts.Debug,
		logger:     opts.Logger,
	}
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Sign returns the request signature for a unix timestamp string.
func Sign(privateKey, timestamp string) string {
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

type jobsPayload struct {
	Jobs    *Batch `json:"jobs"`
	AsGroup int    `json:"as_group"`
}

// SubmitJobs posts a batch for translation. Batches of more than one job are
// submitted as a group.
func (c *Client) SubmitJobs(ctx context.Context, batch *Batch) (*SubmitResponse, error) {
	var raw json.RawMessage
	if err := c.request(ctx, "submit jobs", http.MethodPost, "translate/jobs", nil, jobsPayload{
		Jobs:    batch,
		AsGroup: boolInt(batch.Len() > 1),
	}, &raw); err != nil {
		return nil, err
	}

	resp := &SubmitResponse{Raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, resp); err != nil {
			return nil, &Error{Op: "submit jobs", Message: fmt.Sprintf("decode response: %v", err), Err: err}
		}
	}
	return resp, nil
}

// Quote asks for a price quote for a batch and returns the provider answer untouched.
func (c *Client) Quote(ctx context.Context, batch *Batch) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.request(ctx, "quote", http.MethodPost, "translate/service/quote", nil, jobsPayload{
		Jobs:    batch,
		AsGroup: boolInt(batch.Len() > 1),
	}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}

	var out struct {
		Order Order `json:"order"`
	}
	if err := c.request(ctx, "get order", http.MethodGet, "translate/order/"+orderID, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Order.OrderID == "" {
		out.Order.OrderID = ID(orderID)
	}
	return &out.Order, nil
}

// GetJobs fetches full records for the given job ids in a single call.
func (c *Client) GetJobs(ctx context.Context, jobIDs []string) ([]Job, error) {
	ids := make([]string, 0, len(jobIDs))
	for _, id := range jobIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.request(ctx, "get jobs", http.MethodGet, "translate/jobs/"+strings.Join(ids, ","), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *Client) ApproveJob(ctx context.Context, jobID string, opts ApproveOptions) error {
	payload := map[string]any{"action": "approve"}
	if opts.Rating > 0 {
		payload["rating"] = opts.Rating
	}
	if text := strings.TrimSpace(opts.ForTranslator); text != "" {
		payload["for_translator"] = text
	}
	if text := strings.TrimSpace(opts.ForGengo); text != "" {
		payload["for_mygengo"] = text
	}
	payload["public"] = boolInt(opts.Public)
	return c.request(ctx, "approve job", http.MethodPut, "translate/job/"+strings.TrimSpace(jobID), nil, payload, nil)
}

func (c *Client) ReviseJob(ctx context.Context, jobID, comment string) error {
	return c.request(ctx, "revise job", http.MethodPut, "translate/job/"+strings.TrimSpace(jobID), nil, map[string]any{
		"action":  "revise",
		"comment": strings.TrimSpace(comment),
	}, nil)
}

// Languages lists supported languages, optionally only targets for a source.
func (c *Client) Languages(ctx context.Context, remoteSource string) ([]Language, error) {
	var query map[string]string
	if source := strings.TrimSpace(remoteSource); source != "" {
		query = map[string]string{"lc_src": source}
	}
	var out []Language
	if err := c.request(ctx, "languages", http.MethodGet, "translate/service/languages", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LanguagePairs(ctx context.Context, remoteSource string) ([]LanguagePair, error) {
	var query map[string]string
	if source := strings.TrimSpace(remoteSource); source != "" {
		query = map[string]string{"lc_src": source}
	}
	var out []LanguagePair
	if err := c.request(ctx, "language pairs", http.MethodGet, "translate/service/language_pairs", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + APIVersion + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) request(ctx context.Context, op, method, path string, query map[string]string, body any, out any) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("gengo client is not initialized")
	}

	endpoint := c.endpoint(path)
	timestamp := strconv.FormatInt(globaltime.Unix(), 10)
	signature := Sign(c.privateKey, timestamp)

	req := c.http.R().SetContext(ctx)
	switch method {
	case http.MethodGet, http.MethodDelete:
		params := map[string]string{
			"api_key": c.publicKey,
			"api_sig": signature,
			"ts":      timestamp,
		}
		for key, value := range query {
			params[key] = value
		}
		req.SetQueryParams(params)
	default:
		if body == nil {
			body = map[string]any{}
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gengo %s: encode request: %w", op, err)
		}
		req.SetFormData(map[string]string{
			"api_key": c.publicKey,
			"api_sig": signature,
			"ts":      timestamp,
			"data":    string(encoded),
		})
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Str("method", method).Str("url", endpoint).Msg("gengo request failed")
		return &Error{Op: op, Method: method, URL: endpoint, Err: err}
	}

	if c.debug {
		c.logger.Debug().
			Str("op", op).
			Str("method", method).
			Str("url", endpoint).
			Int("status", resp.StatusCode()).
			Dur("latency", resp.Time()).
			Str("response", truncate(resp.String(), debugBodyLimit)).
			Msg("gengo request")
	}

	return decodeEnvelope(op, method, endpoint, resp.StatusCode(), resp.Body(), out)
}

type envelope struct {
	Opstat   string          `json:"opstat"`
	Response json.RawMessage `json:"response"`
	Err      json.RawMessage `json:"err"`
}

func decodeEnvelope(op, method, endpoint string, status int, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(body), &env); err != nil {
		if status >= http.StatusBadRequest {
			return &Error{Op: op, Method: method, URL: endpoint, Status: status, Message: http.StatusText(status)}
		}
		return &Error{Op: op, Method: method, URL: endpoint, Status: status, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}

	if strings.EqualFold(env.Opstat, "ok") {
		if out == nil || isNullJSON(env.Response) {
			return nil
		}
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], env.Response...)
			return nil
		}
		if err := json.Unmarshal(env.Response, out); err != nil {
			return &Error{Op: op, Method: method, URL: endpoint, Status: status, Message: fmt.Sprintf("decode response: %v", err), Err: err}
		}
		return nil
	}

	code, message := parseProviderErr(env.Err)
	if code == 0 && message == "" {
		message = "service returned an error without details"
		if status >= http.StatusBadRequest {
			message = http.StatusText(status)
		}
	}
	return &Error{Op: op, Method: method, URL: endpoint, Status: status, Code: code, Message: message}
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
