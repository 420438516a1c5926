package gengo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/transync/internal/globaltime"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{
		PublicKey:  "pub",
		PrivateKey: "secret",
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		Logger:     zerolog.Nop(),
	})
}

func TestSignIsHexHMACSHA1(t *testing.T) {
	// HMAC-SHA1("key", "The quick brown fox jumps over the lazy dog")
	got := Sign("key", "The quick brown fox jumps over the lazy dog")
	assert.Equal(t, "de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9", got)
}

func TestNewClientSelectsEndpoint(t *testing.T) {
	assert.Equal(t, ProductionURL, NewClient(Options{}).BaseURL())
	assert.Equal(t, SandboxURL, NewClient(Options{UseSandbox: true}).BaseURL())
	assert.Equal(t, "http://mock.local", NewClient(Options{UseSandbox: true, BaseURL: "http://mock.local/"}).BaseURL())
}

func TestSubmitJobsSignsFormAndKeepsOrder(t *testing.T) {
	globaltime.Freeze(time.Unix(1700000000, 0))
	t.Cleanup(globaltime.Reset)

	var gotForm url.Values
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"opstat":"ok","response":{"order_id":"77","job_count":2,"credits_used":"1.50","currency":"USD"}}`)
	})

	batch := NewBatch()
	batch.Add("1][2][b", JobRequest{Type: "text", BodySrc: "World", CustomData: "1][2][b", Position: 0})
	batch.Add("1][2][a", JobRequest{Type: "text", BodySrc: "Hello", CustomData: "1][2][a", Position: 1})

	resp, err := client.SubmitJobs(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, "/v2/translate/jobs", gotPath)
	assert.Equal(t, "pub", gotForm.Get("api_key"))
	assert.Equal(t, "1700000000", gotForm.Get("ts"))
	assert.Equal(t, Sign("secret", "1700000000"), gotForm.Get("api_sig"))

	var data struct {
		Jobs    RawJobEntries `json:"jobs"`
		AsGroup int           `json:"as_group"`
	}
	require.NoError(t, json.Unmarshal([]byte(gotForm.Get("data")), &data))
	assert.Equal(t, 1, data.AsGroup)
	require.Len(t, data.Jobs, 2)
	assert.Equal(t, "1][2][b", data.Jobs[0].Key)
	assert.Equal(t, "1][2][a", data.Jobs[1].Key)

	assert.Equal(t, ID("77"), resp.OrderID)
	assert.Equal(t, FlexInt(2), resp.JobCount)
	assert.InDelta(t, 1.5, float64(resp.CreditsUsed), 0.0001)
	assert.Empty(t, resp.Jobs)
	assert.NotEmpty(t, resp.Raw)
}

func TestSubmitJobsDecodesKeyedJobMap(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"opstat":"ok","response":{"jobs":{"1][2][b":{"job_id":"NULL","status":"approved"},"0":{"job_id":12}}}}`)
	})

	resp, err := client.SubmitJobs(context.Background(), NewBatch())
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "1][2][b", resp.Jobs[0].Key)
	assert.Equal(t, "0", resp.Jobs[1].Key)
}

func TestGetOrderQueryParamsAndBuckets(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "/v2/translate/order/55", r.URL.Path)
		_, _ = io.WriteString(w, `{"opstat":"ok","response":{"order":{"order_id":55,"total_jobs":"3","jobs_queued":"0","jobs_available":["10",11],"jobs_reviewable":["11","12"]}}}`)
	})

	order, err := client.GetOrder(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, "pub", gotQuery.Get("api_key"))
	assert.NotEmpty(t, gotQuery.Get("api_sig"))
	assert.Equal(t, ID("55"), order.OrderID)
	assert.False(t, order.NothingQueuedYet())
	assert.Equal(t, []ID{"10", "11", "12"}, order.JobIDs())
}

func TestGetJobsJoinsIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/translate/jobs/10,11", r.URL.Path)
		_, _ = io.WriteString(w, `{"opstat":"ok","response":{"jobs":[{"job_id":"10","status":"reviewable","body_tgt":"Hallo","custom_data":"1][2][a","unit_count":"1","credits":0.05}]}}`)
	})

	jobs, err := client.GetJobs(context.Background(), []string{"10", " ", "11"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, ID("10"), jobs[0].JobID)
	require.NotNil(t, jobs[0].BodyTgt)
	assert.Equal(t, "Hallo", *jobs[0].BodyTgt)
	assert.Equal(t, FlexInt(1), jobs[0].UnitCount)
}

func TestGetJobsWithoutIDsSkipsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	jobs, err := client.GetJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, jobs)
}

func TestProviderErrorSingle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"opstat":"error","err":{"code":1100,"msg":"authentication failed"}}`)
	})

	_, err := client.GetOrder(context.Background(), "1")
	require.Error(t, err)
	gerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, int64(1100), gerr.Code)
	assert.Equal(t, "authentication failed", gerr.Message)
	assert.True(t, IsProviderError(err))
	assert.Contains(t, err.Error(), "#1100 authentication failed")
}

func TestProviderErrorKeyedTakesFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"opstat":"error","err":{"job_2":[{"code":"1350","msg":"unsupported pair"}],"job_1":[{"code":1400,"msg":"missing body"}]}}`)
	})

	_, err := client.SubmitJobs(context.Background(), NewBatch())
	gerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, int64(1400), gerr.Code)
	assert.Equal(t, "missing body", gerr.Message)
}

func TestHTTPFailureWithoutEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := client.GetJobs(context.Background(), []string{"1"})
	gerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, gerr.Status)
	assert.False(t, IsProviderError(err))
}

func TestApproveJobSendsAction(t *testing.T) {
	var data map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v2/translate/job/42", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("data")), &data))
		_, _ = io.WriteString(w, `{"opstat":"ok","response":{}}`)
	})

	require.NoError(t, client.ApproveJob(context.Background(), "42", ApproveOptions{Rating: 5, ForTranslator: "thanks"}))
	assert.Equal(t, "approve", data["action"])
	assert.Equal(t, float64(5), data["rating"])
	assert.Equal(t, "thanks", data["for_translator"])
}

func TestIDAndFlexDecoding(t *testing.T) {
	var payload struct {
		A ID        `json:"a"`
		B ID        `json:"b"`
		C ID        `json:"c"`
		D FlexInt   `json:"d"`
		E FlexFloat `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":" 34 ","c":null,"d":"7","e":"0.25"}`), &payload))
	assert.Equal(t, ID("12"), payload.A)
	assert.Equal(t, ID("34"), payload.B)
	assert.Equal(t, ID(""), payload.C)
	assert.Equal(t, FlexInt(7), payload.D)
	assert.InDelta(t, 0.25, float64(payload.E), 0.0001)
}

func TestJobIsDuplicate(t *testing.T) {
	var flagged, plain, nulled Job
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"1","duplicate":true}`), &flagged))
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"1"}`), &plain))
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"1","duplicate":null}`), &nulled))
	assert.True(t, flagged.IsDuplicate())
	assert.False(t, plain.IsDuplicate())
	assert.False(t, nulled.IsDuplicate())
}
