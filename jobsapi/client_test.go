package jobsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-jobs/models"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

const baseURL = "http://backend.test"

func newTestClient(t *testing.T, transport *httpmock.MockTransport, opts ...Option) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := requester.New(
		requester.WithHTTPClient(&http.Client{Transport: transport}),
		requester.WithSleep(func(context.Context, time.Duration) error { return nil }),
		requester.WithLogger(logger),
	)
	opts = append([]Option{WithLogger(logger)}, opts...)
	c, err := New(baseURL+"/", r, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func jsonResponder(t *testing.T, status int, body any) httpmock.Responder {
	t.Helper()
	responder, err := httpmock.NewJsonResponder(status, body)
	if err != nil {
		t.Fatalf("json responder: %v", err)
	}
	return responder
}

func TestSubmitJob(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, baseURL+"/api/jobs", func(req *http.Request) (*http.Response, error) {
		var body models.SubmitRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad json"), nil
		}
		if body.Query != "cats" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad query"), nil
		}
		if req.Header.Get("Content-Type") != "application/json" {
			return httpmock.NewStringResponse(http.StatusUnsupportedMediaType, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"jobId":17,"cached":true,"results":[{"tweet_id":"t1","tweet_text":"meow","author_handle":"@cat","timestamp":"2024-01-02T03:04:05Z"}]}`), nil
	})

	c := newTestClient(t, transport)
	resp, err := c.SubmitJob(context.Background(), "  cats ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.JobID != "17" || !resp.Cached {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Results) != 1 || resp.Results[0].TweetID != "t1" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
}

func TestSubmitJobRejectsEmptyQuery(t *testing.T) {
	transport := httpmock.NewMockTransport()
	c := newTestClient(t, transport)

	if _, err := c.SubmitJob(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}

func TestSubmitJobClientError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, baseURL+"/api/jobs", httpmock.NewStringResponder(http.StatusBadRequest, "query too long"))

	c := newTestClient(t, transport)
	_, err := c.SubmitJob(context.Background(), "cats")

	var clientErr requester.ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if clientErr.StatusCode != http.StatusBadRequest || clientErr.Body != "query too long" {
		t.Fatalf("unexpected client error %+v", clientErr)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestSubmitJobMissingID(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, baseURL+"/api/jobs", httpmock.NewStringResponder(http.StatusOK, `{"cached":false}`))

	c := newTestClient(t, transport)
	if _, err := c.SubmitJob(context.Background(), "cats"); err == nil {
		t.Fatalf("expected error for missing job id")
	}
}

func TestGetJob(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/jobs/abc", jsonResponder(t, http.StatusOK, map[string]any{
		"status":  "completed",
		"results": []models.ResultItem{{TweetID: "t9", TweetText: "hi"}},
	}))

	c := newTestClient(t, transport)
	resp, err := c.GetJob(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if resp.Status != models.StatusCompleted || len(resp.Results) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetJobUnknownStatus(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/jobs/abc", httpmock.NewStringResponder(http.StatusOK, `{"status":"exploded"}`))

	c := newTestClient(t, transport)
	if _, err := c.GetJob(context.Background(), "abc"); err == nil {
		t.Fatalf("expected decode error for unknown status")
	}
}

func TestGetJobRetriesServerErrors(t *testing.T) {
	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/jobs/abc", func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"status":"in_progress"}`), nil
	})

	c := newTestClient(t, transport)
	var retries []requester.Attempt
	resp, err := c.GetJobWithObserver(context.Background(), "abc", requester.ObserverFuncs{
		Retry: func(a requester.Attempt) { retries = append(retries, a) },
	})
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if resp.Status != models.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", resp.Status)
	}
	if calls != 3 || len(retries) != 2 {
		t.Fatalf("calls=%d retries=%d, want 3/2", calls, len(retries))
	}
}

func TestSearchHistoryUsesCache(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/search-history", jsonResponder(t, http.StatusOK, map[string]any{
		"history": []string{"cats", "dogs"},
	}))

	c := newTestClient(t, transport, WithHistoryCache(4, time.Minute))

	for i := 0; i < 3; i++ {
		history, err := c.SearchHistory(context.Background(), 10)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 || history[0] != "cats" {
			t.Fatalf("unexpected history %v", history)
		}
		history[0] = "mutated"
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}

	c.InvalidateHistory()
	if _, err := c.SearchHistory(context.Background(), 10); err != nil {
		t.Fatalf("history: %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("calls after invalidate = %d, want 2", got)
	}
}

func TestSearchHistorySendsLimit(t *testing.T) {
	var gotLimit string
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, baseURL+"/api/search-history", func(req *http.Request) (*http.Response, error) {
		gotLimit = req.URL.Query().Get("limit")
		return httpmock.NewStringResponse(http.StatusOK, `{"history":null}`), nil
	})

	c := newTestClient(t, transport)
	history, err := c.SearchHistory(context.Background(), 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if gotLimit != "5" {
		t.Fatalf("limit = %q, want 5", gotLimit)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil history, got %v", history)
	}
	if _, err := c.SearchHistory(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

func TestEndpointEscapesJobID(t *testing.T) {
	c := newTestClient(t, httpmock.NewMockTransport())
	if got, want := c.endpoint("api", "jobs", "a b/c"), baseURL+"/api/jobs/a%20b%2Fc"; got != want {
		t.Fatalf("endpoint = %q, want %q", got, want)
	}
}
