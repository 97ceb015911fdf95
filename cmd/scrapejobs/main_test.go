package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-jobs/config"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

const testBaseURL = "http://backend.test"

func newTestCLI(transport http.RoundTripper) (*cli, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &cli{
		cfg:       config.DefaultConfig(),
		stdout:    out,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		transport: transport,
	}, out
}

func execute(t *testing.T, c *cli, args ...string) error {
	t.Helper()
	args = append(args, "--base-url", testBaseURL, "--poll-interval", "5ms", "--retry-backoff", "1ms")
	return c.execute(context.Background(), args)
}

func TestSearchExportsResults(t *testing.T) {
	polls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/api/jobs",
		httpmock.NewStringResponder(http.StatusOK, `{"jobId":7,"cached":false}`))
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/api/jobs/7", func(*http.Request) (*http.Response, error) {
		polls++
		if polls == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		if polls < 3 {
			return httpmock.NewStringResponse(http.StatusOK, `{"status":"in_progress"}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"status":"completed","results":[
			{"tweet_id":"t1","tweet_text":"cats!","author_handle":"@cat","timestamp":"2024-05-01T10:00:00Z"},
			{"tweet_id":"t1","tweet_text":"cats!","author_handle":"@cat","timestamp":"2024-05-01T10:00:00Z"},
			{"tweet_id":"t2","tweet_text":"more cats","author_handle":"kitty","timestamp":"2024-05-01T11:00:00Z"}
		]}`), nil
	})

	c, out := newTestCLI(transport)
	output := filepath.Join(t.TempDir(), "results.csv")
	if err := execute(t, c, "search", "cats", "--output", output, "--workers", "1"); err != nil {
		t.Fatalf("search: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 deduplicated rows", len(records))
	}
	if records[1][2] != "cat" {
		t.Fatalf("author handle = %q, want normalized %q", records[1][2], "cat")
	}

	summary := out.String()
	for _, want := range []string{`Search "cats" completed`, "Job ID:        7", "Results:       3", "Written:       2", "Retries:       1"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestSearchCachedJobSkipsPolling(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/api/jobs",
		httpmock.NewStringResponder(http.StatusOK, `{"jobId":"c1","cached":true,"results":[]}`))

	c, out := newTestCLI(transport)
	output := filepath.Join(t.TempDir(), "results.csv")
	if err := execute(t, c, "search", "dogs", "--output", output); err != nil {
		t.Fatalf("search: %v", err)
	}

	if n := transport.GetTotalCallCount(); n != 1 {
		t.Fatalf("backend calls = %d, want 1", n)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("no output file expected for an empty result set, stat err = %v", err)
	}
	if !strings.Contains(out.String(), "Cached:        true") {
		t.Fatalf("summary should report cached job:\n%s", out.String())
	}
}

func TestSearchFailedJob(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testBaseURL+"/api/jobs",
		httpmock.NewStringResponder(http.StatusOK, `{"jobId":"9","cached":false}`))
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/api/jobs/9",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"failed"}`))

	c, out := newTestCLI(transport)
	err := execute(t, c, "search", "birds", "--output", filepath.Join(t.TempDir(), "out.csv"))
	if !errors.Is(err, errJobFailed) {
		t.Fatalf("expected errJobFailed, got %v", err)
	}
	if !strings.Contains(out.String(), `Search "birds" failed`) {
		t.Fatalf("summary should report failure:\n%s", out.String())
	}
}

func TestSearchRejectsInvalidConfig(t *testing.T) {
	c, _ := newTestCLI(httpmock.NewMockTransport())
	if err := execute(t, c, "search", "cats", "--format", "xml"); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestHistory(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/api/search-history",
		func(req *http.Request) (*http.Response, error) {
			if got := req.URL.Query().Get("limit"); got != "2" {
				t.Errorf("limit = %q, want 2", got)
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"history":["cats","dogs"]}`), nil
		})

	c, out := newTestCLI(transport)
	if err := execute(t, c, "history", "--limit", "2"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if want := " 1. cats\n 2. dogs\n"; out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestHistoryErrorIsLogged(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/api/search-history",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	c, out := newTestCLI(transport)
	logs := &bytes.Buffer{}
	c.logger = slog.New(slog.NewTextHandler(logs, nil))

	err := execute(t, c, "history")
	var clientErr requester.ClientError
	if !errors.As(err, &clientErr) || clientErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected ClientError 404, got %v", err)
	}
	if n := transport.GetTotalCallCount(); n != 1 {
		t.Fatalf("backend calls = %d, want 1", n)
	}
	if !strings.Contains(logs.String(), "command failed") || !strings.Contains(logs.String(), "404") {
		t.Fatalf("error was not logged:\n%s", logs.String())
	}
	if out.Len() != 0 {
		t.Fatalf("no history output expected, got %q", out.String())
	}
}
