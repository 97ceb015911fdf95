package poller

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-jobs/jobsapi"
	"github.com/aluiziolira/go-scrape-jobs/models"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

func TestCatsJobEndToEnd(t *testing.T) {
	const base = "http://backend.test"

	var (
		mu    sync.Mutex
		polls int
	)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, base+"/api/jobs",
		httpmock.NewStringResponder(http.StatusOK, `{"jobId":"1","cached":false}`))
	transport.RegisterResponder(http.MethodGet, base+"/api/jobs/1", func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		switch polls {
		case 1:
			// a transient error is absorbed by the requester's own retries
			return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
		case 2, 3:
			return httpmock.NewStringResponse(http.StatusOK, `{"status":"in_progress"}`), nil
		default:
			return httpmock.NewStringResponse(http.StatusOK,
				`{"status":"completed","results":[{"tweet_id":"t1","tweet_text":"cats!","author_handle":"@cat","timestamp":"2024-05-01T10:00:00Z"}]}`), nil
		}
	})

	r := requester.New(
		requester.WithHTTPClient(&http.Client{Transport: transport}),
		requester.WithSleep(func(context.Context, time.Duration) error { return nil }),
		requester.WithLogger(quietLogger()),
	)
	client, err := jobsapi.New(base, r, jobsapi.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	p := newTestPoller(client)
	defer p.Close()

	if err := p.Submit("cats"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitTerminal(t, p)

	if snap.Phase != models.PhaseCompleted {
		t.Fatalf("phase = %s (%q), want completed", snap.Phase, snap.Message)
	}
	if len(snap.Job.Results) != 1 || snap.Job.Results[0].TweetID != "t1" {
		t.Fatalf("results = %+v", snap.Job.Results)
	}
	if p.Polling() {
		t.Fatalf("timer should be cleared once completed")
	}

	time.Sleep(5 * testInterval)
	mu.Lock()
	defer mu.Unlock()
	if polls != 4 {
		t.Fatalf("status requests = %d, want 4", polls)
	}
}
