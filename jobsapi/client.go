// Package jobsapi is a typed client for the scraping job backend.
package jobsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aluiziolira/go-scrape-jobs/config"
	"github.com/aluiziolira/go-scrape-jobs/models"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

// ErrEmptyQuery is returned when SubmitJob is called with a blank query.
var ErrEmptyQuery = errors.New("jobsapi: empty query")

const maxErrorBody = 512

// Client talks to the job backend through a retrying requester.
type Client struct {
	baseURL   *url.URL
	requester *requester.Requester
	policy    requester.Policy
	history   *expirable.LRU[int, []string]
	logger    *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithPolicy overrides the retry policy used for every call.
func WithPolicy(policy requester.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithHistoryCache caches search history responses for ttl. size 0 disables it.
func WithHistoryCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size <= 0 {
			c.history = nil
			return
		}
		c.history = expirable.NewLRU[int, []string](size, nil, ttl)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for baseURL.
func New(baseURL string, r *requester.Requester, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if r == nil {
		r = requester.New()
	}

	c := &Client{
		baseURL:   parsed,
		requester: r,
		policy:    requester.DefaultPolicy(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig wires a client and its requester from cfg.
func NewFromConfig(cfg *config.Config, r *requester.Requester, logger *slog.Logger) (*Client, error) {
	policy := requester.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.BaseDelay = cfg.RetryBackoff
	return New(cfg.BaseURL, r,
		WithPolicy(policy),
		WithHistoryCache(cfg.HistoryCacheSize, cfg.HistoryCacheTTL),
		WithLogger(logger),
	)
}

// Policy returns the retry policy used by the client.
func (c *Client) Policy() requester.Policy {
	return c.policy
}

// SubmitJob posts a new scraping job for query.
func (c *Client) SubmitJob(ctx context.Context, query string) (*models.SubmitResponse, error) {
	return c.SubmitJobWithObserver(ctx, query, nil)
}

// SubmitJobWithObserver is SubmitJob with a per-call retry observer.
func (c *Client) SubmitJobWithObserver(ctx context.Context, query string, observer requester.Observer) (*models.SubmitResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	body, err := json.Marshal(models.SubmitRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("encode submit request: %w", err)
	}

	spec := requester.RequestSpec{
		Method: http.MethodPost,
		URL:    c.endpoint("api", "jobs"),
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	}

	var out models.SubmitResponse
	if err := c.do(ctx, spec, observer, &out); err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("submit job: response has no job id")
	}
	return &out, nil
}

// GetJob fetches the current status of a job.
func (c *Client) GetJob(ctx context.Context, id models.JobID) (*models.JobStatusResponse, error) {
	return c.GetJobWithObserver(ctx, id, nil)
}

// GetJobWithObserver is GetJob with a per-call retry observer.
func (c *Client) GetJobWithObserver(ctx context.Context, id models.JobID, observer requester.Observer) (*models.JobStatusResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("get job: empty job id")
	}
	spec := requester.RequestSpec{
		Method: http.MethodGet,
		URL:    c.endpoint("api", "jobs", string(id)),
	}

	var out models.JobStatusResponse
	if err := c.do(ctx, spec, observer, &out); err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &out, nil
}

// SearchHistory returns up to limit recent queries.
func (c *Client) SearchHistory(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("search history: limit must be positive")
	}
	if c.history != nil {
		if cached, ok := c.history.Get(limit); ok {
			return cloneStrings(cached), nil
		}
	}

	u := c.endpoint("api", "search-history") + "?" + url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode()
	spec := requester.RequestSpec{Method: http.MethodGet, URL: u}

	var out models.HistoryResponse
	if err := c.do(ctx, spec, nil, &out); err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	if out.History == nil {
		out.History = []string{}
	}
	if c.history != nil {
		c.history.Add(limit, cloneStrings(out.History))
	}
	return out.History, nil
}

// InvalidateHistory drops cached history, e.g. after a new submission.
func (c *Client) InvalidateHistory() {
	if c.history != nil {
		c.history.Purge()
	}
}

func (c *Client) do(ctx context.Context, spec requester.RequestSpec, observer requester.Observer, out any) error {
	policy := c.policy
	if observer != nil {
		policy.Observer = observer
	}

	resp, err := c.requester.Execute(ctx, spec, policy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return requester.ClientError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Debug("undecodable backend response",
			slog.String("url", spec.URL),
			slog.Int("bytes", len(data)),
		)
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/")
	rawPath := u.EscapedPath()
	for _, segment := range segments {
		u.Path += "/" + segment
		rawPath += "/" + url.PathEscape(segment)
	}
	u.RawPath = rawPath
	return u.String()
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
