// Package requester issues HTTP calls with bounded, exponentially backed-off
// retries.
package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries one identifier across every attempt of a call.
const RequestIDHeader = "X-Request-Id"

const maxShift = 62

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultSleep blocks on a timer and honours cancellation.
func DefaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Attempt describes a retry that is about to happen.
type Attempt struct {
	Index int // 1-based number of the retry
	Delay time.Duration
	Cause error
}

// Observer receives retry telemetry. Implementations must not block for long;
// their return does not influence the retry loop.
type Observer interface {
	OnRetry(ctx context.Context, attempt Attempt)
	OnFailure(ctx context.Context, cause error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Retry   func(Attempt)
	Failure func(error)
}

func (o ObserverFuncs) OnRetry(_ context.Context, attempt Attempt) {
	if o.Retry != nil {
		o.Retry(attempt)
	}
}

func (o ObserverFuncs) OnFailure(_ context.Context, cause error) {
	if o.Failure != nil {
		o.Failure(cause)
	}
}

// Policy configures one Execute call.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Retryable  func(resp *http.Response, err error) bool
	Observer   Observer
}

// DefaultPolicy returns three retries starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		Retryable:  DefaultRetryable,
	}
}

// Backoff returns base * 2^attempt, saturating instead of overflowing.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}
	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}
	return base * time.Duration(multiplier)
}

// RequestSpec is a replayable request description.
type RequestSpec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Requester executes RequestSpecs with retries.
type Requester struct {
	client    *http.Client
	limiter   *rate.Limiter
	sleep     SleepFunc
	metrics   *Metrics
	logger    *slog.Logger
	userAgent string

	retries atomic.Int64
}

// Option customises a Requester.
type Option func(*Requester)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Requester) {
		if client != nil {
			r.client = client
		}
	}
}

// WithLimiter throttles every attempt through limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(r *Requester) {
		r.limiter = limiter
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep SleepFunc) Option {
	return func(r *Requester) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(r *Requester) {
		r.metrics = metrics
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Requester) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header on every attempt.
func WithUserAgent(userAgent string) Option {
	return func(r *Requester) {
		r.userAgent = userAgent
	}
}

// New builds a Requester.
func New(opts ...Option) *Requester {
	r := &Requester{
		client: &http.Client{Timeout: 10 * time.Second},
		sleep:  DefaultSleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute issues spec until it succeeds, fails with a non-retryable status,
// or exhausts policy.MaxRetries. A 2xx response is returned immediately.
// Non-retryable non-2xx responses are returned as-is with a nil error and the
// caller owns their body. Retryable failures end in RetryExhausted.
func (r *Requester) Execute(ctx context.Context, spec RequestSpec, policy Policy) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	requestID := uuid.NewString()

	for attempt := 0; ; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		req, err := r.build(ctx, spec, requestID)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := r.client.Do(req)
		r.metrics.ObserveDuration(time.Since(start))

		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			r.metrics.IncRequest(spec.Method, "success")
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			discard(resp)
			r.metrics.IncRequest(spec.Method, "canceled")
			return nil, ctxErr
		}
		if !retryable(resp, err) {
			if err != nil {
				discard(resp)
				r.metrics.IncRequest(spec.Method, "network_error")
				r.metrics.IncError("network")
				return nil, NetworkError{Err: err}
			}
			r.metrics.IncRequest(spec.Method, "client_error")
			r.metrics.IncError("client")
			return resp, nil
		}

		cause := classifyFailure(resp, err)
		discard(resp)
		r.metrics.IncRequest(spec.Method, "retryable")
		r.metrics.IncError(errorTypeLabel(cause))

		if attempt >= maxRetries {
			r.metrics.IncExhausted()
			if policy.Observer != nil {
				policy.Observer.OnFailure(ctx, cause)
			}
			r.logger.Error("request failed after retries",
				slog.String("method", spec.Method),
				slog.String("url", spec.URL),
				slog.Int("attempts", attempt+1),
				slog.String("request_id", requestID),
				slog.Any("error", cause),
			)
			return nil, RetryExhausted{Attempts: attempt + 1, Last: cause}
		}

		delay := Backoff(policy.BaseDelay, attempt)
		r.metrics.IncRetries()
		r.retries.Add(1)
		if policy.Observer != nil {
			policy.Observer.OnRetry(ctx, Attempt{Index: attempt + 1, Delay: delay, Cause: cause})
		}
		r.logger.Warn("request attempt failed, retrying",
			slog.String("method", spec.Method),
			slog.String("url", spec.URL),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("request_id", requestID),
			slog.Any("error", cause),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// RetryCount returns how many retries this Requester has scheduled.
func (r *Requester) RetryCount() int64 {
	return r.retries.Load()
}

func (r *Requester) build(ctx context.Context, spec RequestSpec, requestID string) (*http.Request, error) {
	var body io.Reader
	if spec.Body != nil {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range spec.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if r.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	req.Header.Set(RequestIDHeader, requestID)
	return req, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
