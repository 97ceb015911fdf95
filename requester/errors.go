package requester

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError indicates the transport failed before a response arrived.
type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Errorf("network: %w", e.Err).Error()
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// ServerError indicates a retryable HTTP status (429 or 5xx).
type ServerError struct {
	StatusCode int
}

func (e ServerError) Error() string {
	return fmt.Sprintf("server: http status %d", e.StatusCode)
}

// RateLimited reports whether the backend answered 429.
func (e ServerError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// ClientError describes a non-2xx status that is not worth retrying. The
// requester itself returns such responses untouched; higher layers convert
// them into this error once they decide the response is unusable.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e ClientError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("client: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("client: http status %d: %s", e.StatusCode, e.Body)
}

// RetryExhausted wraps the last retryable cause once the retry budget is spent.
type RetryExhausted struct {
	Attempts int
	Last     error
}

func (e RetryExhausted) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e RetryExhausted) Unwrap() error {
	return e.Last
}

// DefaultRetryable treats transport failures, 429 and 5xx as retryable.
func DefaultRetryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode >= 500 && resp.StatusCode <= 599)
}

func classifyFailure(resp *http.Response, err error) error {
	if err != nil {
		return NetworkError{Err: err}
	}
	if resp == nil {
		return NetworkError{Err: errors.New("empty response")}
	}
	if DefaultRetryable(resp, nil) {
		return ServerError{StatusCode: resp.StatusCode}
	}
	return ClientError{StatusCode: resp.StatusCode}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	var exhausted RetryExhausted
	if errors.As(err, &exhausted) {
		return "exhausted"
	}
	var network NetworkError
	if errors.As(err, &network) {
		return "network"
	}
	var server ServerError
	if errors.As(err, &server) {
		if server.RateLimited() {
			return "rate_limited"
		}
		return "server"
	}
	var client ClientError
	if errors.As(err, &client) {
		return "client"
	}
	return "other"
}

// ErrorTypeLabel exposes the metric label used for err.
func ErrorTypeLabel(err error) string {
	return errorTypeLabel(err)
}
