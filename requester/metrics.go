package requester

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for outgoing backend requests.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ExhaustedTotal  prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs the collectors and registers them on registry. A nil
// registry gets a dedicated one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobclient_requests_total",
			Help: "Total HTTP attempts issued to the job backend.",
		},
		[]string{"method", "outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobclient_request_duration_seconds",
			Help:    "Latency of individual HTTP attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobclient_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	exhausted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobclient_retry_exhausted_total",
			Help: "Total number of calls that ran out of retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobclient_errors_total",
			Help: "Total number of failed attempts by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, retries, exhausted, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ExhaustedTotal:  exhausted,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest counts one attempt with its outcome.
func (m *Metrics) IncRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveDuration records an attempt's latency.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncExhausted increments the exhausted counter.
func (m *Metrics) IncExhausted() {
	if m == nil {
		return
	}
	m.ExhaustedTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
