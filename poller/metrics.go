package poller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the job lifecycle.
type Metrics struct {
	SubmissionsTotal prometheus.Counter
	CacheHitsTotal   prometheus.Counter
	SessionsTotal    prometheus.Counter
	PollsTotal       prometheus.Counter
	FinishedTotal    *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
}

// NewMetrics registers the poller collectors on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_submissions_total",
		Help: "Total number of queries submitted.",
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_cache_hits_total",
		Help: "Submissions answered from the backend cache.",
	})
	sessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_sessions_total",
		Help: "Polling sessions started.",
	})
	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poller_polls_total",
		Help: "Status polls issued.",
	})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_jobs_finished_total",
		Help: "Jobs that reached a terminal phase.",
	}, []string{"phase"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poller_failures_total",
		Help: "Request failures that ended a job, by stage.",
	}, []string{"stage", "error_type"})

	registry.MustRegister(submissions, cacheHits, sessions, polls, finished, failures)

	return &Metrics{
		SubmissionsTotal: submissions,
		CacheHitsTotal:   cacheHits,
		SessionsTotal:    sessions,
		PollsTotal:       polls,
		FinishedTotal:    finished,
		FailuresTotal:    failures,
	}
}

func (m *Metrics) incSubmission() {
	if m == nil {
		return
	}
	m.SubmissionsTotal.Inc()
}

func (m *Metrics) incCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) incSession() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

func (m *Metrics) incPoll() {
	if m == nil {
		return
	}
	m.PollsTotal.Inc()
}

func (m *Metrics) incFinished(phase string) {
	if m == nil {
		return
	}
	m.FinishedTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) incFailure(stage, errorType string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(stage, errorType).Inc()
}
