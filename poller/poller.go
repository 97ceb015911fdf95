// Package poller tracks one submitted scraping job at a time, from submission
// through status polling to a terminal state.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-jobs/models"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

// DefaultInterval is the pause between the end of one status poll and the
// start of the next.
const DefaultInterval = 3 * time.Second

// API is the subset of the backend client the poller needs.
type API interface {
	SubmitJobWithObserver(ctx context.Context, query string, observer requester.Observer) (*models.SubmitResponse, error)
	GetJobWithObserver(ctx context.Context, id models.JobID, observer requester.Observer) (*models.JobStatusResponse, error)
}

// Poller owns the lifecycle of at most one in-flight job.
type Poller struct {
	api       API
	interval  time.Duration
	parent    context.Context
	logger    *slog.Logger
	metrics   *Metrics
	eventBuf  int

	mu       sync.Mutex
	state    models.Snapshot
	active   *session
	gen      uint64
	closed   bool
	subs     map[int]chan Event
	nextSub  int
	sessions int

	wg sync.WaitGroup
}

// session is one submission and, for non-cached jobs, its polling loop.
type session struct {
	gen     uint64
	query   string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	polling bool
	jobID   models.JobID
	last    models.JobStatus
}

// Option customises a Poller.
type Option func(*Poller)

// WithInterval sets the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithContext ties every session to parent; cancelling it tears sessions down.
func WithContext(parent context.Context) Option {
	return func(p *Poller) {
		if parent != nil {
			p.parent = parent
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records lifecycle metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Poller) {
		p.metrics = metrics
	}
}

// WithEventBuffer sets the capacity of subscriber channels.
func WithEventBuffer(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.eventBuf = n
		}
	}
}

// New builds an idle Poller.
func New(api API, opts ...Option) *Poller {
	p := &Poller{
		api:      api,
		interval: DefaultInterval,
		parent:   context.Background(),
		logger:   slog.Default(),
		eventBuf: 64,
		state:    models.Snapshot{Phase: models.PhaseIdle},
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit starts tracking a new job for query. Any active session is cancelled
// before Submit returns, so no result from it can be applied afterwards.
func (p *Poller) Submit(query string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	p.cancelActiveLocked()
	p.gen++
	ctx, cancel := context.WithCancel(p.parent)
	s := &session{
		gen:    p.gen,
		query:  query,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.active = s
	p.setStateLocked(models.Snapshot{
		Phase: models.PhaseSubmitting,
		Job: &models.Job{
			Query:       query,
			Status:      models.StatusPending,
			SubmittedAt: time.Now(),
		},
	})
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.incSubmission()
	go p.run(s)
	return nil
}

// Cancel stops the active session, if any, and returns the poller to idle.
// A finished job keeps its terminal snapshot.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.active == nil && p.state.Phase.Terminal() {
		return
	}
	p.cancelActiveLocked()
	p.setStateLocked(models.Snapshot{Phase: models.PhaseIdle})
}

// Close cancels the active session, waits for it to exit and closes all
// subscriber channels. The poller cannot be reused.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.active != nil {
		p.cancelActiveLocked()
		p.stopLocked()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
	p.mu.Unlock()
}

// State returns the current snapshot. A session torn down before reaching a
// terminal state leaves the poller idle with MessageCancelled.
func (p *Poller) State() models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneSnapshot(p.state)
}

// Polling reports whether a polling session currently holds the active slot.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && p.active.polling
}

// SessionsStarted returns how many polling sessions were ever created.
func (p *Poller) SessionsStarted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

// Wait blocks until the latest submission reaches a terminal phase, is
// cancelled, or ctx is done.
func (p *Poller) Wait(ctx context.Context) (models.Snapshot, error) {
	for {
		p.mu.Lock()
		s := p.active
		state := cloneSnapshot(p.state)
		p.mu.Unlock()

		if s == nil {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-s.done:
		}
	}
}

func (p *Poller) run(s *session) {
	defer p.wg.Done()
	defer close(s.done)
	defer s.cancel()
	defer p.release(s)

	resp, err := p.api.SubmitJobWithObserver(s.ctx, s.query, p.observer(s))
	if err != nil {
		p.fail(s, "submit", MessageSubmitFailed, err)
		return
	}

	if resp.Cached {
		p.metrics.incCacheHit()
		p.apply(s, func(snap *models.Snapshot) {
			snap.Phase = models.PhaseCompleted
			snap.Job.ID = resp.JobID
			snap.Job.Cached = true
			snap.Job.Status = models.StatusCompleted
			snap.Job.Results = nonNilResults(resp.Results)
			snap.Job.CompletedAt = time.Now()
		})
		return
	}

	ok := p.apply(s, func(snap *models.Snapshot) {
		snap.Phase = models.PhasePolling
		snap.Job.ID = resp.JobID
	})
	if !ok {
		return
	}
	p.poll(s, resp.JobID)
}

// poll reschedules itself only after each status call resolves, so polls of
// one session never overlap.
func (p *Poller) poll(s *session, id models.JobID) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		p.metrics.incPoll()
		resp, err := p.api.GetJobWithObserver(s.ctx, id, p.observer(s))
		if err != nil {
			p.fail(s, "poll", MessagePollFailed, PollingFailure{JobID: id, Err: err})
			return
		}

		status := resp.Status
		ok := p.apply(s, func(snap *models.Snapshot) {
			s.last = status
			snap.Job.Status = status
			switch status {
			case models.StatusCompleted:
				snap.Phase = models.PhaseCompleted
				snap.Job.Results = nonNilResults(resp.Results)
				snap.Job.CompletedAt = time.Now()
			case models.StatusFailed:
				snap.Phase = models.PhaseFailed
				snap.Message = MessageJobFailed
				snap.Job.Results = nonNilResults(resp.Results)
				snap.Job.CompletedAt = time.Now()
			}
		})
		if !ok || status.Terminal() {
			return
		}

		p.logger.Debug("job still running",
			slog.String("job_id", string(id)),
			slog.String("status", string(status)),
		)
		timer.Reset(p.interval)
	}
}

// apply mutates a copy of the state when s is still the active session. It
// reports false for stale sessions, whose results are dropped.
func (p *Poller) apply(s *session, mutate func(*models.Snapshot)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != s || s.ctx.Err() != nil {
		return false
	}

	next := cloneSnapshot(p.state)
	if next.Job == nil {
		next.Job = &models.Job{Query: s.query}
	}
	mutate(&next)

	if next.Phase == models.PhasePolling && !s.polling {
		s.polling = true
		s.jobID = next.Job.ID
		p.sessions++
		p.metrics.incSession()
	}
	if next.Phase.Terminal() {
		p.active = nil
		s.cancel()
		p.metrics.incFinished(string(next.Phase))
	}

	p.setStateLocked(next)
	return true
}

func (p *Poller) fail(s *session, stage, message string, err error) {
	if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}

	p.logger.Error("job request failed",
		slog.String("stage", stage),
		slog.String("query", s.query),
		slog.String("job_id", string(s.jobID)),
		slog.Any("error", err),
	)

	ok := p.apply(s, func(snap *models.Snapshot) {
		snap.Phase = models.PhaseFailed
		snap.Message = message
		snap.Job.Status = models.StatusFailed
		snap.Job.CompletedAt = time.Now()
	})
	if ok {
		p.metrics.incFailure(stage, requester.ErrorTypeLabel(err))
	}
}

// release frees the active slot when s exits without reaching a terminal
// state, e.g. after the parent context was cancelled.
func (p *Poller) release(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == s {
		p.active = nil
		p.stopLocked()
	}
}

// stopLocked moves an unfinished job to idle, keeping the job for reference.
func (p *Poller) stopLocked() {
	if p.state.Phase.Terminal() || p.state.Phase == models.PhaseIdle {
		return
	}
	next := cloneSnapshot(p.state)
	next.Phase = models.PhaseIdle
	next.Message = MessageCancelled
	p.setStateLocked(next)
}

func (p *Poller) cancelActiveLocked() {
	if p.active == nil {
		return
	}
	p.active.cancel()
	p.logger.Debug("cancelled active session",
		slog.Uint64("generation", p.active.gen),
		slog.String("query", p.active.query),
		slog.String("job_id", string(p.active.jobID)),
	)
	p.active = nil
}

func (p *Poller) setStateLocked(next models.Snapshot) {
	p.state = next
	p.broadcastLocked(Event{Kind: EventStateChanged, Snapshot: cloneSnapshot(next)})
}

func cloneSnapshot(s models.Snapshot) models.Snapshot {
	s.Job = s.Job.Clone()
	return s
}

func nonNilResults(items []models.ResultItem) []models.ResultItem {
	if items == nil {
		return []models.ResultItem{}
	}
	out := make([]models.ResultItem, len(items))
	copy(out, items)
	return out
}
