package poller

import (
	"context"

	"github.com/aluiziolira/go-scrape-jobs/models"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	// EventStateChanged carries a new Snapshot.
	EventStateChanged EventKind = "state_changed"
	// EventRetry reports that a backend call is being retried.
	EventRetry EventKind = "retry"
	// EventRequestFailed reports that a backend call ran out of retries.
	EventRequestFailed EventKind = "request_failed"
)

// Event is delivered to subscribers. Attempt is set for EventRetry, Err for
// EventRequestFailed.
type Event struct {
	Kind     EventKind
	Snapshot models.Snapshot
	Attempt  requester.Attempt
	Err      error
}

// Subscribe returns a channel of events and a function that detaches it.
// Delivery never blocks the poller: events are dropped when the channel is
// full. The channel is closed by unsubscribe or Close.
func (p *Poller) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, p.eventBuf)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if existing, ok := p.subs[id]; ok {
			close(existing)
			delete(p.subs, id)
		}
	}
}

func (p *Poller) broadcastLocked(ev Event) {
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// observer forwards requester telemetry for s while it is still active.
func (p *Poller) observer(s *session) requester.Observer {
	return sessionObserver{p: p, s: s}
}

type sessionObserver struct {
	p *Poller
	s *session
}

func (o sessionObserver) OnRetry(_ context.Context, attempt requester.Attempt) {
	o.emit(Event{Kind: EventRetry, Attempt: attempt})
}

func (o sessionObserver) OnFailure(_ context.Context, cause error) {
	o.emit(Event{Kind: EventRequestFailed, Err: cause})
}

func (o sessionObserver) emit(ev Event) {
	o.p.mu.Lock()
	defer o.p.mu.Unlock()
	if o.p.active != o.s {
		return
	}
	ev.Snapshot = cloneSnapshot(o.p.state)
	o.p.broadcastLocked(ev)
}
