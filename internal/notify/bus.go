// Package notify fans terminal job events out to the clients waiting on them.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// Sink receives every event published locally, e.g. to forward it to other
// service instances.
type Sink interface {
	Deliver(ctx context.Context, evt entity.JobEvent) error
}

type envelope struct {
	evt    entity.JobEvent
	remote bool
}

// Bus delivers live events to per-job subscribers. There is no replay: a
// subscriber that arrives after the event has to poll the status store.
type Bus struct {
	events chan envelope

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	sinks  []Sink
	logger *zap.Logger
}

func NewBus(logger *zap.Logger, buffer int, sinks ...Sink) *Bus {
	return &Bus{
		events: make(chan envelope, buffer),
		subs:   make(map[string]map[*Subscription]struct{}),
		sinks:  sinks,
		logger: logger,
	}
}

// Publish queues evt for local subscribers and sinks.
func (b *Bus) Publish(ctx context.Context, evt entity.JobEvent) error {
	return b.enqueue(ctx, envelope{evt: evt})
}

// Inject queues an event that originated in another instance. It reaches
// local subscribers only.
func (b *Bus) Inject(ctx context.Context, evt entity.JobEvent) error {
	return b.enqueue(ctx, envelope{evt: evt, remote: true})
}

func (b *Bus) enqueue(ctx context.Context, env envelope) error {
	select {
	case b.events <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued events until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.events:
			b.dispatch(ctx, env)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, env envelope) {
	b.mu.RLock()
	for sub := range b.subs[env.evt.JobID] {
		select {
		case sub.ch <- env.evt:
		default:
			b.logger.Warn("subscriber not ready, event dropped",
				zap.String("job_id", env.evt.JobID),
				zap.String("event", string(env.evt.Type)),
			)
		}
	}
	b.mu.RUnlock()

	if env.remote {
		return
	}
	for _, s := range b.sinks {
		if err := s.Deliver(ctx, env.evt); err != nil {
			b.logger.Warn("event sink failed", zap.String("job_id", env.evt.JobID), zap.Error(err))
		}
	}
}

// Subscribe registers interest in the terminal event of jobID.
func (b *Bus) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		JobID: jobID,
		ch:    make(chan entity.JobEvent, 1),
		bus:   b,
	}

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*Subscription]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Subscription receives the events of one job.
type Subscription struct {
	JobID string

	ch   chan entity.JobEvent
	bus  *Bus
	once sync.Once
}

// C returns the channel events arrive on. It is closed by Close.
func (s *Subscription) C() <-chan entity.JobEvent {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		delete(b.subs[s.JobID], s)
		if len(b.subs[s.JobID]) == 0 {
			delete(b.subs, s.JobID)
		}
		close(s.ch)
		b.mu.Unlock()
	})
}

// Subscribers returns the number of open subscriptions for jobID.
func (b *Bus) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
