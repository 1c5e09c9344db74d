package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

type lease struct {
	job      *entity.ScrapeJob
	deadline time.Time
}

// JobQueue is an in-process repository.JobQueue with the same lease and
// attempt semantics as the Redis queue. It is not durable.
type JobQueue struct {
	mu         sync.Mutex
	ready      []*entity.ScrapeJob
	processing map[string]lease
	attempts   map[string]int64
	dead       []*entity.ScrapeJob

	leaseFor time.Duration
	signal   chan struct{}
	now      func() time.Time
}

func NewJobQueue(leaseFor time.Duration) *JobQueue {
	return &JobQueue{
		processing: make(map[string]lease),
		attempts:   make(map[string]int64),
		leaseFor:   leaseFor,
		signal:     make(chan struct{}, 1),
		now:        time.Now,
	}
}

func (q *JobQueue) Enqueue(_ context.Context, job *entity.ScrapeJob) error {
	q.mu.Lock()
	q.ready = append(q.ready, job.Clone())
	q.mu.Unlock()
	q.notify()
	return nil
}

func (q *JobQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *JobQueue) Dequeue(ctx context.Context, wait time.Duration) (*repository.Delivery, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if d := q.pop(); d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, repository.ErrQueueEmpty
		case <-q.signal:
		}
	}
}

func (q *JobQueue) pop() *repository.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	if len(q.ready) > 0 {
		q.notify()
	}

	receipt := uuid.NewString()
	q.processing[receipt] = lease{job: job, deadline: q.now().Add(q.leaseFor)}
	q.attempts[job.ID]++
	return &repository.Delivery{Job: job.Clone(), Attempt: q.attempts[job.ID], Receipt: receipt}
}

func (q *JobQueue) Ack(_ context.Context, d *repository.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, d.Receipt)
	delete(q.attempts, d.Job.ID)
	return nil
}

func (q *JobQueue) DeadLetter(_ context.Context, d *repository.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l, ok := q.processing[d.Receipt]; ok {
		q.dead = append(q.dead, l.job)
		delete(q.processing, d.Receipt)
	}
	delete(q.attempts, d.Job.ID)
	return nil
}

func (q *JobQueue) RecoverExpired(context.Context) (int, error) {
	q.mu.Lock()
	now := q.now()
	n := 0
	for receipt, l := range q.processing {
		if now.After(l.deadline) {
			q.ready = append(q.ready, l.job)
			delete(q.processing, receipt)
			n++
		}
	}
	q.mu.Unlock()
	if n > 0 {
		q.notify()
	}
	return n, nil
}

func (q *JobQueue) Size(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready)), nil
}

// DeadLettered returns the jobs moved to the dead-letter list.
func (q *JobQueue) DeadLettered() []*entity.ScrapeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*entity.ScrapeJob, len(q.dead))
	copy(out, q.dead)
	return out
}
