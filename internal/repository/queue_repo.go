package repository

import (
	"context"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// Delivery is one hand-off of a job to a worker. It must be acked once the
// job reached a terminal status, otherwise it is redelivered after its lease
// expires.
type Delivery struct {
	Job     *entity.ScrapeJob
	Attempt int64
	Receipt string
}

// JobQueue is a durable, at-least-once queue of scrape jobs.
type JobQueue interface {
	// Enqueue appends a job to the ready list.
	Enqueue(ctx context.Context, job *entity.ScrapeJob) error
	// Dequeue moves the oldest ready job into the processing list and leases it.
	// It returns ErrQueueEmpty if nothing became ready within wait.
	Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error)
	// Ack removes a delivery from the processing list for good.
	Ack(ctx context.Context, d *Delivery) error
	// DeadLetter moves a delivery that exhausted its attempts out of processing.
	DeadLetter(ctx context.Context, d *Delivery) error
	// RecoverExpired requeues deliveries whose lease has run out and returns how many.
	RecoverExpired(ctx context.Context) (int, error)
	// Size returns the number of jobs waiting in the ready list.
	Size(ctx context.Context) (int64, error)
}
