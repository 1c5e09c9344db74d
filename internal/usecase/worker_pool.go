package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/metrics"
)

// WorkerPoolConfig sizes the pool and its queue maintenance.
type WorkerPoolConfig struct {
	Workers       int
	JobTimeout    time.Duration
	MaxDeliveries int64
	PollWait      time.Duration
	ReapInterval  time.Duration
	// StatusRetention is how long finished jobs stay in the in-memory status map.
	StatusRetention time.Duration
}

// WorkerPool runs a fixed number of workers that each take one job at a time
// from the durable queue and process it end to end.
type WorkerPool struct {
	queue     repository.JobQueue
	processor Processor
	status    *StatusStore
	cfg       WorkerPoolConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkerPool(
	queue repository.JobQueue,
	processor Processor,
	status *StatusStore,
	cfg WorkerPoolConfig,
	logger *zap.Logger,
) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 3
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 2 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.StatusRetention <= 0 {
		cfg.StatusRetention = time.Hour
	}
	return &WorkerPool{
		queue:     queue,
		processor: processor,
		status:    status,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start launches the workers and the lease reaper. They stop when ctx is
// cancelled or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.reaper(ctx)

	p.logger.Info("worker pool started", zap.Int("workers", p.cfg.Workers))
}

// Stop stops taking new jobs and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.queue.Dequeue(ctx, p.cfg.PollWait)
		if err != nil {
			if errors.Is(err, repository.ErrQueueEmpty) || ctx.Err() != nil {
				continue
			}
			log.Error("failed to dequeue job", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.PollWait):
			}
			continue
		}
		p.handle(ctx, d, log)
	}
}

// handle processes one delivery. A panic leaves the delivery unacked so the
// reaper hands it out again once the lease runs out.
func (p *WorkerPool) handle(ctx context.Context, d *repository.Delivery, log *zap.Logger) {
	log = log.With(zap.String("job_id", d.Job.ID), zap.Int64("attempt", d.Attempt))
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked while processing job", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	// The job runs to completion even during shutdown; its own deadline bounds it.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.JobTimeout)
	defer cancel()

	if d.Attempt > p.cfg.MaxDeliveries {
		log.Warn("job exceeded max deliveries, dead-lettering")
		p.processor.Abandon(jobCtx, d.Job, fmt.Sprintf("job abandoned after %d deliveries", d.Attempt-1))
		if err := p.queue.DeadLetter(jobCtx, d); err != nil {
			log.Error("failed to dead-letter job", zap.Error(err))
		}
		metrics.DeadLettered.Inc()
		return
	}

	job := p.processor.Process(jobCtx, d.Job)
	if err := p.queue.Ack(context.WithoutCancel(ctx), d); err != nil {
		log.Error("failed to ack job", zap.Error(err))
	}
	log.Debug("job acked", zap.String("status", string(job.Status)))
}

func (p *WorkerPool) reaper(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reap(ctx)
		}
	}
}

func (p *WorkerPool) reap(ctx context.Context) {
	n, err := p.queue.RecoverExpired(ctx)
	if err != nil {
		p.logger.Error("failed to recover expired leases", zap.Error(err))
	} else if n > 0 {
		p.logger.Warn("requeued jobs with expired leases", zap.Int("count", n))
	}

	if size, err := p.queue.Size(ctx); err == nil {
		metrics.JobsInQueue.Set(float64(size))
	}
	if pruned := p.status.Prune(time.Now().Add(-p.cfg.StatusRetention)); pruned > 0 {
		p.logger.Debug("pruned finished jobs from memory", zap.Int("count", pruned))
	}
}
