package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/metrics"
	"github.com/user/scrape-orchestrator/pkg/utils"
)

const finalizeTimeout = 10 * time.Second

// Publisher emits job events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt entity.JobEvent) error
}

// Processor takes one dequeued job to a terminal status.
type Processor interface {
	// Process runs job end to end: cache, engine, persistence, status, event.
	Process(ctx context.Context, job *entity.ScrapeJob) *entity.ScrapeJob
	// Abandon fails a job without running it.
	Abandon(ctx context.Context, job *entity.ScrapeJob, reason string) *entity.ScrapeJob
}

type scrapeUseCase struct {
	cache     repository.ResultCache
	extractor Extractor
	dataRepo  repository.ScrapedDataRepository
	status    *StatusStore
	publisher Publisher
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewProcessor creates the per-job orchestration use case.
func NewProcessor(
	cache repository.ResultCache,
	extractor Extractor,
	dataRepo repository.ScrapedDataRepository,
	status *StatusStore,
	publisher Publisher,
	cacheTTL time.Duration,
	logger *zap.Logger,
) Processor {
	return &scrapeUseCase{
		cache:     cache,
		extractor: extractor,
		dataRepo:  dataRepo,
		status:    status,
		publisher: publisher,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func (uc *scrapeUseCase) Process(ctx context.Context, job *entity.ScrapeJob) *entity.ScrapeJob {
	job = job.Clone()
	log := uc.logger.With(zap.String("job_id", job.ID), zap.String("url", job.URL))

	if cached, ok := lookupCache(ctx, uc.cache, job.URL, log); ok {
		log.Info("serving job from cache")
		job.Complete(cached, time.Now().UTC())
		uc.finalize(ctx, job, "cache")
		return job
	}

	start := time.Now()
	result, err := uc.extractor.Extract(ctx, job)
	metrics.JobDuration.WithLabelValues(utils.Domain(job.URL)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("scrape job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		job.Result = result
		job.Fail(err.Error(), time.Now().UTC())
		uc.finalize(ctx, job, "engine")
		return job
	}

	log.Info("scrape job completed",
		zap.Int("pages", result.TotalPages),
		zap.Duration("took", time.Since(start)),
	)

	// Persistence and caching are best-effort and must not hold back the result.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := uc.dataRepo.SaveResult(pctx, job.URL, result); err != nil {
		metrics.PersistenceFailures.WithLabelValues("scraped_data").Inc()
		log.Error("failed to persist scraped data", zap.Error(err))
	}
	if err := uc.cache.Put(pctx, job.URL, result, uc.cacheTTL); err != nil {
		log.Warn("failed to cache result", zap.Error(err))
	}

	job.Complete(result, time.Now().UTC())
	uc.finalize(ctx, job, "engine")
	return job
}

func (uc *scrapeUseCase) Abandon(ctx context.Context, job *entity.ScrapeJob, reason string) *entity.ScrapeJob {
	job = job.Clone()
	job.Fail(reason, time.Now().UTC())
	uc.finalize(ctx, job, "dead_letter")
	return job
}

// finalize records the terminal status and publishes its event. It runs on
// a context detached from the job deadline so a timed-out job still reports.
func (uc *scrapeUseCase) finalize(ctx context.Context, job *entity.ScrapeJob, source string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	finishJob(ctx, uc.status, uc.publisher, job, source, uc.logger)
}

// finishJob moves job to its terminal status and publishes exactly one event
// for it. A job that was already terminal publishes nothing.
func finishJob(ctx context.Context, status *StatusStore, pub Publisher, job *entity.ScrapeJob, source string, logger *zap.Logger) {
	if err := status.Finish(ctx, job); err != nil {
		if errors.Is(err, repository.ErrStatusTerminal) {
			logger.Warn("job already finished, dropping duplicate outcome", zap.String("job_id", job.ID))
			return
		}
		logger.Error("failed to record job status", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.JobsTotal.WithLabelValues(string(job.Status), source).Inc()

	if err := pub.Publish(ctx, entity.EventFor(job)); err != nil {
		logger.Error("failed to publish job event", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// lookupCache treats every cache error as a miss.
func lookupCache(ctx context.Context, cache repository.ResultCache, url string, logger *zap.Logger) (*entity.ScrapeResult, bool) {
	result, hit, err := cache.Get(ctx, url)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		logger.Warn("cache lookup failed, treating as miss", zap.String("url", url), zap.Error(err))
		return nil, false
	case !hit:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	default:
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return result, true
	}
}
