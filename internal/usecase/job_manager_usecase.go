package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/utils"
)

// ScrapeRequest is a validated-on-submit description of one or more jobs.
type ScrapeRequest struct {
	URLs        []string
	SearchTerms entity.SearchTerms
	Selectors   entity.Selectors
	Options     *entity.ScrapeOptions
}

// JobManager accepts scrape submissions and answers status queries.
type JobManager interface {
	// Submit enqueues one job and returns its id without waiting for it.
	Submit(ctx context.Context, req ScrapeRequest) (string, error)
	// SubmitBulk creates one job per URL. URLs with a cached result complete
	// immediately; their ids come first, followed by the enqueued ones.
	SubmitBulk(ctx context.Context, req ScrapeRequest) ([]string, error)
	GetStatus(ctx context.Context, jobID string) (*entity.ScrapeJob, error)
	GetResults(ctx context.Context, url string) ([]entity.ScrapedItem, error)
}

type jobManagerUseCase struct {
	queue     repository.JobQueue
	cache     repository.ResultCache
	dataRepo  repository.ScrapedDataRepository
	status    *StatusStore
	publisher Publisher
	logger    *zap.Logger
}

// NewJobManager creates a new JobManager use case.
func NewJobManager(
	queue repository.JobQueue,
	cache repository.ResultCache,
	dataRepo repository.ScrapedDataRepository,
	status *StatusStore,
	publisher Publisher,
	logger *zap.Logger,
) JobManager {
	return &jobManagerUseCase{
		queue:     queue,
		cache:     cache,
		dataRepo:  dataRepo,
		status:    status,
		publisher: publisher,
		logger:    logger,
	}
}

func (uc *jobManagerUseCase) Submit(ctx context.Context, req ScrapeRequest) (string, error) {
	if len(req.URLs) != 1 {
		return "", fmt.Errorf("%w: exactly one url is required", repository.ErrValidation)
	}
	opts, err := validate(req)
	if err != nil {
		return "", err
	}

	job := uc.newJob(req.URLs[0], req, opts)
	if err := uc.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (uc *jobManagerUseCase) SubmitBulk(ctx context.Context, req ScrapeRequest) ([]string, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("%w: urls must not be empty", repository.ErrValidation)
	}
	opts, err := validate(req)
	if err != nil {
		return nil, err
	}

	var cachedIDs, freshIDs []string
	for _, url := range req.URLs {
		job := uc.newJob(url, req, opts)

		if cached, ok := lookupCache(ctx, uc.cache, url, uc.logger); ok {
			uc.status.Register(ctx, job)
			job.Complete(cached, time.Now().UTC())
			finishJob(ctx, uc.status, uc.publisher, job, "cache", uc.logger)
			cachedIDs = append(cachedIDs, job.ID)
			continue
		}

		if err := uc.enqueue(ctx, job); err != nil {
			return nil, err
		}
		freshIDs = append(freshIDs, job.ID)
	}

	uc.logger.Info("bulk submission accepted",
		zap.Int("cached", len(cachedIDs)),
		zap.Int("enqueued", len(freshIDs)),
	)
	return append(cachedIDs, freshIDs...), nil
}

func (uc *jobManagerUseCase) GetStatus(ctx context.Context, jobID string) (*entity.ScrapeJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", repository.ErrValidation)
	}
	return uc.status.Get(ctx, jobID)
}

func (uc *jobManagerUseCase) GetResults(ctx context.Context, url string) ([]entity.ScrapedItem, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", repository.ErrValidation)
	}
	return uc.dataRepo.FindByURL(ctx, url)
}

func (uc *jobManagerUseCase) newJob(url string, req ScrapeRequest, opts entity.ScrapeOptions) *entity.ScrapeJob {
	return &entity.ScrapeJob{
		ID:          uuid.NewString(),
		URL:         url,
		SearchTerms: req.SearchTerms,
		Selectors:   req.Selectors,
		Options:     opts,
		Status:      entity.JobStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// enqueue registers job as pending and hands it to the queue. If the queue
// rejects it the job is failed so no poller waits on it forever.
func (uc *jobManagerUseCase) enqueue(ctx context.Context, job *entity.ScrapeJob) error {
	uc.status.Register(ctx, job)
	if err := uc.queue.Enqueue(ctx, job); err != nil {
		failed := job.Clone()
		failed.Fail("could not enqueue job", time.Now().UTC())
		finishJob(ctx, uc.status, uc.publisher, failed, "queue", uc.logger)
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	uc.logger.Debug("job enqueued", zap.String("job_id", job.ID), zap.String("url", job.URL))
	return nil
}

func validate(req ScrapeRequest) (entity.ScrapeOptions, error) {
	for _, raw := range req.URLs {
		if _, ok := utils.ParseHTTPURL(raw); !ok {
			return entity.ScrapeOptions{}, fmt.Errorf("%w: %q is not an absolute http(s) url", repository.ErrValidation, raw)
		}
	}
	if req.SearchTerms.Title == "" {
		return entity.ScrapeOptions{}, fmt.Errorf("%w: searchTerms.title is required", repository.ErrValidation)
	}
	for field, sel := range req.Selectors {
		if !field.Valid() {
			return entity.ScrapeOptions{}, fmt.Errorf("%w: unknown selector field %q", repository.ErrValidation, field)
		}
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return entity.ScrapeOptions{}, fmt.Errorf("%w: selector for %s: %v", repository.ErrValidation, field, err)
		}
	}

	opts := entity.DefaultScrapeOptions()
	if req.Options != nil {
		o := *req.Options
		switch {
		case o.MaxPages < 1:
			return opts, fmt.Errorf("%w: maxPages must be at least 1", repository.ErrValidation)
		case o.WaitTime < 0:
			return opts, fmt.Errorf("%w: waitTime must not be negative", repository.ErrValidation)
		case o.RetryAttempts < 1:
			return opts, fmt.Errorf("%w: retryAttempts must be at least 1", repository.ErrValidation)
		}
		if o.NextPageSelector != "" {
			if _, err := cascadia.Compile(o.NextPageSelector); err != nil {
				return opts, fmt.Errorf("%w: nextPageSelector: %v", repository.ErrValidation, err)
			}
		}
		opts = o.WithDefaults()
	}
	return opts, nil
}
