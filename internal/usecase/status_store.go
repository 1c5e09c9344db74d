package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/metrics"
)

// StatusStore tracks job lifecycles. Terminal jobs are served from the
// in-memory map; a job memory still holds as pending is re-read from the
// durable repository, since another instance may have finished it. A job reaches a terminal status at
// most once; later attempts fail with repository.ErrStatusTerminal.
type StatusStore struct {
	mu   sync.RWMutex
	jobs map[string]*entity.ScrapeJob

	repo   repository.JobRepository
	logger *zap.Logger
}

func NewStatusStore(repo repository.JobRepository, logger *zap.Logger) *StatusStore {
	return &StatusStore{
		jobs:   make(map[string]*entity.ScrapeJob),
		repo:   repo,
		logger: logger,
	}
}

// Register records a new pending job.
func (s *StatusStore) Register(ctx context.Context, job *entity.ScrapeJob) {
	s.mu.Lock()
	s.jobs[job.ID] = job.Clone()
	s.mu.Unlock()

	if err := s.repo.Create(ctx, job); err != nil {
		metrics.PersistenceFailures.WithLabelValues("scraping_jobs").Inc()
		s.logger.Error("failed to persist job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Finish stores job's terminal status. The durable write is conditional on
// the stored row still being pending; if it fails for any other reason the
// in-memory record is still updated.
func (s *StatusStore) Finish(ctx context.Context, job *entity.ScrapeJob) error {
	if !job.Status.IsTerminal() {
		return errors.New("finish requires a terminal status")
	}

	s.mu.RLock()
	known, ok := s.jobs[job.ID]
	terminal := ok && known.Status.IsTerminal()
	s.mu.RUnlock()
	if terminal {
		return repository.ErrStatusTerminal
	}

	err := s.repo.Finish(ctx, job)
	switch {
	case errors.Is(err, repository.ErrStatusTerminal):
		// Another instance got there first; adopt its outcome.
		if stored, ferr := s.repo.FindByID(ctx, job.ID); ferr == nil {
			s.mu.Lock()
			s.jobs[job.ID] = stored
			s.mu.Unlock()
		}
		return repository.ErrStatusTerminal
	case err != nil:
		metrics.PersistenceFailures.WithLabelValues("scraping_jobs").Inc()
		s.logger.Error("failed to persist job status",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Without a durable write to arbitrate, the first in-memory writer wins.
	if err != nil {
		if known, ok := s.jobs[job.ID]; ok && known.Status.IsTerminal() {
			return repository.ErrStatusTerminal
		}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job, or repository.ErrJobNotFound.
func (s *StatusStore) Get(ctx context.Context, id string) (*entity.ScrapeJob, error) {
	s.mu.RLock()
	known, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok && known.Status.IsTerminal() {
		return known.Clone(), nil
	}

	stored, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if ok {
			return known.Clone(), nil
		}
		return nil, err
	}
	if ok && stored.Status.IsTerminal() {
		s.mu.Lock()
		if cur, still := s.jobs[id]; still && !cur.Status.IsTerminal() {
			s.jobs[id] = stored.Clone()
		}
		s.mu.Unlock()
	}
	return stored, nil
}

// Prune drops terminal jobs that finished before cutoff from memory. They
// stay reachable through the durable repository.
func (s *StatusStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}
