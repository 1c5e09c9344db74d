package memory

import (
	"context"
	"sync"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

// JobRepository is an in-memory repository.JobRepository.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*entity.ScrapeJob
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]*entity.ScrapeJob)}
}

func (r *JobRepository) Create(_ context.Context, job *entity.ScrapeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepository) Finish(_ context.Context, job *entity.ScrapeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return repository.ErrJobNotFound
	}
	if stored.Status != entity.JobStatusPending {
		return repository.ErrStatusTerminal
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepository) FindByID(_ context.Context, id string) (*entity.ScrapeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job.Clone(), nil
}
