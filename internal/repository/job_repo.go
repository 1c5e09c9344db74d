package repository

import (
	"context"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// JobRepository is the durable record of scrape jobs.
type JobRepository interface {
	// Create inserts a pending job.
	Create(ctx context.Context, job *entity.ScrapeJob) error
	// Finish writes a terminal status, only if the stored job is still pending.
	// It returns ErrStatusTerminal when the row was already finished and
	// ErrJobNotFound when no row exists.
	Finish(ctx context.Context, job *entity.ScrapeJob) error
	// FindByID loads a job or returns ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*entity.ScrapeJob, error)
}
