package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

// JobRepoImpl provides a concrete implementation for the JobRepository interface using PostgreSQL.
type JobRepoImpl struct {
	db *pgxpool.Pool
}

// NewJobRepo creates a new instance of JobRepoImpl.
func NewJobRepo(db *pgxpool.Pool) *JobRepoImpl {
	return &JobRepoImpl{db: db}
}

func (r *JobRepoImpl) Create(ctx context.Context, job *entity.ScrapeJob) error {
	terms, err := json.Marshal(job.SearchTerms)
	if err != nil {
		return err
	}
	selectors, err := json.Marshal(job.Selectors)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scraping_jobs (job_id, source_url, search_terms, selectors, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6);
	`
	if _, err := r.db.Exec(ctx, query, job.ID, job.URL, terms, selectors, job.Status, job.CreatedAt); err != nil {
		return fmt.Errorf("%w: insert job %s: %w", repository.ErrPersistenceFailure, job.ID, err)
	}
	return nil
}

// Finish only updates rows that are still pending, so the first terminal
// status written wins.
func (r *JobRepoImpl) Finish(ctx context.Context, job *entity.ScrapeJob) error {
	var result []byte
	if job.Result != nil {
		var err error
		if result, err = json.Marshal(job.Result); err != nil {
			return err
		}
	}
	updatedAt := time.Now().UTC()
	if job.CompletedAt != nil {
		updatedAt = *job.CompletedAt
	}

	query := `
		UPDATE scraping_jobs
		SET status = $2, result = $3, error = NULLIF($4, ''), updated_at = $5
		WHERE job_id = $1 AND status = 'pending';
	`
	tag, err := r.db.Exec(ctx, query, job.ID, job.Status, result, job.Error, updatedAt)
	if err != nil {
		return fmt.Errorf("%w: finish job %s: %w", repository.ErrPersistenceFailure, job.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scraping_jobs WHERE job_id = $1)`, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: check job %s: %w", repository.ErrPersistenceFailure, job.ID, err)
	}
	if !exists {
		return repository.ErrJobNotFound
	}
	return repository.ErrStatusTerminal
}

func (r *JobRepoImpl) FindByID(ctx context.Context, id string) (*entity.ScrapeJob, error) {
	query := `
		SELECT job_id, source_url, search_terms, selectors, status, result, COALESCE(error, ''), created_at, updated_at
		FROM scraping_jobs
		WHERE job_id = $1;
	`
	var (
		job                      entity.ScrapeJob
		terms, selectors, result []byte
		updatedAt                time.Time
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.URL,
		&terms,
		&selectors,
		&job.Status,
		&result,
		&job.Error,
		&job.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(terms, &job.SearchTerms); err != nil {
		return nil, fmt.Errorf("decode search terms of job %s: %w", id, err)
	}
	if len(selectors) > 0 {
		if err := json.Unmarshal(selectors, &job.Selectors); err != nil {
			return nil, fmt.Errorf("decode selectors of job %s: %w", id, err)
		}
	}
	if len(result) > 0 {
		job.Result = &entity.ScrapeResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", id, err)
		}
	}
	if job.Status.IsTerminal() {
		job.CompletedAt = &updatedAt
	}
	return &job, nil
}
