package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

func TestJobRepositoryFinishOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()

	job := &entity.ScrapeJob{ID: "j1", Status: entity.JobStatusPending}
	require.NoError(t, repo.Create(ctx, job))

	done := job.Clone()
	done.Complete(&entity.ScrapeResult{Success: true}, time.Now())
	require.NoError(t, repo.Finish(ctx, done))

	failed := job.Clone()
	failed.Fail("late failure", time.Now())
	assert.ErrorIs(t, repo.Finish(ctx, failed), repository.ErrStatusTerminal)

	got, err := repo.FindByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, got.Status)
}

func TestJobRepositoryNotFound(t *testing.T) {
	repo := NewJobRepository()

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)

	job := &entity.ScrapeJob{ID: "missing", Status: entity.JobStatusFailed}
	assert.ErrorIs(t, repo.Finish(context.Background(), job), repository.ErrJobNotFound)
}

func TestScrapedDataNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapedDataRepository()
	title := func(s string) *string { return &s }

	require.NoError(t, repo.SaveResult(ctx, "https://example.com", &entity.ScrapeResult{
		Items: []entity.ScrapedItem{{Title: title("first"), Page: 1}},
	}))
	require.NoError(t, repo.SaveResult(ctx, "https://example.com", &entity.ScrapeResult{
		Items: []entity.ScrapedItem{{Title: title("second"), Page: 1}},
	}))

	items, err := repo.FindByURL(ctx, "https://example.com")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", *items[0].Title)
	assert.Equal(t, "https://example.com", items[0].SourceURL)

	none, err := repo.FindByURL(ctx, "https://other.example.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}
