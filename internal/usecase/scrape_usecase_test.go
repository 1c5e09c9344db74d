package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scrape-orchestrator/internal/browser/browsertest"
	"github.com/user/scrape-orchestrator/internal/entity"
)

func fixedResult() *entity.ScrapeResult {
	return &entity.ScrapeResult{
		Items: []entity.ScrapedItem{{
			Title:     strPtr("Kettle"),
			Page:      1,
			ScrapedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}},
		TotalPages: 1,
		Success:    true,
	}
}

func TestProcessServesCachedResultWithoutEngine(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	url := "https://shop.example.com/cached"

	cached := fixedResult()
	cached.Items[0].SourceURL = url
	require.NoError(t, e.cache.Put(ctx, url, cached, time.Hour))

	job := pendingJob("job-b", url)
	e.status.Register(ctx, job)

	ex := &countingExtractor{result: fixedResult()}
	done := e.processor(ex).Process(ctx, job)

	assert.Equal(t, int32(0), ex.calls.Load())
	assert.Equal(t, entity.JobStatusCompleted, done.Status)
	assert.Equal(t, cached, done.Result)

	events := e.publisher.forJob("job-b")
	require.Len(t, events, 1)
	assert.Equal(t, entity.EventJobComplete, events[0].Type)
}

func TestProcessPersistsAndCachesFreshResult(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	url := "https://shop.example.com/fresh"

	job := pendingJob("job-1", url)
	e.status.Register(ctx, job)
	done := e.processor(&countingExtractor{result: fixedResult()}).Process(ctx, job)
	require.Equal(t, entity.JobStatusCompleted, done.Status)

	items, err := e.data.FindByURL(ctx, url)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	cached, hit, err := e.cache.Get(ctx, url)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, done.Result, cached)

	stored, err := e.status.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
}

func TestProcessNavigationFailuresFailJobOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	url := "https://shop.example.com/down"

	driver := browsertest.NewDriver()
	driver.Pages[url] = &browsertest.Page{Text: map[string]string{"h1": "Kettle"}}
	boom := errors.New("net::ERR_TIMED_OUT")
	driver.NavigateErrs[url] = []error{boom, boom, boom}

	job := pendingJob("job-c", url)
	e.status.Register(ctx, job)
	done := e.processor(newExtractor(driver)).Process(ctx, job)

	assert.Equal(t, entity.JobStatusFailed, done.Status)
	assert.Contains(t, done.Error, "ERR_TIMED_OUT")

	events := e.publisher.forJob("job-c")
	require.Len(t, events, 1)
	assert.Equal(t, entity.EventJobFailed, events[0].Type)
	assert.NotEmpty(t, events[0].Error)

	_, hit, _ := e.cache.Get(ctx, url)
	assert.False(t, hit, "failures are not cached")
}

func TestProcessTwiceKeepsFirstOutcome(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	job := pendingJob("job-1", "https://shop.example.com/x")
	e.status.Register(ctx, job)

	e.processor(&countingExtractor{result: fixedResult()}).Process(ctx, job)
	e.processor(&countingExtractor{err: errors.New("boom")}).Process(ctx, job)

	stored, err := e.status.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Len(t, e.publisher.forJob("job-1"), 1)
}

func TestAbandonFailsJob(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	job := pendingJob("job-dl", "https://shop.example.com/x")
	e.status.Register(ctx, job)

	done := e.processor(&countingExtractor{}).Abandon(ctx, job, "too many deliveries")
	assert.Equal(t, entity.JobStatusFailed, done.Status)

	events := e.publisher.forJob("job-dl")
	require.Len(t, events, 1)
	assert.Equal(t, "too many deliveries", events[0].Error)
}
