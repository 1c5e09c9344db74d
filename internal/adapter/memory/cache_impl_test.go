package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scrape-orchestrator/internal/entity"
)

func strPtr(s string) *string { return &s }

func sampleResult() *entity.ScrapeResult {
	return &entity.ScrapeResult{
		Items: []entity.ScrapedItem{{
			Title:     strPtr("Kettle"),
			Price:     nil,
			SourceURL: "https://example.com/kettle",
			Page:      1,
			ScrapedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}},
		TotalPages: 1,
		Success:    true,
	}
}

func TestResultCacheHitWithinTTL(t *testing.T) {
	ctx := context.Background()
	c := NewResultCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	want := sampleResult()
	require.NoError(t, c.Put(ctx, "https://example.com/kettle", want, time.Hour))

	got, hit, err := c.Get(ctx, "https://example.com/kettle")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want, got)

	got.Items[0].Title = strPtr("mutated")
	again, _, _ := c.Get(ctx, "https://example.com/kettle")
	assert.Equal(t, "Kettle", *again.Items[0].Title)
}

func TestResultCacheMissAfterExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewResultCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "https://example.com/a", sampleResult(), time.Minute))
	now = now.Add(time.Minute)

	_, hit, err := c.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, c.Len())
}

func TestResultCacheEvictsAtCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewResultCache(2)

	require.NoError(t, c.Put(ctx, "https://example.com/1", sampleResult(), time.Hour))
	require.NoError(t, c.Put(ctx, "https://example.com/2", sampleResult(), time.Hour))
	require.NoError(t, c.Put(ctx, "https://example.com/3", sampleResult(), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestResultCacheEvictExpired(t *testing.T) {
	ctx := context.Background()
	c := NewResultCache(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "https://example.com/short", sampleResult(), time.Second))
	require.NoError(t, c.Put(ctx, "https://example.com/long", sampleResult(), time.Hour))
	now = now.Add(time.Minute)

	c.evictExpired()
	assert.Equal(t, 1, c.Len())
}
