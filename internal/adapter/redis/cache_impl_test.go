package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scrape-orchestrator/internal/entity"
)

func TestCacheRoundTripWithinTTL(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	c := NewCacheRepo(client)

	title := "Kettle"
	want := &entity.ScrapeResult{
		Items: []entity.ScrapedItem{{
			Title:     &title,
			SourceURL: "https://shop.example.com/kettle",
			Page:      1,
			ScrapedAt: time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
		}},
		TotalPages: 1,
		Success:    true,
	}
	require.NoError(t, c.Put(ctx, "https://shop.example.com/kettle", want, time.Hour))

	got, hit, err := c.Get(ctx, "https://shop.example.com/kettle")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want, got)
}

func TestCacheMissAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	c := NewCacheRepo(client)

	require.NoError(t, c.Put(ctx, "https://shop.example.com/a", &entity.ScrapeResult{Success: true}, time.Minute))
	mr.FastForward(time.Minute + time.Second)

	_, hit, err := c.Get(ctx, "https://shop.example.com/a")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheErrorIsReported(t *testing.T) {
	mr, client := newTestClient(t)
	c := NewCacheRepo(client)
	mr.Close()

	_, hit, err := c.Get(context.Background(), "https://shop.example.com/a")
	assert.Error(t, err)
	assert.False(t, hit)
}
