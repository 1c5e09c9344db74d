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

func TestJobQueueAckRemovesDelivery(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(time.Minute)

	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "b"}))

	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", d.Job.ID)
	assert.Equal(t, int64(1), d.Attempt)
	require.NoError(t, q.Ack(ctx, d))

	size, _ := q.Size(ctx)
	assert.Equal(t, int64(1), size)
}

func TestJobQueueDequeueTimesOut(t *testing.T) {
	q := NewJobQueue(time.Minute)

	_, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)
}

func TestJobQueueDequeueWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(time.Minute)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Enqueue(ctx, &entity.ScrapeJob{ID: "late"})
	}()

	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", d.Job.ID)
}

func TestJobQueueRedeliversExpiredLease(t *testing.T) {
	ctx := context.Background()
	q := NewJobQueue(time.Minute)
	now := time.Now()
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "a"}))
	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	n, _ := q.RecoverExpired(ctx)
	assert.Equal(t, 0, n, "lease still valid")

	now = now.Add(2 * time.Minute)
	n, _ = q.RecoverExpired(ctx)
	assert.Equal(t, 1, n)

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", second.Job.ID)
	assert.Equal(t, int64(2), second.Attempt)
	assert.NotEqual(t, first.Receipt, second.Receipt)

	require.NoError(t, q.DeadLetter(ctx, second))
	assert.Len(t, q.DeadLettered(), 1)
	size, _ := q.Size(ctx)
	assert.Equal(t, int64(0), size)
}
