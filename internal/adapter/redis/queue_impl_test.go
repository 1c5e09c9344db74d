package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestQueueFIFOAndAck(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)

	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "first", URL: "https://a.example.com"}))
	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "second", URL: "https://b.example.com"}))

	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", d.Job.ID)
	assert.Equal(t, "https://a.example.com", d.Job.URL)
	assert.Equal(t, int64(1), d.Attempt)

	processing, err := mr.List(processingKey)
	require.NoError(t, err)
	assert.Len(t, processing, 1)

	require.NoError(t, q.Ack(ctx, d))
	assert.False(t, mr.Exists(processingKey))
	assert.False(t, mr.Exists(leasesKey))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestQueueDequeueEmpty(t *testing.T) {
	_, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)

	_, err := q.Dequeue(context.Background(), time.Second)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)
}

func TestQueueRedeliversExpiredLease(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)
	now := time.Now()
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "job"}))
	_, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	n, err := q.RecoverExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now = now.Add(2 * time.Minute)
	n, err = q.RecoverExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(processingKey))

	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job", again.Job.ID)
	assert.Equal(t, int64(2), again.Attempt)
}

func TestQueueRecoverSkipsAckedDelivery(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)
	now := time.Now()
	q.now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "job"}))
	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	// acked between lease expiry and the reaper running
	_, err = client.LRem(ctx, processingKey, 1, d.Receipt).Result()
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	n, err := q.RecoverExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, mr.Exists(readyKey))
}

func TestQueueDeadLetter(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)

	require.NoError(t, q.Enqueue(ctx, &entity.ScrapeJob{ID: "poison"}))
	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.DeadLetter(ctx, d))

	dead, err := q.DeadLetterSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
	assert.False(t, mr.Exists(processingKey))
	assert.Equal(t, "", mr.HGet(attemptsKey, "poison"))
}

// cancelAfterMove cancels the caller's context as soon as BLMOVE returns.
type cancelAfterMove struct {
	cancel context.CancelFunc
}

func (h cancelAfterMove) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h cancelAfterMove) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "blmove" {
			h.cancel()
		}
		return err
	}
}

func (h cancelAfterMove) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestQueueDequeueLeasesAfterCancel(t *testing.T) {
	mr, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)
	require.NoError(t, q.Enqueue(context.Background(), &entity.ScrapeJob{ID: "j1"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.AddHook(cancelAfterMove{cancel: cancel})

	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "j1", d.Job.ID)
	assert.True(t, mr.Exists(leasesKey), "moved job still gets a lease")
}

func TestQueueRecoverAdoptsUnleasedDelivery(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	q := NewQueueRepo(client, time.Minute)
	now := time.Now()
	q.now = func() time.Time { return now }

	// moved into processing but never leased
	_, err := client.LPush(ctx, processingKey, `{"id":"orphan"}`).Result()
	require.NoError(t, err)

	n, err := q.RecoverExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "an unleased entry first gets a full lease")
	assert.True(t, mr.Exists(leasesKey))

	now = now.Add(2 * time.Minute)
	n, err = q.RecoverExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(processingKey))

	d, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "orphan", d.Job.ID)
}
