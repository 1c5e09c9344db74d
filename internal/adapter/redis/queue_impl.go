package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

const (
	readyKey      = "scrape:queue:ready"
	processingKey = "scrape:queue:processing"
	leasesKey     = "scrape:queue:leases"
	attemptsKey   = "scrape:queue:attempts"
	deadKey       = "scrape:queue:dead"
)

// recoverScript moves every processing entry whose lease deadline has passed
// back to the head of the ready list. An entry acked in the meantime is no
// longer in the processing list and is only dropped from the lease set.
// Processing entries without a lease, left by a dequeue that failed between
// the move and the lease write, are given one that expires at ARGV[2].
var recoverScript = redis.NewScript(`
for _, payload in ipairs(redis.call('LRANGE', KEYS[2], 0, -1)) do
	if not redis.call('ZSCORE', KEYS[1], payload) then
		redis.call('ZADD', KEYS[1], ARGV[2], payload)
	end
end
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local n = 0
for _, payload in ipairs(expired) do
	redis.call('ZREM', KEYS[1], payload)
	if redis.call('LREM', KEYS[2], 1, payload) > 0 then
		redis.call('RPUSH', KEYS[3], payload)
		n = n + 1
	end
end
return n
`)

// QueueRepoImpl is a reliable job queue on Redis lists. Jobs are LPUSHed to
// the ready list and BLMOVEd into the processing list, where they stay until
// acked. A lease sorted set records when each delivery may be reclaimed.
type QueueRepoImpl struct {
	client   *redis.Client
	leaseFor time.Duration
	now      func() time.Time
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client, leaseFor time.Duration) *QueueRepoImpl {
	return &QueueRepoImpl{client: client, leaseFor: leaseFor, now: time.Now}
}

func (r *QueueRepoImpl) Enqueue(ctx context.Context, job *entity.ScrapeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return r.client.LPush(ctx, readyKey, payload).Err()
}

func (r *QueueRepoImpl) Dequeue(ctx context.Context, wait time.Duration) (*repository.Delivery, error) {
	payload, err := r.client.BLMove(ctx, readyKey, processingKey, "RIGHT", "LEFT", wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrQueueEmpty
		}
		return nil, err
	}

	// The job now sits in the processing list; cancelling ctx must not stop
	// it from getting a lease.
	leaseCtx := context.WithoutCancel(ctx)

	var job entity.ScrapeJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// A payload that cannot be decoded would be redelivered forever.
		_ = r.client.LRem(leaseCtx, processingKey, 1, payload).Err()
		_ = r.client.LPush(leaseCtx, deadKey, payload).Err()
		return nil, fmt.Errorf("decode job payload: %w", err)
	}

	deadline := r.now().Add(r.leaseFor).UnixMilli()
	pipe := r.client.TxPipeline()
	pipe.ZAdd(leaseCtx, leasesKey, redis.Z{Score: float64(deadline), Member: payload})
	attempt := pipe.HIncrBy(leaseCtx, attemptsKey, job.ID, 1)
	if _, err := pipe.Exec(leaseCtx); err != nil {
		return nil, fmt.Errorf("lease job %s: %w", job.ID, err)
	}

	return &repository.Delivery{Job: &job, Attempt: attempt.Val(), Receipt: payload}, nil
}

func (r *QueueRepoImpl) Ack(ctx context.Context, d *repository.Delivery) error {
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, d.Receipt)
	pipe.ZRem(ctx, leasesKey, d.Receipt)
	pipe.HDel(ctx, attemptsKey, d.Job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *QueueRepoImpl) DeadLetter(ctx context.Context, d *repository.Delivery) error {
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, d.Receipt)
	pipe.ZRem(ctx, leasesKey, d.Receipt)
	pipe.HDel(ctx, attemptsKey, d.Job.ID)
	pipe.LPush(ctx, deadKey, d.Receipt)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *QueueRepoImpl) RecoverExpired(ctx context.Context) (int, error) {
	now := r.now()
	n, err := recoverScript.Run(ctx, r.client,
		[]string{leasesKey, processingKey, readyKey},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(r.leaseFor).UnixMilli(), 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("recover expired leases: %w", err)
	}
	return n, nil
}

// Size returns the current number of jobs waiting in the ready list.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, readyKey).Result()
}

// DeadLetterSize returns the number of jobs in the dead-letter list.
func (r *QueueRepoImpl) DeadLetterSize(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, deadKey).Result()
}
