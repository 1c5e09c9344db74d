package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/adapter/memory"
	"github.com/user/scrape-orchestrator/internal/entity"
)

type panickingProcessor struct {
	Processor
}

func (panickingProcessor) Process(context.Context, *entity.ScrapeJob) *entity.ScrapeJob {
	panic("engine exploded")
}

func TestWorkerPoolProcessesQueuedJobs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := &countingExtractor{result: fixedResult()}

	pool := NewWorkerPool(e.queue, e.processor(ex), e.status, WorkerPoolConfig{
		Workers:  3,
		PollWait: 20 * time.Millisecond,
	}, zap.NewNop())
	pool.Start(ctx)
	defer pool.Stop()

	m := e.manager()
	var ids []string
	for _, url := range []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"} {
		id, err := m.Submit(ctx, ScrapeRequest{URLs: []string{url}, SearchTerms: entity.SearchTerms{Title: "x"}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := e.status.Get(ctx, id)
			if err != nil || job.Status != entity.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), ex.calls.Load())
}

func TestWorkerPoolDeadLettersAfterMaxDeliveries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.queue = memory.NewJobQueue(time.Nanosecond)
	proc := e.processor(&countingExtractor{result: fixedResult()})

	job := pendingJob("dl", "https://a.example.com")
	e.status.Register(ctx, job)
	require.NoError(t, e.queue.Enqueue(ctx, job))

	pool := NewWorkerPool(e.queue, panickingProcessor{proc}, e.status, WorkerPoolConfig{MaxDeliveries: 2}, zap.NewNop())
	log := zap.NewNop()

	// Two deliveries panic and stay unacked; the reaper requeues them each time.
	for range 2 {
		d, err := e.queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		pool.handle(ctx, d, log)
		size, _ := e.queue.Size(ctx)
		require.Equal(t, int64(0), size)
		requeueAll(t, e)
	}

	pool.processor = proc
	d, err := e.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Attempt)
	pool.handle(ctx, d, log)

	got, err := e.status.Get(ctx, "dl")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Len(t, e.queue.DeadLettered(), 1)
	require.Len(t, e.publisher.forJob("dl"), 1)
	assert.Equal(t, entity.EventJobFailed, e.publisher.forJob("dl")[0].Type)
}

// requeueAll waits out the nanosecond lease and runs the reaper once.
func requeueAll(t *testing.T, e *env) {
	t.Helper()
	time.Sleep(time.Millisecond)
	n, err := e.queue.RecoverExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
