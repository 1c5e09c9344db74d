package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/adapter/memory"
	"github.com/user/scrape-orchestrator/internal/browser"
	"github.com/user/scrape-orchestrator/internal/browser/browsertest"
	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/resolver"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.JobEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt entity.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) forJob(id string) []entity.JobEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []entity.JobEvent
	for _, e := range p.events {
		if e.JobID == id {
			out = append(out, e)
		}
	}
	return out
}

type countingExtractor struct {
	calls  atomic.Int32
	result *entity.ScrapeResult
	err    error
}

func (e *countingExtractor) Extract(_ context.Context, job *entity.ScrapeJob) (*entity.ScrapeResult, error) {
	e.calls.Add(1)
	if e.err != nil {
		return &entity.ScrapeResult{Items: []entity.ScrapedItem{}, Error: e.err.Error()}, e.err
	}
	res := e.result.Clone()
	for i := range res.Items {
		res.Items[i].SourceURL = job.URL
	}
	return res, nil
}

func strPtr(s string) *string { return &s }

func newExtractor(driver *browsertest.Driver) Extractor {
	log := zap.NewNop()
	return NewExtractor(
		browser.NewPool(driver, 2, log),
		nil,
		resolver.New(log),
		ExtractionConfig{FieldTimeout: 10 * time.Millisecond, BaseBackoff: time.Millisecond},
		log,
	)
}

type env struct {
	cache     *memory.ResultCache
	jobs      *memory.JobRepository
	data      *memory.ScrapedDataRepository
	queue     *memory.JobQueue
	status    *StatusStore
	publisher *recordingPublisher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	jobs := memory.NewJobRepository()
	return &env{
		cache:     memory.NewResultCache(100),
		jobs:      jobs,
		data:      memory.NewScrapedDataRepository(),
		queue:     memory.NewJobQueue(time.Minute),
		status:    NewStatusStore(jobs, zap.NewNop()),
		publisher: &recordingPublisher{},
	}
}

func (e *env) processor(ex Extractor) Processor {
	return NewProcessor(e.cache, ex, e.data, e.status, e.publisher, time.Hour, zap.NewNop())
}

func (e *env) manager() JobManager {
	return NewJobManager(e.queue, e.cache, e.data, e.status, e.publisher, zap.NewNop())
}

func pendingJob(id, url string) *entity.ScrapeJob {
	return &entity.ScrapeJob{
		ID:          id,
		URL:         url,
		SearchTerms: entity.SearchTerms{Title: "kettle"},
		Selectors:   entity.Selectors{entity.FieldTitle: "h1"},
		Options:     entity.DefaultScrapeOptions(),
		Status:      entity.JobStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}
