// Package browser bounds how many isolated browser sessions run at once.
package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/metrics"
)

// Pool hands out sessions from a driver, at most max at a time. Callers
// beyond the bound block in Acquire until a session is released.
type Pool struct {
	driver repository.BrowserDriver
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewPool(driver repository.BrowserDriver, max int64, logger *zap.Logger) *Pool {
	return &Pool{
		driver: driver,
		sem:    semaphore.NewWeighted(max),
		logger: logger,
	}
}

// Acquire waits for a free slot and opens a new isolated session. The
// returned session releases its slot when closed.
func (p *Pool) Acquire(ctx context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for browser slot: %w", err)
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.sem.Release(1)
		return nil, fmt.Errorf("browser pool is closed")
	}

	sess, err := p.driver.NewSession(ctx, opts)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	metrics.BrowserSessions.Inc()
	return &pooledSession{BrowserSession: sess, pool: p}, nil
}

// Close stops handing out sessions and shuts the driver down.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.driver.Close()
}

type pooledSession struct {
	repository.BrowserSession
	pool *Pool
	once sync.Once
}

func (s *pooledSession) Close() error {
	var err error
	s.once.Do(func() {
		err = s.BrowserSession.Close()
		s.pool.sem.Release(1)
		metrics.BrowserSessions.Dec()
		if err != nil {
			s.pool.logger.Warn("failed to close browser session", zap.Error(err))
		}
	})
	return err
}
