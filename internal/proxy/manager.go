// Package proxy keeps the pool of egress proxies and their health.
package proxy

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/metrics"
)

const defaultSweepConcurrency = 16

// Prober checks whether a proxy can carry traffic.
type Prober interface {
	Probe(ctx context.Context, p entity.Proxy) error
}

type entry struct {
	proxy  entity.Proxy
	active atomic.Bool
}

// Manager selects proxies for jobs and demotes the ones that fail. Only
// Sweep puts a demoted proxy back into rotation.
type Manager struct {
	mu      sync.RWMutex
	entries []*entry
	byAddr  map[string]*entry

	repo   repository.ProxyRepository
	prober Prober
	logger *zap.Logger

	sweepConcurrency int
}

// NewManager creates an empty pool. repo may be nil, in which case the pool
// lives in memory only.
func NewManager(repo repository.ProxyRepository, prober Prober, logger *zap.Logger) *Manager {
	return &Manager{
		byAddr:           make(map[string]*entry),
		repo:             repo,
		prober:           prober,
		logger:           logger,
		sweepConcurrency: defaultSweepConcurrency,
	}
}

// Load replaces the in-memory pool with the contents of the durable store.
func (m *Manager) Load(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	proxies, err := m.repo.List(ctx)
	if err != nil {
		return err
	}

	entries := make([]*entry, 0, len(proxies))
	byAddr := make(map[string]*entry, len(proxies))
	for _, p := range proxies {
		e := &entry{proxy: *p}
		e.active.Store(p.Active)
		entries = append(entries, e)
		byAddr[p.Addr()] = e
	}

	m.mu.Lock()
	m.entries = entries
	m.byAddr = byAddr
	m.mu.Unlock()

	m.refreshGauge()
	m.logger.Info("proxy pool loaded", zap.Int("total", len(entries)))
	return nil
}

// Add puts new proxies into the pool as active and persists them. Proxies
// already known by ip:port are skipped. It returns how many were added.
func (m *Manager) Add(ctx context.Context, proxies []entity.Proxy) int {
	added := 0
	for _, p := range proxies {
		p.Active = true
		if m.repo != nil {
			if _, err := m.repo.Upsert(ctx, &p); err != nil {
				metrics.PersistenceFailures.WithLabelValues("proxies").Inc()
				m.logger.Warn("failed to persist proxy", zap.String("proxy", p.Addr()), zap.Error(err))
			}
		}

		m.mu.Lock()
		if _, ok := m.byAddr[p.Addr()]; !ok {
			e := &entry{proxy: p}
			e.active.Store(true)
			m.entries = append(m.entries, e)
			m.byAddr[p.Addr()] = e
			added++
		}
		m.mu.Unlock()
	}
	m.refreshGauge()
	return added
}

// Source lists proxies published outside the service.
type Source interface {
	Fetch(ctx context.Context) ([]entity.Proxy, error)
}

// Import fetches proxies from src and adds the unknown ones to the pool.
func (m *Manager) Import(ctx context.Context, src Source) (int, error) {
	proxies, err := src.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	added := m.Add(ctx, proxies)
	m.logger.Info("proxy list imported", zap.Int("fetched", len(proxies)), zap.Int("added", added))
	return added, nil
}

// SelectProxy picks uniformly at random among active proxies.
func (m *Manager) SelectProxy() (*entity.Proxy, error) {
	m.mu.RLock()
	active := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.active.Load() {
			active = append(active, e)
		}
	}
	m.mu.RUnlock()

	if len(active) == 0 {
		return nil, repository.ErrNoProxyAvailable
	}
	p := active[rand.IntN(len(active))].proxy
	p.Active = true
	return &p, nil
}

// RecordFailure demotes p when err points at the proxy or the network. It
// reports whether this call changed p from active to inactive.
func (m *Manager) RecordFailure(ctx context.Context, p *entity.Proxy, err error) bool {
	if p == nil || !IsProxyError(err) {
		return false
	}

	m.mu.RLock()
	e, ok := m.byAddr[p.Addr()]
	m.mu.RUnlock()
	if !ok || !e.active.CompareAndSwap(true, false) {
		return false
	}

	metrics.ProxyDemotions.Inc()
	m.refreshGauge()
	m.logger.Warn("proxy demoted", zap.String("proxy", p.Addr()), zap.Error(err))
	m.persist(ctx, e, false)
	return true
}

// Sweep probes every known proxy and sets its flag from the outcome. Flags
// are left alone for probes still running when ctx ends.
func (m *Manager) Sweep(ctx context.Context) error {
	m.mu.RLock()
	entries := make([]*entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.sweepConcurrency)
	var healthy atomic.Int64
	for _, e := range entries {
		g.Go(func() error {
			err := m.prober.Probe(gctx, e.proxy)
			if gctx.Err() != nil {
				// A probe cut short says nothing about the proxy.
				return nil
			}
			ok := err == nil
			if ok {
				healthy.Add(1)
			} else {
				m.logger.Debug("proxy probe failed", zap.String("proxy", e.proxy.Addr()), zap.Error(err))
			}
			e.active.Store(ok)
			m.persist(gctx, e, ok)
			return nil
		})
	}
	_ = g.Wait()

	m.refreshGauge()
	m.logger.Info("proxy sweep finished",
		zap.Int("total", len(entries)),
		zap.Int64("active", healthy.Load()),
	)
	return ctx.Err()
}

// Stats returns the pool size and how many entries are active.
func (m *Manager) Stats() (total, active int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.active.Load() {
			active++
		}
	}
	return len(m.entries), active
}

func (m *Manager) persist(ctx context.Context, e *entry, active bool) {
	if m.repo == nil || e.proxy.ID == 0 {
		return
	}
	if err := m.repo.SetActive(ctx, e.proxy.ID, active, time.Now().UTC()); err != nil {
		metrics.PersistenceFailures.WithLabelValues("proxies").Inc()
		m.logger.Warn("failed to persist proxy state",
			zap.String("proxy", e.proxy.Addr()),
			zap.Bool("active", active),
			zap.Error(err),
		)
	}
}

func (m *Manager) refreshGauge() {
	_, active := m.Stats()
	metrics.ActiveProxies.Set(float64(active))
}
