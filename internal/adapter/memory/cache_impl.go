// Package memory holds in-process adapters used when STORAGE=memory and in
// tests. Nothing here survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/pkg/utils"
)

type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// ResultCache keeps serialized results in a map. Results are stored as JSON
// so a hit decodes to exactly what was put, never a shared pointer.
type ResultCache struct {
	mu         sync.RWMutex
	store      map[string]*cacheEntry
	maxEntries int
	now        func() time.Time
}

func NewResultCache(maxEntries int) *ResultCache {
	return &ResultCache{
		store:      make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *ResultCache) Get(_ context.Context, url string) (*entity.ScrapeResult, bool, error) {
	key := utils.HashURL(url)

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.store[key]; ok && cur == e {
			delete(c.store, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	var result entity.ScrapeResult
	if err := json.Unmarshal(e.payload, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (c *ResultCache) Put(_ context.Context, url string, result *entity.ScrapeResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := utils.HashURL(url)
	// Evict one random entry at capacity; map iteration order is random.
	if _, exists := c.store[key]; !exists && c.maxEntries > 0 && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &cacheEntry{payload: payload, expiresAt: c.now().Add(ttl)}
	return nil
}

// Run evicts expired entries every interval until ctx is done.
func (c *ResultCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *ResultCache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if !now.Before(e.expiresAt) {
			delete(c.store, k)
		}
	}
}

func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
