package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ProxyRepository is an in-memory repository.ProxyRepository.
type ProxyRepository struct {
	mu      sync.RWMutex
	nextID  int64
	proxies []*entity.Proxy
}

func NewProxyRepository() *ProxyRepository {
	return &ProxyRepository{}
}

func (r *ProxyRepository) List(context.Context) ([]*entity.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Proxy, len(r.proxies))
	for i, p := range r.proxies {
		c := *p
		out[i] = &c
	}
	return out, nil
}

func (r *ProxyRepository) Upsert(_ context.Context, p *entity.Proxy) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.proxies {
		if existing.Addr() == p.Addr() {
			p.ID = existing.ID
			return false, nil
		}
	}
	r.nextID++
	p.ID = r.nextID
	c := *p
	r.proxies = append(r.proxies, &c)
	return true, nil
}

func (r *ProxyRepository) SetActive(_ context.Context, id int64, active bool, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.proxies {
		if p.ID == id {
			p.Active = active
			t := checkedAt
			p.LastCheckedAt = &t
			return nil
		}
	}
	return fmt.Errorf("proxy %d not found", id)
}
