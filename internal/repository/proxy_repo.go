package repository

import (
	"context"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ProxyRepository persists the proxy pool for recovery after restart.
type ProxyRepository interface {
	List(ctx context.Context) ([]*entity.Proxy, error)
	// Upsert inserts a proxy unless ip:port already exists, and fills in its ID.
	// It reports whether a new row was created.
	Upsert(ctx context.Context, p *entity.Proxy) (bool, error)
	SetActive(ctx context.Context, id int64, active bool, checkedAt time.Time) error
}
