package repository

import (
	"context"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// ResultCache maps a target URL to a previously computed result. It is
// advisory: callers treat any error as a miss.
type ResultCache interface {
	Get(ctx context.Context, url string) (*entity.ScrapeResult, bool, error)
	Put(ctx context.Context, url string, result *entity.ScrapeResult, ttl time.Duration) error
}
