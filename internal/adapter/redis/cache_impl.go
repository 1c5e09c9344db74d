package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/pkg/utils"
)

const cacheKeyPrefix = "scrape:cache:"

// CacheRepoImpl stores serialized results under a hash of their URL with SET EX.
type CacheRepoImpl struct {
	client *redis.Client
}

// NewCacheRepo creates a new instance of CacheRepoImpl.
func NewCacheRepo(client *redis.Client) *CacheRepoImpl {
	return &CacheRepoImpl{client: client}
}

// generateKey creates a consistent Redis key for a given URL by hashing it.
func (r *CacheRepoImpl) generateKey(url string) string {
	return fmt.Sprintf("%s%s", cacheKeyPrefix, utils.HashURL(url))
}

func (r *CacheRepoImpl) Get(ctx context.Context, url string) (*entity.ScrapeResult, bool, error) {
	payload, err := r.client.Get(ctx, r.generateKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result entity.ScrapeResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, true, nil
}

func (r *CacheRepoImpl) Put(ctx context.Context, url string, result *entity.ScrapeResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return r.client.SetEx(ctx, r.generateKey(url), payload, ttl).Err()
}
