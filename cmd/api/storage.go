package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/adapter/memory"
	"github.com/user/scrape-orchestrator/internal/adapter/postgres"
	redis_adapter "github.com/user/scrape-orchestrator/internal/adapter/redis"
	"github.com/user/scrape-orchestrator/internal/delivery/http/handler"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/pkg/config"
)

// storage bundles the repositories chosen by STORAGE.
type storage struct {
	queue   repository.JobQueue
	cache   repository.ResultCache
	jobs    repository.JobRepository
	data    repository.ScrapedDataRepository
	proxies repository.ProxyRepository
	checks  map[string]handler.HealthCheck

	// background maintenance the in-memory backends need
	run   func(ctx context.Context)
	close func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage, jobs and results are lost on restart")
		cache := memory.NewResultCache(10000)
		return &storage{
			queue:   memory.NewJobQueue(cfg.QueueLease),
			cache:   cache,
			jobs:    memory.NewJobRepository(),
			data:    memory.NewScrapedDataRepository(),
			proxies: memory.NewProxyRepository(),
			checks:  map[string]handler.HealthCheck{},
			run:     func(ctx context.Context) { cache.Run(ctx, time.Minute) },
			close:   func() {},
		}, nil
	}

	// PostgreSQL
	db, err := postgres.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("PostgreSQL connection pool established")

	// Redis
	rdb, err := redis_adapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Redis connection established")

	return &storage{
		queue:   redis_adapter.NewQueueRepo(rdb, cfg.QueueLease),
		cache:   redis_adapter.NewCacheRepo(rdb),
		jobs:    postgres.NewJobRepo(db),
		data:    postgres.NewScrapedDataRepo(db),
		proxies: postgres.NewProxyRepo(db),
		checks: map[string]handler.HealthCheck{
			"postgres": pingPostgres(db),
			"redis":    pingRedis(rdb),
		},
		run: func(context.Context) {},
		close: func() {
			if err := rdb.Close(); err != nil {
				log.Warn("failed to close redis client", zap.Error(err))
			}
			db.Close()
		},
	}, nil
}

func pingPostgres(db *pgxpool.Pool) handler.HealthCheck {
	return func(ctx context.Context) error { return db.Ping(ctx) }
}

func pingRedis(rdb *goredis.Client) handler.HealthCheck {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
