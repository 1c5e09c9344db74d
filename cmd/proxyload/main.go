// Command proxyload imports a public proxy list into the proxies table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/adapter/postgres"
	"github.com/user/scrape-orchestrator/internal/adapter/proxylist"
	"github.com/user/scrape-orchestrator/internal/proxy"
	"github.com/user/scrape-orchestrator/pkg/config"
	"github.com/user/scrape-orchestrator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	sourceURL := flag.String("source", cfg.ProxySourceURL, "proxy list page to import")
	probe := flag.Bool("probe", false, "probe every stored proxy after the import")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall time limit")
	flag.Parse()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := postgres.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatal("unable to prepare schema", zap.Error(err))
	}

	manager := proxy.NewManager(postgres.NewProxyRepo(db), proxy.NewHTTPProber(cfg.ProxyProbeURL, cfg.ProxyProbeTimeout), log)
	if err := manager.Load(ctx); err != nil {
		log.Fatal("unable to load stored proxies", zap.Error(err))
	}

	added, err := manager.Import(ctx, proxylist.NewSource(*sourceURL, cfg.ProxyProbeTimeout))
	if err != nil {
		log.Fatal("proxy import failed", zap.String("source", *sourceURL), zap.Error(err))
	}

	if *probe {
		if err := manager.Sweep(ctx); err != nil {
			log.Fatal("proxy sweep failed", zap.Error(err))
		}
	}

	total, active := manager.Stats()
	log.Info("proxies imported",
		zap.Int("added", added),
		zap.Int("total", total),
		zap.Int("active", active),
	)
}
