package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/scrape-orchestrator/internal/adapter/chromedp_browser"
	"github.com/user/scrape-orchestrator/internal/adapter/nats_bridge"
	"github.com/user/scrape-orchestrator/internal/adapter/proxylist"
	"github.com/user/scrape-orchestrator/internal/adapter/rod_browser"
	"github.com/user/scrape-orchestrator/internal/browser"
	"github.com/user/scrape-orchestrator/internal/delivery/http/handler"
	"github.com/user/scrape-orchestrator/internal/delivery/http/middleware"
	"github.com/user/scrape-orchestrator/internal/delivery/http/router"
	"github.com/user/scrape-orchestrator/internal/notify"
	"github.com/user/scrape-orchestrator/internal/proxy"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/internal/resolver"
	"github.com/user/scrape-orchestrator/internal/usecase"
	"github.com/user/scrape-orchestrator/pkg/config"
	"github.com/user/scrape-orchestrator/pkg/logger"
)

const (
	shutdownTimeout    = 15 * time.Second
	maintenanceTimeout = 10 * time.Minute
	eventBuffer        = 256
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("service stopped with error", zap.Error(err))
	}
	log.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// --- Storage ---
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// --- Notifications ---
	var sinks []notify.Sink
	var bridge *nats_bridge.Bridge
	if cfg.NatsURL != "" {
		bridge, err = nats_bridge.Connect(cfg.NatsURL, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer bridge.Close()
		sinks = append(sinks, bridge)
		log.Info("NATS event bridge connected", zap.String("url", cfg.NatsURL))
	}
	bus := notify.NewBus(log, eventBuffer, sinks...)

	// --- Proxies ---
	proxies := proxy.NewManager(st.proxies, proxy.NewHTTPProber(cfg.ProxyProbeURL, cfg.ProxyProbeTimeout), log)
	if err := proxies.Load(ctx); err != nil {
		log.Warn("failed to load proxies from store", zap.Error(err))
	}
	source := proxylist.NewSource(cfg.ProxySourceURL, cfg.ProxyProbeTimeout)
	scheduler := proxy.NewScheduler(log, maintenanceTimeout)
	if err := scheduler.Schedule(cfg.ProxySweepSchedule, "proxy-sweep", proxies.Sweep); err != nil {
		return fmt.Errorf("schedule proxy sweep: %w", err)
	}
	importTask := func(ctx context.Context) error {
		_, err := proxies.Import(ctx, source)
		return err
	}
	if err := scheduler.Schedule(cfg.ProxySweepSchedule, "proxy-import", importTask); err != nil {
		return fmt.Errorf("schedule proxy import: %w", err)
	}

	// --- Browser ---
	pool := browser.NewPool(newDriver(cfg, log), cfg.BrowserMaxSessions, log)
	defer pool.Close()

	// --- Use Cases ---
	status := usecase.NewStatusStore(st.jobs, log)
	extractor := usecase.NewExtractor(pool, proxies, resolver.New(log), usecase.ExtractionConfig{
		FieldTimeout:  cfg.FieldTimeout,
		BaseBackoff:   time.Second,
		ProxyRequired: cfg.ProxyRequired,
		Headless:      cfg.BrowserHeadless,
	}, log)
	processor := usecase.NewProcessor(st.cache, extractor, st.data, status, bus, cfg.CacheTTL, log)
	jobs := usecase.NewJobManager(st.queue, st.cache, st.data, status, bus, log)
	seo := usecase.NewSEOAnalyzer(pool, proxies, cfg.BrowserHeadless, log)
	workers := usecase.NewWorkerPool(st.queue, processor, status, usecase.WorkerPoolConfig{
		Workers:       cfg.WorkerCount,
		JobTimeout:    cfg.JobTimeout,
		MaxDeliveries: cfg.QueueMaxDeliveries,
	}, log)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(jobs, seo, bus, st.checks, log)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, limiter, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if bridge != nil {
		if err := bridge.Listen(ctx, bus); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bus.Run(gctx)
		return nil
	})
	g.Go(func() error {
		st.run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := importTask(gctx); err != nil {
			log.Warn("initial proxy import failed", zap.Error(err))
		}
		return nil
	})

	workers.Start(gctx)
	scheduler.Start()

	g.Go(func() error {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on port %s: %w", cfg.ServerPort, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown", zap.Error(err))
		}
		workers.Stop()
		scheduler.Stop()
		return nil
	})

	return g.Wait()
}

func newDriver(cfg *config.Config, log *zap.Logger) repository.BrowserDriver {
	if cfg.BrowserDriver == config.DriverRod {
		return rod_browser.NewRodDriver(log)
	}
	return chromedp_browser.NewChromedpDriver(log)
}
