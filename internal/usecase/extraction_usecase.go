package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/scrape-orchestrator/internal/browser"
	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/proxy"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/internal/resolver"
	"github.com/user/scrape-orchestrator/pkg/metrics"
)

const (
	DefaultFieldTimeout = 5 * time.Second
	DefaultBaseBackoff  = time.Second
)

// Extractor runs a job against a live page and follows its pagination.
type Extractor interface {
	Extract(ctx context.Context, job *entity.ScrapeJob) (*entity.ScrapeResult, error)
}

// ProxySelector is the part of the proxy pool the extractor needs.
type ProxySelector interface {
	SelectProxy() (*entity.Proxy, error)
	RecordFailure(ctx context.Context, p *entity.Proxy, err error) bool
}

// ExtractionConfig tunes the extraction engine.
type ExtractionConfig struct {
	FieldTimeout  time.Duration
	BaseBackoff   time.Duration
	ProxyRequired bool
	Headless      bool
}

type extractionUseCase struct {
	pool     *browser.Pool
	proxies  ProxySelector
	resolver *resolver.Resolver
	cfg      ExtractionConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExtractor creates the extraction engine.
func NewExtractor(
	pool *browser.Pool,
	proxies ProxySelector,
	res *resolver.Resolver,
	cfg ExtractionConfig,
	logger *zap.Logger,
) Extractor {
	if cfg.FieldTimeout <= 0 {
		cfg.FieldTimeout = DefaultFieldTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	return &extractionUseCase{
		pool:     pool,
		proxies:  proxies,
		resolver: res,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pageCursor tracks where a job is in its pagination so that a retried step
// picks up on the current page instead of starting over.
type pageCursor struct {
	page     int
	loaded   bool
	clicked  bool
	recorded bool
	done     bool
	items    []entity.ScrapedItem
}

func (uc *extractionUseCase) Extract(ctx context.Context, job *entity.ScrapeJob) (*entity.ScrapeResult, error) {
	opts := job.Options.WithDefaults()

	px, err := uc.selectProxy()
	if err != nil {
		return nil, &repository.ExtractionError{Kind: "proxy", URL: job.URL, Page: 1, Err: err}
	}

	sess, err := uc.pool.Acquire(ctx, repository.SessionOptions{
		Proxy:     px,
		UserAgent: opts.UserAgent,
		Headless:  uc.cfg.Headless,
	})
	if err != nil {
		return nil, &repository.ExtractionError{Kind: "browser", URL: job.URL, Page: 1, Err: err}
	}
	defer sess.Close()

	log := uc.logger.With(zap.String("job_id", job.ID), zap.String("url", job.URL))
	cur := &pageCursor{page: 1, items: []entity.ScrapedItem{}}

	for !cur.done {
		err := uc.retry(ctx, opts.RetryAttempts, log, func() error {
			return uc.step(ctx, sess, job, opts, cur)
		})
		if err != nil {
			if px != nil {
				uc.proxies.RecordFailure(ctx, px, err)
			}
			result := &entity.ScrapeResult{
				Items:      cur.items,
				TotalPages: len(cur.items),
				Success:    false,
				Error:      err.Error(),
			}
			return result, &repository.ExtractionError{
				Kind: errorKind(err),
				URL:  job.URL,
				Page: cur.page,
				Err:  err,
			}
		}
	}

	return &entity.ScrapeResult{
		Items:      cur.items,
		TotalPages: len(cur.items),
		Success:    true,
	}, nil
}

func (uc *extractionUseCase) selectProxy() (*entity.Proxy, error) {
	if uc.proxies == nil {
		if uc.cfg.ProxyRequired {
			return nil, repository.ErrNoProxyAvailable
		}
		return nil, nil
	}
	px, err := uc.proxies.SelectProxy()
	if errors.Is(err, repository.ErrNoProxyAvailable) && !uc.cfg.ProxyRequired {
		uc.logger.Debug("no active proxy, running direct")
		return nil, nil
	}
	return px, err
}

// step loads the current page if needed, records its item once, and then
// advances to the next page when there is one.
func (uc *extractionUseCase) step(
	ctx context.Context,
	sess repository.BrowserSession,
	job *entity.ScrapeJob,
	opts entity.ScrapeOptions,
	cur *pageCursor,
) error {
	if !cur.loaded {
		if cur.page == 1 {
			if err := sess.Navigate(ctx, job.URL); err != nil {
				return navigationError(err)
			}
		} else if !cur.clicked {
			if err := sess.Click(ctx, opts.NextPageSelector); err != nil {
				return navigationError(err)
			}
			cur.clicked = true
		}
		if err := sess.WaitStable(ctx, opts.Wait()); err != nil {
			return navigationError(err)
		}
		cur.loaded = true
	}

	if !cur.recorded {
		item, err := uc.extractPage(ctx, sess, job, opts.Concurrent, cur.page)
		if err != nil {
			return err
		}
		cur.items = append(cur.items, item)
		cur.recorded = true
	}

	if cur.page >= opts.MaxPages {
		cur.done = true
		return nil
	}
	hasNext, err := sess.Exists(ctx, opts.NextPageSelector)
	if err != nil {
		return fmt.Errorf("look up next page link: %w", err)
	}
	if !hasNext {
		cur.done = true
		return nil
	}

	cur.page++
	cur.loaded, cur.clicked, cur.recorded = false, false, false
	if err := sess.Click(ctx, opts.NextPageSelector); err != nil {
		return navigationError(err)
	}
	cur.clicked = true
	if err := sess.WaitStable(ctx, opts.Wait()); err != nil {
		return navigationError(err)
	}
	cur.loaded = true
	return nil
}

// extractPage reads every requested field of the current page. A field that
// cannot be found is left nil; only a cancelled context fails the page.
func (uc *extractionUseCase) extractPage(
	ctx context.Context,
	sess repository.BrowserSession,
	job *entity.ScrapeJob,
	concurrent bool,
	page int,
) (entity.ScrapedItem, error) {
	fields := job.SearchTerms.Requested()
	values := make([]*string, len(fields))

	html := sync.OnceValues(func() (string, error) {
		return sess.HTML(ctx)
	})

	if concurrent {
		g, gctx := errgroup.WithContext(ctx)
		for i, f := range fields {
			g.Go(func() error {
				values[i] = uc.extractField(gctx, sess, job, f, html)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, f := range fields {
			values[i] = uc.extractField(ctx, sess, job, f, html)
		}
	}

	if err := ctx.Err(); err != nil {
		return entity.ScrapedItem{}, err
	}

	item := entity.ScrapedItem{
		SourceURL: job.URL,
		Page:      page,
		ScrapedAt: time.Now().UTC(),
	}
	for i, f := range fields {
		item.Set(f, values[i])
	}
	return item, nil
}

func (uc *extractionUseCase) extractField(
	ctx context.Context,
	sess repository.BrowserSession,
	job *entity.ScrapeJob,
	field entity.Field,
	html func() (string, error),
) *string {
	log := uc.logger.With(zap.String("job_id", job.ID), zap.String("field", string(field)))

	if locator := job.Selectors[field]; locator != "" {
		text, err := sess.Text(ctx, locator, uc.cfg.FieldTimeout)
		if err != nil {
			log.Debug("field not found", zap.String("selector", locator), zap.Error(err))
			return nil
		}
		return &text
	}

	doc, err := html()
	if err != nil {
		log.Debug("page html unavailable", zap.Error(err))
		return nil
	}
	match, err := uc.resolver.Resolve(doc, field, job.SearchTerms.Term(field))
	if err != nil {
		log.Debug("no selector resolved", zap.Error(err))
		return nil
	}
	text := match.Text
	return &text
}

// retry runs fn up to attempts times, sleeping base, 2*base, 4*base... between
// attempts. It does not sleep after the last one.
func (uc *extractionUseCase) retry(ctx context.Context, attempts int, log *zap.Logger, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == attempts {
			break
		}

		backoff := uc.cfg.BaseBackoff << (attempt - 1)
		metrics.PageRetries.Inc()
		log.Warn("page step failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		if uc.sleep(ctx, backoff) != nil {
			return err
		}
	}
	return err
}

func navigationError(err error) error {
	if errors.Is(err, repository.ErrNavigationFailed) || errors.Is(err, repository.ErrProxyFailure) {
		return err
	}
	if proxy.IsProxyError(err) {
		return fmt.Errorf("%w: %w", repository.ErrProxyFailure, err)
	}
	return fmt.Errorf("%w: %w", repository.ErrNavigationFailed, err)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, repository.ErrProxyFailure):
		return "proxy"
	case errors.Is(err, repository.ErrNavigationFailed):
		return "navigation"
	default:
		return "browser"
	}
}
