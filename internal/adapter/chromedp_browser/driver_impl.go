// Package chromedp_browser drives Chrome over the DevTools protocol. Every
// session runs in its own browser process so proxy and user agent never leak
// between jobs.
package chromedp_browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/repository"
)

const (
	// clickTimeout bounds waiting for a click target to become visible.
	clickTimeout = 10 * time.Second
	// settleTimeout bounds waiting for the page a click led to. A click that
	// only rewrites the DOM never reaches network idle.
	settleTimeout = 15 * time.Second
)

type ChromedpDriver struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewChromedpDriver creates a BrowserDriver backed by local Chrome processes.
func NewChromedpDriver(logger *zap.Logger) *ChromedpDriver {
	return &ChromedpDriver{
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

func (d *ChromedpDriver) NewSession(ctx context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("chromedp driver is closed")
	}
	d.mu.Unlock()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.Addr()))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(d.logger.Sugar().Debugf))

	s := &session{
		driver: d,
		ctx:    tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}

	s.listenForIdle()

	var setup []chromedp.Action
	if opts.Proxy != nil && opts.Proxy.HasCredentials() {
		listenForAuth(tabCtx, opts.Proxy.Username, opts.Proxy.Password)
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}

	// The first Run starts the browser, which lives as long as the context it
	// runs on. It must be the session context itself, not a child of it.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx, setup...)
	if !stop() || err != nil {
		s.cancel()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("start chrome: %w", ctx.Err())
		}
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	d.mu.Lock()
	d.sessions[s] = struct{}{}
	d.mu.Unlock()
	return s, nil
}

// listenForAuth answers proxy credential challenges. With request
// interception enabled every paused request must be continued explicitly.
func listenForAuth(ctx context.Context, username, password string) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				c := chromedp.FromContext(ctx)
				resp := &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}
				_ = fetch.ContinueWithAuth(e.RequestID, resp).Do(cdp.WithExecutor(ctx, c.Target))
			}()
		case *fetch.EventRequestPaused:
			go func() {
				c := chromedp.FromContext(ctx)
				_ = fetch.ContinueRequest(e.RequestID).Do(cdp.WithExecutor(ctx, c.Target))
			}()
		}
	})
}

// Close shuts down every browser still open.
func (d *ChromedpDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	open := make([]*session, 0, len(d.sessions))
	for s := range d.sessions {
		open = append(open, s)
	}
	d.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	return nil
}

type session struct {
	driver *ChromedpDriver
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	navMu sync.Mutex
	// idle is closed by the next networkIdle lifecycle event.
	idle chan struct{}
	// pending is the idle channel armed by the last click, if not yet waited on.
	pending chan struct{}
}

func (s *session) listenForIdle() {
	chromedp.ListenTarget(s.ctx, s.onEvent)
}

func (s *session) onEvent(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != "networkIdle" {
		return
	}
	s.navMu.Lock()
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	s.navMu.Unlock()
}

func (s *session) nextIdle() chan struct{} {
	s.navMu.Lock()
	defer s.navMu.Unlock()
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	return s.idle
}

// run executes actions on the tab, bounded by timeout when positive and
// cancelled with the caller's ctx.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, 0,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *session) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	var text string
	err := s.run(ctx, timeout, chromedp.Text(selector, &text, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("wait for %q: %w", selector, repository.ErrExtractionTimeout)
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *session) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, 0, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Click arms a wait for the navigation the click may trigger; the following
// WaitStable consumes it.
func (s *session) Click(ctx context.Context, selector string) error {
	idle := s.nextIdle()
	if err := s.run(ctx, clickTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("click %q: %w", selector, repository.ErrExtractionTimeout)
		}
		return err
	}
	s.navMu.Lock()
	s.pending = idle
	s.navMu.Unlock()
	return nil
}

// awaitNavigation blocks until the navigation armed by the last click goes
// network idle, or for at most limit.
func (s *session) awaitNavigation(ctx context.Context, limit time.Duration) error {
	s.navMu.Lock()
	pending := s.pending
	s.pending = nil
	s.navMu.Unlock()
	if pending == nil {
		return nil
	}

	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-pending:
	case <-timer.C:
		s.driver.logger.Debug("no network idle after click")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *session) WaitStable(ctx context.Context, extra time.Duration) error {
	if err := s.awaitNavigation(ctx, settleTimeout); err != nil {
		return err
	}

	actions := []chromedp.Action{chromedp.WaitReady("body", chromedp.ByQuery)}
	if extra > 0 {
		actions = append(actions, chromedp.Sleep(extra))
	}
	return s.run(ctx, 0, actions...)
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close terminates the browser process behind the session.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()

		s.driver.mu.Lock()
		delete(s.driver.sessions, s)
		s.driver.mu.Unlock()
	})
	return err
}
