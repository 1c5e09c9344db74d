// Package rod_browser is the go-rod BrowserDriver. Pages are created through
// the stealth plugin to mask the usual automation fingerprints.
package rod_browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/repository"
)

const (
	clickTimeout  = 10 * time.Second
	settleTimeout = 15 * time.Second
)

type RodDriver struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

func NewRodDriver(logger *zap.Logger) *RodDriver {
	return &RodDriver{
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

func (d *RodDriver) NewSession(ctx context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("rod driver is closed")
	}
	d.mu.Unlock()

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage")
	if opts.Proxy != nil {
		l = l.Proxy(opts.Proxy.Addr())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s := &session{driver: d, launcher: l, browser: browser}
	if opts.Proxy != nil && opts.Proxy.HasCredentials() {
		wait := browser.HandleAuth(opts.Proxy.Username, opts.Proxy.Password)
		go func() {
			if err := wait(); err != nil {
				d.logger.Debug("proxy auth handler stopped", zap.Error(err))
			}
		}()
	}

	page, err := stealth.Page(browser)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			page.Close()
			s.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	s.page = page

	d.mu.Lock()
	d.sessions[s] = struct{}{}
	d.mu.Unlock()
	return s, nil
}

func (d *RodDriver) Close() error {
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
	driver   *RodDriver
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	once     sync.Once

	navMu sync.Mutex
	// waitNav waits for the navigation armed by the last click.
	waitNav   func()
	cancelNav context.CancelFunc
}

func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *session) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	p := s.page.Context(ctx)
	if timeout > 0 {
		p = p.Timeout(timeout)
	}
	el, err := p.Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("wait for %q: %w", selector, repository.ErrExtractionTimeout)
		}
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *session) Exists(ctx context.Context, selector string) (bool, error) {
	has, _, err := s.page.Context(ctx).Has(selector)
	return has, err
}

// Click arms a wait for the navigation the click may trigger before clicking;
// the following WaitStable consumes it.
func (s *session) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()
	el, err := s.page.Context(clickCtx).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("click %q: %w", selector, repository.ErrExtractionTimeout)
		}
		return err
	}

	navCtx, cancelNav := context.WithTimeout(ctx, settleTimeout)
	wait := s.page.Context(navCtx).WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		cancelNav()
		return err
	}

	s.navMu.Lock()
	if s.cancelNav != nil {
		s.cancelNav()
	}
	s.waitNav, s.cancelNav = wait, cancelNav
	s.navMu.Unlock()
	return nil
}

func (s *session) WaitStable(ctx context.Context, extra time.Duration) error {
	s.navMu.Lock()
	wait, cancelNav := s.waitNav, s.cancelNav
	s.waitNav, s.cancelNav = nil, nil
	s.navMu.Unlock()

	if wait != nil {
		// Returns on network idle or when settleTimeout runs out, whichever
		// comes first.
		wait()
		cancelNav()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		return err
	}
	if extra <= 0 {
		return nil
	}
	select {
	case <-time.After(extra):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		s.navMu.Lock()
		if s.cancelNav != nil {
			s.cancelNav()
		}
		s.navMu.Unlock()

		err = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()

		s.driver.mu.Lock()
		delete(s.driver.sessions, s)
		s.driver.mu.Unlock()
	})
	return err
}
