// Package browsertest provides a scripted in-memory BrowserDriver for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/scrape-orchestrator/internal/repository"
)

// Page is a fake document. Next is the URL reached by clicking NextSelector.
type Page struct {
	HTML         string
	Text         map[string]string
	NextSelector string
	Next         string
}

// Driver serves Pages by URL. Errors queued in NavigateErrs are returned by
// successive Navigate calls for that URL before it starts succeeding.
type Driver struct {
	mu           sync.Mutex
	Pages        map[string]*Page
	NavigateErrs map[string][]error
	ClickErrs    map[string][]error

	sessions    int
	open        int
	navigations int
	closed      bool
	lastOpts    repository.SessionOptions
}

func NewDriver() *Driver {
	return &Driver{
		Pages:        make(map[string]*Page),
		NavigateErrs: make(map[string][]error),
		ClickErrs:    make(map[string][]error),
	}
}

func (d *Driver) NewSession(_ context.Context, opts repository.SessionOptions) (repository.BrowserSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("driver closed")
	}
	d.sessions++
	d.open++
	d.lastOpts = opts
	return &Session{driver: d}, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Sessions returns how many sessions were ever opened.
func (d *Driver) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// Open returns how many sessions are currently open.
func (d *Driver) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Navigations returns how many Navigate calls were made, failed ones included.
func (d *Driver) Navigations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.navigations
}

// LastOptions returns the options of the most recent session.
func (d *Driver) LastOptions() repository.SessionOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastOpts
}

// Session is a fake tab.
type Session struct {
	driver  *Driver
	current string
	closed  bool
}

func (s *Session) page() *Page {
	return s.driver.Pages[s.current]
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := s.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations++
	if errs := d.NavigateErrs[url]; len(errs) > 0 {
		d.NavigateErrs[url] = errs[1:]
		return errs[0]
	}
	if _, ok := d.Pages[url]; !ok {
		return fmt.Errorf("navigate %s: %w", url, repository.ErrNavigationFailed)
	}
	s.current = url
	return nil
}

func (s *Session) Text(ctx context.Context, selector string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if p := s.page(); p != nil {
		if text, ok := p.Text[selector]; ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("wait for %q: %w", selector, repository.ErrExtractionTimeout)
}

func (s *Session) Exists(_ context.Context, selector string) (bool, error) {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	p := s.page()
	if p == nil {
		return false, nil
	}
	if p.Next != "" && selector == p.NextSelector {
		return true, nil
	}
	_, ok := p.Text[selector]
	return ok, nil
}

func (s *Session) Click(_ context.Context, selector string) error {
	d := s.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if errs := d.ClickErrs[s.current]; len(errs) > 0 {
		d.ClickErrs[s.current] = errs[1:]
		return errs[0]
	}
	p := s.page()
	if p == nil || p.Next == "" || selector != p.NextSelector {
		return fmt.Errorf("click %q: no such element", selector)
	}
	if _, ok := d.Pages[p.Next]; !ok {
		return fmt.Errorf("click %q: %w", selector, repository.ErrNavigationFailed)
	}
	s.current = p.Next
	return nil
}

func (s *Session) WaitStable(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (s *Session) HTML(context.Context) (string, error) {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if p := s.page(); p != nil {
		return p.HTML, nil
	}
	return "", errors.New("no document loaded")
}

func (s *Session) Close() error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.driver.open--
	}
	return nil
}
