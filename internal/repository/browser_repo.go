package repository

import (
	"context"
	"time"

	"github.com/user/scrape-orchestrator/internal/entity"
)

// SessionOptions configures an isolated browser session.
type SessionOptions struct {
	Proxy     *entity.Proxy
	UserAgent string
	Headless  bool
}

// BrowserDriver starts isolated browser sessions. Each job owns the session
// it created and must close it.
type BrowserDriver interface {
	NewSession(ctx context.Context, opts SessionOptions) (BrowserSession, error)
	Close() error
}

// BrowserSession is a single tab in an isolated browser context.
type BrowserSession interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error
	// Text waits up to timeout for selector and returns its trimmed text.
	// It returns ErrExtractionTimeout when the element never appears.
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)
	// Exists reports whether selector currently matches anything, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	// Click clicks the first element that matches selector.
	Click(ctx context.Context, selector string) error
	// WaitStable waits for the navigation started by the last Click to reach
	// network idle, for the body to be ready, and then for extra.
	WaitStable(ctx context.Context, extra time.Duration) error
	// HTML returns the current document's outer HTML.
	HTML(ctx context.Context) (string, error)
	Close() error
}
