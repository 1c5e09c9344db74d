package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a submission is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNoProxyAvailable is returned when the proxy pool has no active entry.
	ErrNoProxyAvailable = errors.New("no proxy available")
	// ErrExtractionTimeout is field-local: the locator did not appear in time.
	ErrExtractionTimeout = errors.New("extraction timeout")
	// ErrNavigationFailed is returned when a page could not be loaded.
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrProxyFailure marks navigation errors caused by the egress proxy.
	ErrProxyFailure = errors.New("proxy failure")
	// ErrPersistenceFailure wraps durable store write errors.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = errors.New("job not found")
	// ErrStatusTerminal is returned when a finished job is asked to transition again.
	ErrStatusTerminal = errors.New("job status is terminal")
	// ErrQueueEmpty is returned by Dequeue when nothing arrived within the wait.
	ErrQueueEmpty = errors.New("queue is empty")
)

// ExtractionError describes why extraction of a job stopped on a given page.
type ExtractionError struct {
	Kind string // navigation, proxy, timeout, browser
	URL  string
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s error on page %d of %s: %v", e.Kind, e.Page, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
