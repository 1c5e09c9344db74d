package entity

import "time"

// Field names a value extracted from every scraped page.
type Field string

const (
	FieldTitle       Field = "title"
	FieldPrice       Field = "price"
	FieldDescription Field = "description"
)

// Fields lists every supported field in extraction order.
var Fields = []Field{FieldTitle, FieldPrice, FieldDescription}

// Valid reports whether f is a supported field.
func (f Field) Valid() bool {
	switch f {
	case FieldTitle, FieldPrice, FieldDescription:
		return true
	}
	return false
}

// SearchTerms are the free-text hints describing what to look for on a page.
type SearchTerms struct {
	Title       string `json:"title"`
	Price       string `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
}

// Term returns the search term for f.
func (t SearchTerms) Term(f Field) string {
	switch f {
	case FieldTitle:
		return t.Title
	case FieldPrice:
		return t.Price
	case FieldDescription:
		return t.Description
	}
	return ""
}

// Requested returns the fields a job asks for: title always, price and
// description only when a term was supplied.
func (t SearchTerms) Requested() []Field {
	fields := []Field{FieldTitle}
	if t.Price != "" {
		fields = append(fields, FieldPrice)
	}
	if t.Description != "" {
		fields = append(fields, FieldDescription)
	}
	return fields
}

// Selectors maps a field to an explicit CSS locator.
type Selectors map[Field]string

const (
	DefaultMaxPages         = 1
	DefaultWaitTimeMS       = 1000
	DefaultRetryAttempts    = 3
	DefaultNextPageSelector = `a[rel="next"]`
	DefaultUserAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// ScrapeOptions tune how a single job is executed.
type ScrapeOptions struct {
	MaxPages         int    `json:"maxPages"`
	WaitTime         int    `json:"waitTime"` // milliseconds
	RetryAttempts    int    `json:"retryAttempts"`
	Concurrent       bool   `json:"concurrent"`
	NextPageSelector string `json:"nextPageSelector,omitempty"`
	UserAgent        string `json:"userAgent,omitempty"`
}

// DefaultScrapeOptions returns the options used when a submission omits them.
func DefaultScrapeOptions() ScrapeOptions {
	return ScrapeOptions{
		MaxPages:         DefaultMaxPages,
		WaitTime:         DefaultWaitTimeMS,
		RetryAttempts:    DefaultRetryAttempts,
		NextPageSelector: DefaultNextPageSelector,
		UserAgent:        DefaultUserAgent,
	}
}

// WithDefaults fills unset fields. WaitTime is left alone because zero is a
// legal value.
func (o ScrapeOptions) WithDefaults() ScrapeOptions {
	if o.MaxPages < 1 {
		o.MaxPages = DefaultMaxPages
	}
	if o.RetryAttempts < 1 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.NextPageSelector == "" {
		o.NextPageSelector = DefaultNextPageSelector
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Wait returns WaitTime as a duration.
func (o ScrapeOptions) Wait() time.Duration {
	return time.Duration(o.WaitTime) * time.Millisecond
}
