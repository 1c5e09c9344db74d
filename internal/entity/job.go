package entity

import "time"

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScrapeJob is one scrape request for one target URL. Bulk submissions fan
// out into one ScrapeJob per URL.
type ScrapeJob struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	SearchTerms SearchTerms   `json:"searchTerms"`
	Selectors   Selectors     `json:"selectors,omitempty"`
	Options     ScrapeOptions `json:"options"`
	Status      JobStatus     `json:"status"`
	Result      *ScrapeResult `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a copy of the job that shares no mutable state with j.
func (j *ScrapeJob) Clone() *ScrapeJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.Selectors != nil {
		c.Selectors = make(Selectors, len(j.Selectors))
		for k, v := range j.Selectors {
			c.Selectors[k] = v
		}
	}
	if j.Result != nil {
		c.Result = j.Result.Clone()
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Complete moves the job into the completed state with the given result.
func (j *ScrapeJob) Complete(result *ScrapeResult, at time.Time) {
	j.Status = JobStatusCompleted
	j.Result = result
	j.Error = ""
	j.CompletedAt = &at
}

// Fail moves the job into the failed state.
func (j *ScrapeJob) Fail(reason string, at time.Time) {
	j.Status = JobStatusFailed
	j.Error = reason
	if j.Result == nil {
		j.Result = &ScrapeResult{Items: []ScrapedItem{}, Success: false, Error: reason}
	}
	j.CompletedAt = &at
}
