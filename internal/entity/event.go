package entity

// EventType is the name of a job notification.
type EventType string

const (
	EventJobComplete EventType = "jobComplete"
	EventJobFailed   EventType = "jobFailed"
)

// JobEvent is emitted exactly once per job, when it reaches a terminal status.
type JobEvent struct {
	Type   EventType     `json:"event"`
	JobID  string        `json:"jobId"`
	Status JobStatus     `json:"status"`
	Result *ScrapeResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// EventFor builds the terminal event describing job.
func EventFor(job *ScrapeJob) JobEvent {
	if job.Status == JobStatusCompleted {
		return JobEvent{Type: EventJobComplete, JobID: job.ID, Status: job.Status, Result: job.Result}
	}
	return JobEvent{Type: EventJobFailed, JobID: job.ID, Status: job.Status, Error: job.Error}
}
