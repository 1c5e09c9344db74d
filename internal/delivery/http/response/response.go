package response

import "github.com/user/scrape-orchestrator/internal/entity"

type SubmitResponse struct {
	JobID string `json:"jobId"`
}

type BulkSubmitResponse struct {
	JobIDs []string `json:"jobIds"`
}

// StatusResponse mirrors entity.ScrapeJob for polling clients.
type StatusResponse struct {
	JobID  string               `json:"jobId"`
	Status entity.JobStatus     `json:"status"`
	Result *entity.ScrapeResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

type DataResponse struct {
	URL  string               `json:"url"`
	Data []entity.ScrapedItem `json:"data"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewStatusResponse(job *entity.ScrapeJob) StatusResponse {
	return StatusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Result: job.Result,
		Error:  job.Error,
	}
}
