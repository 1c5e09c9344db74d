package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/delivery/http/request"
	"github.com/user/scrape-orchestrator/internal/delivery/http/response"
	"github.com/user/scrape-orchestrator/internal/notify"
	"github.com/user/scrape-orchestrator/internal/repository"
	"github.com/user/scrape-orchestrator/internal/usecase"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Subscriber hands out live job event subscriptions.
type Subscriber interface {
	Subscribe(jobID string) *notify.Subscription
}

type Handler struct {
	jobs   usecase.JobManager
	seo    usecase.SEOAnalyzer
	events Subscriber
	checks map[string]HealthCheck
	logger *zap.Logger
}

func NewHandler(
	jobs usecase.JobManager,
	seo usecase.SEOAnalyzer,
	events Subscriber,
	checks map[string]HealthCheck,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		jobs:   jobs,
		seo:    seo,
		events: events,
		checks: checks,
		logger: logger,
	}
}

func (h *Handler) HandleSubmitScrape(w http.ResponseWriter, r *http.Request) {
	var req request.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	opts, err := request.DecodeOptions(req.Options)
	if err != nil {
		h.writeError(w, err)
		return
	}

	jobID, err := h.jobs.Submit(r.Context(), usecase.ScrapeRequest{
		URLs:        []string{req.URL},
		SearchTerms: req.SearchTerms,
		Selectors:   req.Selectors,
		Options:     opts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.SubmitResponse{JobID: jobID})
}

func (h *Handler) HandleSubmitBulk(w http.ResponseWriter, r *http.Request) {
	var req request.BulkScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	opts, err := request.DecodeOptions(req.Options)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ids, err := h.jobs.SubmitBulk(r.Context(), usecase.ScrapeRequest{
		URLs:        req.URLs,
		SearchTerms: req.SearchTerms,
		Selectors:   req.Selectors,
		Options:     opts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.BulkSubmitResponse{JobIDs: ids})
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetStatus(r.Context(), r.URL.Query().Get("jobId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewStatusResponse(job))
}

func (h *Handler) HandleGetData(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	items, err := h.jobs.GetResults(r.Context(), rawURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.DataResponse{URL: rawURL, Data: items})
}

func (h *Handler) HandleAnalyzeSEO(w http.ResponseWriter, r *http.Request) {
	var req request.SEORequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	report, err := h.seo.Analyze(r.Context(), req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response.HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	h.writeJSON(w, code, resp)
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrValidation):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrJobNotFound):
		h.writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrNoProxyAvailable):
		h.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, repository.ErrNavigationFailed), errors.Is(err, repository.ErrProxyFailure):
		h.writeJSONError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		h.writeJSONError(w, "Request timed out", http.StatusGatewayTimeout)
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
