package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/delivery/http/handler"
	"github.com/user/scrape-orchestrator/internal/delivery/http/middleware"
)

const apiTimeout = 60 * time.Second

func New(h *handler.Handler, limiter *middleware.RateLimiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))

		r.Get("/health", h.HandleHealthCheck)
		r.Get("/status", h.HandleGetStatus)
		r.Get("/data", h.HandleGetData)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Handler)
			}
			r.Post("/scrape", h.HandleSubmitScrape)
			r.Post("/scrape/bulk", h.HandleSubmitBulk)
			r.Post("/seo", h.HandleAnalyzeSEO)
		})
	})

	// Long-lived, so outside the request timeout.
	r.Get("/ws", h.HandleWebSocket)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
