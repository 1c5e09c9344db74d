package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	JobsInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrape_jobs_in_queue",
			Help: "Current number of jobs waiting in the ready list.",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_total",
			Help: "Total number of jobs that reached a terminal status.",
		},
		[]string{"status", "source"}, // source: engine, cache, dead_letter
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_job_duration_seconds",
			Help:    "Duration of scrape jobs executed by the engine.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120, 300},
		},
		[]string{"domain"},
	)

	PageRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_page_retries_total",
			Help: "Total number of page extraction retries.",
		},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_cache_requests_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"result"}, // hit, miss, error
	)

	ProxyDemotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_demotions_total",
			Help: "Total number of proxies marked inactive after a failure.",
		},
	)

	ActiveProxies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_active",
			Help: "Number of proxies currently eligible for selection.",
		},
	)

	BrowserSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_sessions_active",
			Help: "Number of browser sessions currently checked out.",
		},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_failures_total",
			Help: "Durable store writes that failed and were skipped.",
		},
		[]string{"store"},
	)

	DeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_jobs_dead_lettered_total",
			Help: "Jobs moved to the dead-letter list after too many deliveries.",
		},
	)
)
