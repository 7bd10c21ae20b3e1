// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the danmaku ingestion and serving system:
// - library store query performance (DuckDB)
// - provider fetch latency and circuit breaker state
// - task queue throughput (download/management/fallback)
// - rate limiter checks
// - HTTP API latency and throughput
// - in-process cache efficiency

var (
	// Library store metrics.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_db_query_duration_seconds",
			Help:    "Duration of library store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_db_query_errors_total",
			Help: "Total number of library store query errors",
		},
		[]string{"operation", "table"},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "danmu_db_connections_in_use",
			Help: "Current number of database/sql connections in use",
		},
	)

	// Provider metrics.
	ProviderFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_provider_fetch_duration_seconds",
			Help:    "Duration of outbound provider HTTP calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"provider", "operation"},
	)

	ProviderFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_provider_fetch_errors_total",
			Help: "Total number of failed outbound provider HTTP calls",
		},
		[]string{"provider", "operation"},
	)

	ProviderCommentsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_provider_comments_fetched_total",
			Help: "Total number of raw comments fetched from a provider",
		},
		[]string{"provider"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "danmu_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "from_state", "to_state"},
	)

	// Task manager metrics (C7: download/management/fallback queues).
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_tasks_enqueued_total",
			Help: "Total number of tasks submitted to a task queue",
		},
		[]string{"queue", "task_type"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_tasks_completed_total",
			Help: "Total number of tasks that reached a terminal state",
		},
		[]string{"queue", "task_type", "result"}, // result: success, failed, paused
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_task_duration_seconds",
			Help:    "Duration of a task run from dequeue to terminal state",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"queue", "task_type"},
	)

	TaskQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "danmu_task_queue_depth",
			Help: "Current number of queued and running tasks per queue",
		},
		[]string{"queue"},
	)

	// Rate limiter metrics (C2).
	RateLimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_ratelimit_checks_total",
			Help: "Total number of rate limit checks",
		},
		[]string{"provider", "result"}, // result: allowed, rejected
	)

	RateLimitArtifactAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "danmu_ratelimit_artifact_age_seconds",
			Help: "Age of the currently loaded rate limit artifact in seconds",
		},
	)

	// Comment ingestion metrics (C9).
	CommentsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_comments_inserted_total",
			Help: "Total number of normalized comments inserted into an episode",
		},
		[]string{"provider"},
	)

	CommentsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_comments_deduplicated_total",
			Help: "Total number of comments dropped as duplicates during normalization",
		},
		[]string{"provider"},
	)

	// HTTP API metrics (C10).
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "danmu_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_api_rate_limit_hits_total",
			Help: "Total number of API requests rejected by httprate",
		},
		[]string{"route"},
	)

	// Cache metrics (internal/cache).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_cache_hits_total",
			Help: "Total number of in-process cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_cache_misses_total",
			Help: "Total number of in-process cache misses",
		},
		[]string{"cache_type"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "danmu_cache_entries",
			Help: "Current number of entries in an in-process cache",
		},
		[]string{"cache_type"},
	)

	// System metrics.
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "danmu_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "danmu_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a library store query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordProviderFetch records an outbound provider HTTP call.
func RecordProviderFetch(provider, operation string, duration time.Duration, err error) {
	ProviderFetchDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	if err != nil {
		ProviderFetchErrors.WithLabelValues(provider, operation).Inc()
	}
}

// RecordAPIRequest records an HTTP API request metric.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight API request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordTaskEnqueued records a task being submitted to a queue.
func RecordTaskEnqueued(queue, taskType string) {
	TasksEnqueued.WithLabelValues(queue, taskType).Inc()
}

// RecordTaskCompleted records a task reaching a terminal state.
func RecordTaskCompleted(queue, taskType, result string, duration time.Duration) {
	TasksCompleted.WithLabelValues(queue, taskType, result).Inc()
	TaskDuration.WithLabelValues(queue, taskType).Observe(duration.Seconds())
}

// UpdateTaskQueueDepth sets the current depth of a task queue.
func UpdateTaskQueueDepth(queue string, depth int) {
	TaskQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordRateLimitCheck records the outcome of a rate limit check.
func RecordRateLimitCheck(provider string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	RateLimitChecks.WithLabelValues(provider, result).Inc()
}

// RecordCommentsInserted records comments successfully inserted for a provider.
func RecordCommentsInserted(provider string, count int) {
	CommentsInserted.WithLabelValues(provider).Add(float64(count))
}

// RecordCommentsDeduplicated records comments dropped as duplicates for a provider.
func RecordCommentsDeduplicated(provider string, count int) {
	CommentsDeduplicated.WithLabelValues(provider).Add(float64(count))
}
