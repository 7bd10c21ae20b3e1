// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package metrics provides Prometheus instrumentation for the danmaku ingestion
and serving system.

# Overview

Metrics cover:
  - library store query performance (internal/library)
  - outbound provider HTTP calls and circuit breaker state (internal/provider)
  - task queue throughput and latency, per queue (internal/taskmanager)
  - rate limiter check outcomes and artifact freshness (internal/ratelimit)
  - comment normalization/insert/dedup counts (internal/comment)
  - HTTP API latency and throughput (internal/api)
  - in-process cache hit/miss rates (internal/cache)

# Metrics Endpoint

Metrics are exposed at /metrics in Prometheus text format, registered with
promhttp.Handler() alongside the chi router in cmd/danmu-server.

# Naming

All series are prefixed danmu_ to distinguish them from metrics emitted by
any co-located process. Counters end in _total, durations in _seconds,
following Prometheus naming conventions.

# Example Prometheus scrape config

	scrape_configs:
	  - job_name: 'danmu-server'
	    static_configs:
	      - targets: ['localhost:3857']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# Cardinality

Provider and queue labels are drawn from small fixed sets (twelve providers,
three queues); route labels use chi's registered pattern (e.g.
"/api/v3/comment/{commentId}"), not the raw request path, to avoid
per-ID cardinality blowup.

# See Also

  - internal/middleware: HTTP middleware recording APIRequest* metrics
  - internal/provider: circuit breaker and fetch metrics
  - internal/taskmanager: task queue metrics
*/
package metrics
