// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Admin API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of requests currently being served",
		},
	)

	// Proxy decisions
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Proxied OGC requests by operation and outcome",
		},
		[]string{"service_type", "operation", "outcome"},
	)

	ProxyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "End-to-end duration of proxied OGC requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service_type", "operation"},
	)

	ProxyStreamedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_streamed_responses_total",
			Help: "Responses written in chunks because they exceeded the stream threshold",
		},
	)

	// Upstream
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of requests to origin services",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"host"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Failed requests to origin services by error code",
		},
		[]string{"host", "code"},
	)

	// Masking
	MaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mask_composition_duration_seconds",
			Help:    "Time spent fetching and applying allowed-area masks",
			Buckets: prometheus.DefBuckets,
		},
	)

	MaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mask_failures_total",
			Help: "GetMap responses replaced by the error image",
		},
		[]string{"stage"},
	)

	// Capabilities cache
	CapabilitiesCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capabilities_cache_hits_total",
			Help: "Capabilities documents served from cache by tier",
		},
		[]string{"tier"},
	)

	CapabilitiesCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capabilities_cache_misses_total",
			Help: "Capabilities documents fetched from the origin",
		},
	)

	// Proxy log writer
	ProxyLogQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_log_queue_depth",
			Help: "Entries waiting to be persisted",
		},
	)

	ProxyLogDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_log_dropped_total",
			Help: "Entries dropped because the queue was full",
		},
	)

	ProxyLogWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_log_write_errors_total",
			Help: "Entries that failed to persist",
		},
	)

	// Circuit breakers, one per origin host
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through circuit breakers by result",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// WebSocket and jobs
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Connected websocket clients",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Background jobs by kind and final status",
		},
		[]string{"kind", "status"},
	)

	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit events written, by type",
		},
		[]string{"type"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		},
	)
)

// RecordDBQuery records a database query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProxyRequest records the outcome of a proxied request. outcome is
// one of forwarded, masked, filtered, denied, error, capabilities.
func RecordProxyRequest(serviceType, operation, outcome string, duration time.Duration) {
	ProxyRequestsTotal.WithLabelValues(serviceType, operation, outcome).Inc()
	ProxyRequestDuration.WithLabelValues(serviceType, operation).Observe(duration.Seconds())
}

// RecordUpstream records a request to an origin host.
func RecordUpstream(host string, status int, duration time.Duration, code string) {
	UpstreamRequestDuration.WithLabelValues(host).Observe(duration.Seconds())
	if code != "" {
		UpstreamErrors.WithLabelValues(host, code).Inc()
	} else if status >= 500 {
		UpstreamErrors.WithLabelValues(host, strconv.Itoa(status)).Inc()
	}
}
