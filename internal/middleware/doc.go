// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

/*
Package middleware provides the chi middleware shared by the admin API and
the OWS endpoint.

  - RequestID: X-Request-ID propagation and logging context
  - PrometheusMetrics: request counts and latency keyed by route pattern
  - Compression: gzip for JSON responses
  - PerformanceMonitor: in-process latency percentiles per route

The router applies them in this order:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(perf.Middleware)

Compression is only mounted on /api/v1; proxied bodies keep the encoding
chosen by the origin.
*/
package middleware
