// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
)

// ============================================================================
// RequestID
// ============================================================================

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if logging.CorrelationIDFromContext(r.Context()) == "" {
			t.Error("correlation id missing from context")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" || len(seen) != 36 {
		t.Fatalf("request id = %q, want a uuid", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("header %q != context %q", got, seen)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"valid", "abc-123", true},
		{"too long", strings.Repeat("x", maxIDLength+1), false},
		{"control characters", "abc\ninjected", false},
		{"spaces", "a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tt.inbound)
			req.Header.Set(CorrelationIDHeader, "corr-1")
			h.ServeHTTP(httptest.NewRecorder(), req)

			if (seen == tt.inbound) != tt.keep {
				t.Errorf("request id = %q, keep = %v", seen, tt.keep)
			}
		})
	}
}

// ============================================================================
// Metrics
// ============================================================================

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/ows/{serviceID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/ows/{serviceID}", "418")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/ows/1", "/ows/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("counter delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.APIActiveRequests); got != 0 {
		t.Errorf("active requests = %v after completion", got)
	}
}

func TestStatusWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newStatusWriter(rec)
	_, _ = sw.Write([]byte("ok"))
	sw.WriteHeader(http.StatusInternalServerError)
	if sw.status != http.StatusOK {
		t.Errorf("status = %d, want 200 after implicit header", sw.status)
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap does not return the wrapped writer")
	}
}

// ============================================================================
// Compression
// ============================================================================

func TestCompression(t *testing.T) {
	body := strings.Repeat(`{"success":true}`, 100)
	h := Compression(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))

	t.Run("gzip accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Header().Get("Content-Encoding") != "gzip" {
			t.Fatal("response not gzipped")
		}
		zr, err := gzip.NewReader(rec.Body)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := io.ReadAll(zr)
		if string(got) != body {
			t.Errorf("decompressed body mismatch")
		}
	})

	t.Run("identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != body {
			t.Error("uncompressed response altered")
		}
	})

	t.Run("websocket upgrade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Upgrade", "websocket")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Header().Get("Content-Encoding") != "" {
			t.Error("websocket upgrade compressed")
		}
	})
}

// ============================================================================
// PerformanceMonitor
// ============================================================================

func TestPerformanceMonitorStats(t *testing.T) {
	pm := NewPerformanceMonitor(10, 0)
	for _, d := range []int64{10, 20, 30, 40} {
		pm.Record(RequestSample{Route: "/api/v1/services", Method: http.MethodGet, DurationMS: d})
	}
	pm.Record(RequestSample{Route: "/ows/{serviceID}", Method: http.MethodGet, DurationMS: 5})

	stats := pm.Stats()
	if len(stats) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	s := stats[0]
	if s.Route != "GET /api/v1/services" || s.RequestCount != 4 {
		t.Errorf("busiest route = %+v", s)
	}
	if s.AvgDuration != 25 || s.MinDuration != 10 || s.MaxDuration != 40 || s.P50Duration != 20 {
		t.Errorf("aggregates = %+v", s)
	}
}

func TestPerformanceMonitorWindow(t *testing.T) {
	pm := NewPerformanceMonitor(3, 0)
	for i := int64(1); i <= 5; i++ {
		pm.Record(RequestSample{Route: "/r", Method: http.MethodGet, DurationMS: i})
	}
	recent := pm.Recent(10)
	if len(recent) != 3 || recent[0].DurationMS != 3 || recent[2].DurationMS != 5 {
		t.Errorf("recent = %+v", recent)
	}
}

func TestPerformanceMonitorMiddleware(t *testing.T) {
	pm := NewPerformanceMonitor(10, time.Nanosecond)
	r := chi.NewRouter()
	r.Use(pm.Middleware)
	r.Get("/api/v1/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/jobs/abc", nil))

	recent := pm.Recent(1)
	if len(recent) != 1 || recent[0].Route != "/api/v1/jobs/{id}" || recent[0].StatusCode != http.StatusNotFound {
		t.Errorf("sample = %+v", recent)
	}
}
