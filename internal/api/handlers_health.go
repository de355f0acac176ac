// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]any{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// HealthReady reports whether the database answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, "NOT_READY", "Database unavailable", err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"status": "ready", "database": "connected"})
}

// HealthPerformance returns per-route latency percentiles.
func (h *Handler) HealthPerformance(w http.ResponseWriter, r *http.Request) {
	if h.perf == nil {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Performance monitoring disabled", nil)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"routes": h.perf.Stats(),
		"recent": h.perf.Recent(20),
	})
}
