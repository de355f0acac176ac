// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mrmap-community/mrmap-proxy/internal/jobs"
)

// ListJobs returns the jobs still held in memory.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.jobs.List())
}

// GetJob returns one job, including finished jobs kept in the store.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(chi.URLParam(r, "id"))
	if errors.Is(err, jobs.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "job not found", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "JOB_STORE_ERROR", "job could not be read", err)
		return
	}
	respondData(w, http.StatusOK, job)
}
