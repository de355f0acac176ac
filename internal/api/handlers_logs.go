// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

// ListProxyLogs pages through access log summaries, newest first.
func (h *Handler) ListProxyLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := models.ProxyLogFilter{Username: q.Get("username"), Limit: p.Limit, Offset: p.Offset}
	if v := q.Get("service_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "service_id must be a positive integer", nil)
			return
		}
		f.ServiceID = &id
	}
	var err error
	if f.Since, err = parseTime(q.Get("since")); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "since must be an RFC 3339 timestamp", nil)
		return
	}
	if f.Until, err = parseTime(q.Get("until")); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "until must be an RFC 3339 timestamp", nil)
		return
	}

	logs, total, err := h.db.ListProxyLogs(r.Context(), f)
	if err != nil {
		respondStoreError(w, r, "proxy log", err)
		return
	}
	respondList(w, logs, total, p)
}

// GetProxyLog returns one entry with its captured request and response.
func (h *Handler) GetProxyLog(w http.ResponseWriter, r *http.Request) {
	e, err := h.db.GetProxyLogEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, "proxy log", err)
		return
	}
	respondData(w, http.StatusOK, e)
}
