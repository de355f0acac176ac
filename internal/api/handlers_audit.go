// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
)

// ListAuditEvents pages through the admin audit trail, newest first.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := audit.QueryFilter{
		Type:       audit.EventType(q.Get("type")),
		Actor:      q.Get("actor"),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
		Limit:      p.Limit,
		Offset:     p.Offset,
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

	events, total, err := h.audit.Query(r.Context(), f)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "AUDIT_STORE_ERROR", "Audit events could not be read", err)
		return
	}
	respondList(w, events, total, p)
}
