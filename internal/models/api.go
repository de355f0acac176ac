// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package models

import "time"

// APIResponse wraps every admin API response.
//
//	{"success": true, "data": {...}, "meta": {"timestamp": "...", "total": 3}}
//	{"success": false, "data": null, "error": {"code": "NOT_FOUND", ...}}
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error,omitempty"`
	Meta    Meta      `json:"meta"`
}

// APIError describes a failed request. Code is machine readable, e.g.
// VALIDATION_ERROR, NOT_FOUND, DATABASE_ERROR.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Meta carries pagination for list responses.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	Total     *int      `json:"total,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}
