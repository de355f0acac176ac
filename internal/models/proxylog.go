// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package models

import "time"

// ProxyLog summarises one proxied request. Its request and response details
// are stored alongside in HTTPRequestLog and HTTPResponseLog.
type ProxyLog struct {
	ID            string    `json:"id"`
	ServiceID     int64     `json:"service_id"`
	Username      string    `json:"username"`
	Operation     string    `json:"operation"`
	URI           string    `json:"uri"`
	StatusCode    int       `json:"status_code"`
	ResponseBytes int64     `json:"response_bytes"`
	Megapixel     float64   `json:"megapixel,omitempty"`
	FeatureCount  int       `json:"feature_count,omitempty"`
	ElapsedMS     int64     `json:"elapsed_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// HTTPRequestLog is the inbound request as received by the proxy.
type HTTPRequestLog struct {
	ID         string              `json:"id"`
	ProxyLogID string              `json:"proxy_log_id"`
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body,omitempty"`
	BodyPath   string              `json:"body_path,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// HTTPResponseLog is the response sent back to the caller. Bodies larger
// than the inline limit live in a file referenced by BodyPath.
type HTTPResponseLog struct {
	ID          string              `json:"id"`
	ProxyLogID  string              `json:"proxy_log_id"`
	StatusCode  int                 `json:"status_code"`
	Headers     map[string][]string `json:"headers"`
	ContentType string              `json:"content_type"`
	Body        []byte              `json:"body,omitempty"`
	BodyPath    string              `json:"body_path,omitempty"`
	ElapsedMS   int64               `json:"elapsed_ms"`
}

// ProxyLogEntry groups the three rows written in one transaction.
type ProxyLogEntry struct {
	Log      ProxyLog        `json:"log"`
	Request  HTTPRequestLog  `json:"request"`
	Response HTTPResponseLog `json:"response"`
}

// ProxyLogFilter narrows log queries.
type ProxyLogFilter struct {
	ServiceID *int64
	Username  string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
