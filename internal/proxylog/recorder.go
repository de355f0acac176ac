// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package proxylog

import (
	"bytes"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

// MaxCapture bounds the response body kept for logging. Bytes beyond it are
// counted but not stored.
const MaxCapture = 32 << 20

// Recorder tees a response into memory while it is written to the client.
type Recorder struct {
	http.ResponseWriter
	status  int
	written int64
	body    bytes.Buffer
}

// NewRecorder wraps w.
func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *Recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if room := MaxCapture - r.body.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		r.body.Write(p[:room])
	}
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

// Flush supports streamed responses.
func (r *Recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *Recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Status returns the response status, 200 if only a body was written.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Written is the number of body bytes sent to the client.
func (r *Recorder) Written() int64 { return r.written }

// Exchange describes one proxied request for logging.
type Exchange struct {
	ServiceID    int64
	Username     string
	Operation    string
	Request      *http.Request
	RequestBody  []byte
	Started      time.Time
	Megapixel    float64
	FeatureCount int
}

// Entry builds the log rows from the exchange and the recorded response.
func (x *Exchange) Entry(rec *Recorder) *models.ProxyLogEntry {
	id := uuid.New().String()
	elapsed := time.Since(x.Started).Milliseconds()
	header := rec.Header()

	return &models.ProxyLogEntry{
		Log: models.ProxyLog{
			ID:            id,
			ServiceID:     x.ServiceID,
			Username:      x.Username,
			Operation:     x.Operation,
			URI:           x.Request.URL.RequestURI(),
			StatusCode:    rec.Status(),
			ResponseBytes: rec.Written(),
			Megapixel:     x.Megapixel,
			FeatureCount:  x.FeatureCount,
			ElapsedMS:     elapsed,
			Timestamp:     x.Started.UTC(),
		},
		Request: models.HTTPRequestLog{
			ID:         uuid.New().String(),
			ProxyLogID: id,
			Method:     x.Request.Method,
			URL:        x.Request.URL.String(),
			Headers:    redact(x.Request.Header),
			Body:       x.RequestBody,
			Timestamp:  x.Started.UTC(),
		},
		Response: models.HTTPResponseLog{
			ID:          uuid.New().String(),
			ProxyLogID:  id,
			StatusCode:  rec.Status(),
			Headers:     header.Clone(),
			ContentType: header.Get("Content-Type"),
			Body:        bytes.Clone(rec.body.Bytes()),
			ElapsedMS:   elapsed,
		},
	}
}

var sensitiveHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

func redact(h http.Header) map[string][]string {
	out := h.Clone()
	for _, name := range sensitiveHeaders {
		if _, ok := out[name]; ok {
			out[name] = []string{"[redacted]"}
		}
	}
	return out
}
