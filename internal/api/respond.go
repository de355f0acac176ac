// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/validation"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 20

// sanitizeLogValue escapes control characters so client input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, resp *models.APIResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &models.APIResponse{
		Success: true,
		Data:    data,
		Meta:    models.Meta{Timestamp: time.Now().UTC()},
	})
}

func respondList(w http.ResponseWriter, data any, total int, p page) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data:    data,
		Meta:    models.Meta{Timestamp: time.Now().UTC(), Total: &total, Limit: p.Limit, Offset: p.Offset},
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	requestID := logging.RequestIDFromContext(r.Context())
	if err != nil {
		event := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Error: &models.APIError{Code: code, Message: message, RequestID: requestID},
		Meta:  models.Meta{Timestamp: time.Now().UTC()},
	})
}

// respondStoreError maps database errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
	case errors.Is(err, database.ErrConflict):
		respondError(w, r, http.StatusConflict, "CONFLICT", what+" already exists", nil)
	default:
		respondError(w, r, http.StatusInternalServerError, "DATABASE_ERROR", "Database operation failed", err)
	}
}

// decodeBody reads a JSON body into v and validates it. It writes the error
// response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		respondError(w, r, http.StatusBadRequest, "INVALID_JSON", msg, err)
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		apiErr := verr.ToAPIError()
		apiErr.RequestID = logging.RequestIDFromContext(r.Context())
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Error: apiErr,
			Meta:  models.Meta{Timestamp: time.Now().UTC()},
		})
		return false
	}
	return true
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, "INVALID_ID", name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

type page struct {
	Limit  int
	Offset int
}

// parsePage reads limit and offset, clamping limit to the configured
// maximum page size.
func (h *Handler) parsePage(w http.ResponseWriter, r *http.Request) (page, bool) {
	p := page{Limit: h.cfg.Server.DefaultPageSize}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return p, false
		}
		p.Limit = n
	}
	if p.Limit > h.cfg.Server.MaxPageSize {
		p.Limit = h.cfg.Server.MaxPageSize
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return p, false
		}
		p.Offset = n
	}
	return p, true
}

func parseBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
