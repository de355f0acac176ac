// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"errors"
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/jobs"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/proxylog"
)

// ListServices pages through registered services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := models.ServiceFilter{Search: q.Get("search"), Limit: p.Limit, Offset: p.Offset}
	if t := q.Get("type"); t != "" {
		st, ok := models.ParseServiceType(t)
		if !ok {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "type must be WMS or WFS", nil)
			return
		}
		f.Type = st
	}
	active, err := parseBool(q.Get("active"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "active must be a boolean", nil)
		return
	}
	f.IsActive = active

	services, total, err := h.db.ListServices(r.Context(), f)
	if err != nil {
		respondStoreError(w, r, "service", err)
		return
	}
	respondList(w, services, total, p)
}

// GetService returns one service.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	svc, err := h.db.GetService(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "service", err)
		return
	}
	respondData(w, http.StatusOK, svc)
}

// RegisterService queues a registration job and answers 202 with the job.
func (h *Handler) RegisterService(w http.ResponseWriter, r *http.Request) {
	var req jobs.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := h.jobs.Submit(jobs.KindRegisterService, auth.GetAuthSubject(r.Context()).Username, h.registrar.Task(req))
	if errors.Is(err, jobs.ErrQueueFull) {
		w.Header().Set("Retry-After", "30")
		respondError(w, r, http.StatusServiceUnavailable, "QUEUE_FULL", "Too many pending registrations", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "JOB_ERROR", "Registration could not be queued", err)
		return
	}
	h.audit.Record(r, audit.EventServiceRegistrationQueued, audit.OutcomeSuccess, "job", job.ID,
		"Service registration queued", map[string]any{"url": req.URL})
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	respondData(w, http.StatusAccepted, job)
}

type updateServiceRequest struct {
	Title          *string `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	IsActive       *bool   `json:"is_active,omitempty"`
	IsSecured      *bool   `json:"is_secured,omitempty"`
	LogProxyAccess *bool   `json:"log_proxy_access,omitempty"`
}

// UpdateService changes the title and flags of a service.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.applyServiceUpdate(w, r, id, models.ServiceUpdate{
		Title:          req.Title,
		IsActive:       req.IsActive,
		IsSecured:      req.IsSecured,
		LogProxyAccess: req.LogProxyAccess,
	})
}

// serviceFlag returns a handler setting one flag to a fixed value.
func (h *Handler) serviceFlag(set func(*models.ServiceUpdate, *bool), value bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var u models.ServiceUpdate
		v := value
		set(&u, &v)
		h.applyServiceUpdate(w, r, id, u)
	}
}

func setActive(u *models.ServiceUpdate, v *bool)  { u.IsActive = v }
func setSecured(u *models.ServiceUpdate, v *bool) { u.IsSecured = v }

type loggingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetServiceLogging toggles proxy access logging.
func (h *Handler) SetServiceLogging(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req loggingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.applyServiceUpdate(w, r, id, models.ServiceUpdate{LogProxyAccess: req.Enabled})
}

func (h *Handler) applyServiceUpdate(w http.ResponseWriter, r *http.Request, id int64, u models.ServiceUpdate) {
	svc, err := h.db.UpdateService(r.Context(), id, u)
	if err != nil {
		respondStoreError(w, r, "service", err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int64("service_id", id).
		Bool("active", svc.IsActive).
		Bool("secured", svc.IsSecured).
		Bool("logging", svc.LogProxyAccess).
		Msg("Service updated")
	h.audit.Record(r, audit.EventServiceUpdated, audit.OutcomeSuccess, "service", itoa(id), "Service updated",
		map[string]any{"active": svc.IsActive, "secured": svc.IsSecured, "logging": svc.LogProxyAccess})
	respondData(w, http.StatusOK, svc)
}

// DeleteService removes a service with its grants, logs and cached
// capabilities.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	attachments, err := h.db.DeleteService(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "service", err)
		return
	}
	proxylog.RemoveAttachments(attachments...)
	h.audit.Record(r, audit.EventServiceDeleted, audit.OutcomeSuccess, "service", itoa(id), "Service deleted", nil)
	h.invalidateCapabilities(r, id)
	if !h.syncPolicy(w, r) {
		return
	}
	logging.Ctx(r.Context()).Info().Int64("service_id", id).Msg("Service deleted")
	w.WriteHeader(http.StatusNoContent)
}

// RefreshCapabilities drops the cached documents so the next
// GetCapabilities request fetches them from the origin.
func (h *Handler) RefreshCapabilities(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.db.GetService(r.Context(), id); err != nil {
		respondStoreError(w, r, "service", err)
		return
	}
	if h.caps != nil {
		if err := h.caps.Invalidate(id); err != nil {
			respondError(w, r, http.StatusInternalServerError, "CACHE_ERROR", "Capabilities cache could not be cleared", err)
			return
		}
	}
	respondData(w, http.StatusOK, map[string]any{"service_id": id, "invalidated": true})
}

func (h *Handler) invalidateCapabilities(r *http.Request, id int64) {
	if h.caps == nil {
		return
	}
	if err := h.caps.Invalidate(id); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int64("service_id", id).Msg("Capabilities cache not cleared")
	}
}
