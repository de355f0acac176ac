// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

type createAllowedOperationRequest struct {
	ServiceID   int64    `json:"service_id" validate:"required,gt=0"`
	GroupID     int64    `json:"group_id" validate:"required,gt=0"`
	Operations  []string `json:"operations" validate:"required,min=1,dive,ogc_operation"`
	Description string   `json:"description" validate:"max=1000"`

	// AllowedArea is a WKT string or a GeoJSON geometry or feature. Null
	// leaves the grant spatially unrestricted.
	AllowedArea json.RawMessage `json:"allowed_area"`
}

// allowedOperationView renders the area as WKT.
type allowedOperationView struct {
	models.AllowedOperation
	AllowedArea *string `json:"allowed_area"`
}

func viewAllowedOperation(a models.AllowedOperation) allowedOperationView {
	v := allowedOperationView{AllowedOperation: a}
	if len(a.AllowedArea) > 0 {
		s := geometry.NewArea(a.AllowedArea).WKT()
		v.AllowedArea = &s
	}
	return v
}

var (
	errAreaFormat = errors.New("allowed_area must be a WKT string or a GeoJSON polygon")
	errAreaEmpty  = errors.New("allowed_area encloses no surface, use null for an unrestricted grant")
)

// parseAllowedArea decodes the area of a grant request. A present area
// must keep at least one polygon.
func parseAllowedArea(raw json.RawMessage) (orb.MultiPolygon, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	mp, err := decodeAllowedArea(raw)
	if err != nil {
		return nil, err
	}
	area := geometry.NewArea(mp)
	if area.Empty() {
		return nil, errAreaEmpty
	}
	return area.MultiPolygon(), nil
}

func decodeAllowedArea(raw json.RawMessage) (orb.MultiPolygon, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errAreaFormat
		}
		return geometry.ParseArea(s)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errAreaFormat
	}
	var g orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, err
		}
		g = f.Geometry
	case "Polygon", "MultiPolygon":
		gg, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, err
		}
		g = gg.Geometry()
	default:
		return nil, errAreaFormat
	}
	if g == nil {
		return nil, errAreaFormat
	}
	return geometry.AsMultiPolygon(g)
}

// ListAllowedOperations returns grants, optionally of one service.
func (h *Handler) ListAllowedOperations(w http.ResponseWriter, r *http.Request) {
	var serviceID *int64
	if v := r.URL.Query().Get("service_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "service_id must be a positive integer", nil)
			return
		}
		serviceID = &id
	}
	ops, err := h.db.ListAllowedOperations(r.Context(), serviceID)
	if err != nil {
		respondStoreError(w, r, "allowed operation", err)
		return
	}
	views := make([]allowedOperationView, 0, len(ops))
	for _, a := range ops {
		views = append(views, viewAllowedOperation(a))
	}
	respondData(w, http.StatusOK, views)
}

// CreateAllowedOperation grants a group operations on a service.
func (h *Handler) CreateAllowedOperation(w http.ResponseWriter, r *http.Request) {
	var req createAllowedOperationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	area, err := parseAllowedArea(req.AllowedArea)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_AREA", err.Error(), nil)
		return
	}
	a := &models.AllowedOperation{
		ServiceID:   req.ServiceID,
		GroupID:     req.GroupID,
		Operations:  req.Operations,
		AllowedArea: area,
		Description: req.Description,
	}
	if err := h.db.CreateAllowedOperation(r.Context(), a); err != nil {
		respondStoreError(w, r, "service or group", err)
		return
	}
	h.audit.Record(r, audit.EventGrantCreated, audit.OutcomeSuccess, "allowed_operation", itoa(a.ID), "Grant created",
		map[string]any{"service_id": a.ServiceID, "group_id": a.GroupID, "operations": a.Operations, "restricted": area != nil})
	if !h.syncPolicy(w, r) {
		return
	}
	respondData(w, http.StatusCreated, viewAllowedOperation(*a))
}

// GetAllowedOperation returns one grant.
func (h *Handler) GetAllowedOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.db.GetAllowedOperation(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "allowed operation", err)
		return
	}
	respondData(w, http.StatusOK, viewAllowedOperation(*a))
}

// DeleteAllowedOperation revokes a grant.
func (h *Handler) DeleteAllowedOperation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.db.DeleteAllowedOperation(r.Context(), id); err != nil {
		respondStoreError(w, r, "allowed operation", err)
		return
	}
	h.audit.Record(r, audit.EventGrantDeleted, audit.OutcomeSuccess, "allowed_operation", itoa(id), "Grant deleted", nil)
	if !h.syncPolicy(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
