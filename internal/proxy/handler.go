// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package proxy is the security facade in front of registered OGC services.
//
// Every request to /ows/{serviceID} walks the same decision sequence:
//
//  1. unknown service: 404
//  2. no operation in the query or POST body: 400
//  3. GetCapabilities: camouflaged document from the cache, no checks
//  4. inactive service: 423
//  5. unsecured service, or an entitled caller asking for an operation that
//     cannot leak data outside an area: forwarded unchanged
//  6. entitled caller, restrictable operation: spatial handler
//     (GetMap masking, feature hull checks, Transaction validation);
//     caller without a grant: 403
//
// A caller holding a grant without an allowed area is spatially
// unrestricted and is forwarded in step 6 as well. Grants whose area is
// empty allow no restrictable operation.
package proxy

import (
	"context"
	"errors"
	"image/color"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/capabilities"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/mask"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
	"github.com/mrmap-community/mrmap-proxy/internal/proxylog"
	"github.com/mrmap-community/mrmap-proxy/internal/upstream"
)

// maxRequestBody bounds POST bodies read from clients.
const maxRequestBody = 16 << 20

// Outcomes reported in proxy metrics.
const (
	outcomeNotFound     = "not_found"
	outcomeBadRequest   = "bad_request"
	outcomeCapabilities = "capabilities"
	outcomeLocked       = "locked"
	outcomeForwarded    = "forwarded"
	outcomeDenied       = "denied"
	outcomeMasked       = "masked"
	outcomeChecked      = "checked"
	outcomeError        = "error"
)

// ServiceStore resolves services and the caller's grants on them.
type ServiceStore interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	Grants(ctx context.Context, serviceID int64, username, operation string) ([]models.Grant, error)
}

// Entitlement answers the non-spatial permission question.
type Entitlement interface {
	Entitled(username string, roles []string, serviceID int64, operation string) (bool, error)
}

// Capabilities serves camouflaged capabilities documents.
type Capabilities interface {
	Get(ctx context.Context, svc *models.Service, version string) (capabilities.Document, error)
}

// AccessLogger receives entries for services with logging enabled.
type AccessLogger interface {
	Log(e *models.ProxyLogEntry)
}

// Config holds the proxy tunables.
type Config struct {
	// StreamThreshold is the body size above which responses are written
	// in flushed chunks.
	StreamThreshold int64

	// ErrorColor fills maps that could not be masked.
	ErrorColor color.NRGBA

	// MaxInsertFeatureTypes bounds the feature types a Transaction may insert.
	MaxInsertFeatureTypes int
}

// Deps are the collaborators of a Handler. Entitlement and Logs are optional.
type Deps struct {
	Services     ServiceStore
	Entitlement  Entitlement
	Fetcher      upstream.Fetcher
	Capabilities Capabilities
	Masks        mask.Source
	Logs         AccessLogger
}

// Handler serves /ows/{serviceID}.
type Handler struct {
	cfg  Config
	deps Deps
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.StreamThreshold <= 0 {
		cfg.StreamThreshold = 5 << 20
	}
	if cfg.MaxInsertFeatureTypes <= 0 {
		cfg.MaxInsertFeatureTypes = 1
	}
	if cfg.ErrorColor == (color.NRGBA{}) {
		cfg.ErrorColor = color.NRGBA{R: 0xFF, A: 0x80}
	}
	if deps.Masks == nil {
		deps.Masks = mask.Rasterizer{}
	}
	return &Handler{cfg: cfg, deps: deps}
}

// call carries the state of one proxied request through the handlers.
type call struct {
	w       http.ResponseWriter
	r       *http.Request
	svc     *models.Service
	req     *ows.Request
	subject *auth.AuthSubject
	x       *proxylog.Exchange
	outcome string
}

func (c *call) wms() bool {
	if c.svc != nil {
		return c.svc.Type == models.ServiceTypeWMS
	}
	return c.req == nil || !c.req.IsWFS()
}

func (c *call) fail(status int, code, locator, text string) {
	ows.WriteException(c.w, status, c.wms(), ows.Exception{Code: code, Locator: locator, Text: text})
}

func (c *call) deny(text string) {
	c.outcome = outcomeDenied
	c.fail(http.StatusForbidden, ows.CodeForbidden, "", text)
}

func (c *call) upstreamError(err error) {
	c.outcome = outcomeError
	ue := upstream.Classify(err)
	logging.Ctx(c.r.Context()).Warn().
		Int64("service_id", c.svc.ID).
		Int("status", ue.StatusCode).
		Str("code", ue.Code).
		Msg("Origin request failed")
	c.fail(ue.StatusCode, ue.Code, "", ue.Content)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c := &call{w: w, r: r, subject: auth.GetAuthSubject(r.Context())}
	if c.subject == nil {
		c.subject = auth.Anonymous()
	}
	defer func() {
		serviceType, op := "", ""
		if c.svc != nil {
			serviceType = string(c.svc.Type)
		}
		if c.req != nil && ows.IsKnownOperation(c.req.Operation) {
			op = c.req.Operation
		} else if c.req != nil {
			op = "other"
		}
		metrics.RecordProxyRequest(serviceType, op, c.outcome, time.Since(start))
	}()

	id, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil {
		c.outcome = outcomeNotFound
		http.NotFound(w, r)
		return
	}
	c.svc, err = h.deps.Services.GetService(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.outcome = outcomeNotFound
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int64("service_id", id).Msg("Service lookup failed")
		c.outcome = outcomeError
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var body []byte
	if r.Method == http.MethodPost {
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			c.outcome = outcomeBadRequest
			c.fail(http.StatusBadRequest, ows.CodeInvalidParameterValue, "", "request body could not be read")
			return
		}
	}

	if c.svc.LogProxyAccess && h.deps.Logs != nil {
		rec := proxylog.NewRecorder(w)
		c.w = rec
		c.x = &proxylog.Exchange{
			ServiceID:   c.svc.ID,
			Username:    c.subject.Username,
			Request:     r,
			RequestBody: body,
			Started:     start,
		}
		defer func() {
			if c.req != nil {
				c.x.Operation = c.req.Operation
			}
			h.deps.Logs.Log(c.x.Entry(rec))
		}()
	} else {
		c.x = &proxylog.Exchange{}
	}

	c.req, err = ows.ParseRequest(r.Method, r.URL.Query(), body)
	var ambiguous *ows.AmbiguousParameterError
	switch {
	case errors.As(err, &ambiguous):
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeInvalidParameterValue, ambiguous.Param, ambiguous.Error())
		return
	case err != nil:
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeMissingParameterValue, ows.ParamRequest, "the request parameter is required")
		return
	}

	h.dispatch(c)
}

func (h *Handler) dispatch(c *call) {
	ctx := c.r.Context()
	op := c.req.Operation

	if op == ows.GetCapabilities {
		h.capabilities(c)
		return
	}

	if !c.svc.IsActive {
		c.outcome = outcomeLocked
		c.fail(http.StatusLocked, ows.CodeOperationNotSupported, "", "service is not active")
		return
	}

	if !c.svc.IsSecured {
		h.forward(c)
		return
	}

	entitled, grants, err := h.entitlement(ctx, c)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int64("service_id", c.svc.ID).Msg("Entitlement check failed")
		c.outcome = outcomeError
		c.fail(http.StatusInternalServerError, ows.CodeNoApplicableCode, "", "access could not be checked")
		return
	}
	if !entitled {
		c.deny("no permission for " + op)
		return
	}

	area, restricted := allowedArea(grants)
	if !restricted || !ows.IsSpatiallyRestrictable(op) {
		h.forward(c)
		return
	}
	if area.Empty() {
		c.deny("the allowed area is empty")
		return
	}

	switch op {
	case ows.GetMap:
		h.getMap(c, area)
	case ows.Transaction:
		h.transaction(c, area)
	default:
		h.features(c, area)
	}
}

// entitlement returns whether the caller may use the operation and the
// grants that carry its allowed areas.
func (h *Handler) entitlement(ctx context.Context, c *call) (bool, []models.Grant, error) {
	op := c.req.Operation
	if h.deps.Entitlement != nil {
		ok, err := h.deps.Entitlement.Entitled(c.subject.Username, c.subject.Roles, c.svc.ID, op)
		if err != nil || !ok {
			return false, nil, err
		}
	}
	grants, err := h.deps.Services.Grants(ctx, c.svc.ID, c.subject.Username, op)
	if err != nil {
		return false, nil, err
	}
	return len(grants) > 0, grants, nil
}

// allowedArea merges the grant areas. restricted is false when any grant
// is unrestricted.
func allowedArea(grants []models.Grant) (area geometry.Area, restricted bool) {
	var parts []orb.MultiPolygon
	for _, g := range grants {
		if g.Unrestricted {
			return geometry.Area{}, false
		}
		parts = append(parts, g.AllowedArea)
	}
	return geometry.NewArea(parts...), true
}

func (h *Handler) capabilities(c *call) {
	doc, err := h.deps.Capabilities.Get(c.r.Context(), c.svc, c.req.Version)
	if err != nil {
		c.upstreamError(err)
		return
	}
	c.outcome = outcomeCapabilities
	header := c.w.Header()
	header.Set("Content-Type", doc.ContentType)
	header.Set("Content-Length", strconv.Itoa(len(doc.Body)))
	header.Set("Last-Modified", doc.FetchedAt.UTC().Format(http.TimeFormat))
	c.w.WriteHeader(http.StatusOK)
	_, _ = c.w.Write(doc.Body)
}
