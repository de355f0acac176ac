// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package proxy

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
)

// gmlFormat is requested when the caller asked for a format that cannot be
// checked.
const gmlFormat = "text/xml"

func isXML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "xml") || strings.Contains(ct, "gml")
}

// features answers GetFeatureInfo, GetFeature and their variants. A bbox
// inside the allowed area is forwarded. Otherwise the returned features
// must lie inside it: their convex hull is checked against each allowed
// polygon.
func (h *Handler) features(c *call, area geometry.Area) {
	ctx := c.r.Context()

	// A POST body carries its own query, so only the response can be checked.
	bbox, hasBBox, err := c.req.BBox()
	if hasBBox && err == nil && len(bytes.TrimSpace(c.req.Body)) == 0 && area.CoversBound(bbox.WGS84()) {
		h.forward(c)
		return
	}

	resp, err := h.fetch(ctx, c, c.r.URL.Query())
	if err != nil {
		c.upstreamError(err)
		return
	}
	body, err := resp.ReadAll()
	if err != nil {
		c.upstreamError(err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		c.outcome = outcomeForwarded
		h.respond(c, resp.StatusCode, resp.Header, body)
		return
	}

	gml := body
	if !isXML(resp.ContentType()) {
		if c.r.Method != http.MethodGet {
			c.deny("the response format cannot be checked against the allowed area")
			return
		}
		gml, err = h.fetchGML(c)
		if err != nil {
			c.upstreamError(err)
			return
		}
		if gml == nil {
			c.deny("the response cannot be checked against the allowed area")
			return
		}
	}

	crs := geometry.WGS84
	if reqCRS, err := c.req.CRS(); err == nil {
		crs = reqCRS
	}
	sum, err := geometry.ScanGML(bytes.NewReader(gml), crs)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int64("service_id", c.svc.ID).Msg("Feature response is not checkable GML")
		c.deny("the response cannot be checked against the allowed area")
		return
	}
	c.x.FeatureCount = sum.Features

	if !area.ContainsPoints(sum.Points) {
		c.deny("the requested features lie outside the allowed area")
		return
	}

	c.outcome = outcomeChecked
	h.respond(c, resp.StatusCode, resp.Header, body)
}

// fetchGML repeats the request asking for GML. It returns nil when the
// origin does not answer with XML.
func (h *Handler) fetchGML(c *call) ([]byte, error) {
	params := c.req.Query.With(c.req.FormatParam(), gmlFormat)
	resp, err := h.fetch(c.r.Context(), c, params)
	if err != nil {
		return nil, err
	}
	body, err := resp.ReadAll()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || !isXML(resp.ContentType()) {
		return nil, nil
	}
	return body, nil
}

// transaction validates every geometry of a WFS-T request against the
// allowed area before forwarding it.
func (h *Handler) transaction(c *call, area geometry.Area) {
	if len(bytes.TrimSpace(c.req.Body)) == 0 {
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeMissingParameterValue, "", "Transaction requires an XML request body")
		return
	}

	crs := geometry.WGS84
	if reqCRS, err := c.req.CRS(); err == nil {
		crs = reqCRS
	}
	tx, err := ows.ParseTransaction(c.req.Body, crs)
	if err != nil {
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeInvalidParameterValue, "", err.Error())
		return
	}

	if err := tx.Validate(area, h.cfg.MaxInsertFeatureTypes); err != nil {
		reason := "the transaction is not allowed"
		switch {
		case errors.Is(err, ows.ErrGeometryOutside),
			errors.Is(err, ows.ErrNoSpatialFilter),
			errors.Is(err, ows.ErrUnsafeFilter),
			errors.Is(err, ows.ErrTooManyInsertTypes),
			errors.Is(err, ows.ErrNativeAction):
			reason = err.Error()
		}
		logging.Ctx(c.r.Context()).Info().
			Err(err).
			Int64("service_id", c.svc.ID).
			Str("user", c.subject.Username).
			Msg("Transaction rejected")
		c.deny(reason)
		return
	}
	h.forward(c)
}
