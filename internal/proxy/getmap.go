// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package proxy

import (
	"bytes"
	"errors"
	"image"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
	"github.com/mrmap-community/mrmap-proxy/internal/imaging"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/mask"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
)

type mapResult struct {
	status int
	header http.Header
	body   []byte
	err    error
}

type maskResult struct {
	img image.Image
	err error
}

// parseBBox validates the bbox parameter and writes the exception on failure.
func parseBBox(c *call) (geometry.BBox, bool) {
	bbox, ok, err := c.req.BBox()
	switch {
	case !ok:
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeMissingParameterValue, ows.ParamBBox, "the bbox parameter is required")
		return bbox, false
	case errors.Is(err, geometry.ErrUnsupportedCRS):
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeInvalidCRS, ows.ParamCRS, err.Error())
		return bbox, false
	case err != nil:
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeInvalidParameterValue, ows.ParamBBox, err.Error())
		return bbox, false
	}
	return bbox, true
}

// getMap fetches the map and its allowed-area mask concurrently and returns
// the map with everything outside the area made transparent.
func (h *Handler) getMap(c *call, area geometry.Area) {
	ctx := c.r.Context()
	if len(bytes.TrimSpace(c.req.Body)) > 0 {
		c.deny("a restricted GetMap must be sent as a GET request")
		return
	}
	bbox, ok := parseBBox(c)
	if !ok {
		return
	}
	width, height, err := c.req.Size()
	if err != nil {
		c.outcome = outcomeBadRequest
		c.fail(http.StatusBadRequest, ows.CodeInvalidParameterValue, ows.ParamWidth, err.Error())
		return
	}
	if !area.IntersectsBound(bbox.WGS84()) {
		c.deny("the requested bbox lies outside the allowed area")
		return
	}
	c.x.Megapixel = float64(width) * float64(height) / 1e6

	mapCh := make(chan mapResult, 1)
	maskCh := make(chan maskResult, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mapCh <- h.fetchMap(c)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		img, err := h.deps.Masks.Mask(ctx, mask.Request{Area: area, BBox: bbox, Width: width, Height: height})
		metrics.MaskDuration.Observe(time.Since(start).Seconds())
		maskCh <- maskResult{img: img, err: err}
	}()
	wg.Wait()
	m, mk := <-mapCh, <-maskCh

	if m.err != nil {
		c.upstreamError(m.err)
		return
	}
	mimeType := m.header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		// Exception documents carry no map content.
		c.outcome = outcomeForwarded
		h.respond(c, m.status, m.header, m.body)
		return
	}

	out, err := h.composite(c, m.body, mimeType, mk)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("format", mimeType).Msg("Map could not be re-encoded")
		c.deny("the map format cannot be restricted to the allowed area")
		return
	}

	c.outcome = outcomeMasked
	header := m.header.Clone()
	header.Del("Content-Encoding")
	h.respond(c, m.status, header, out)
}

func (h *Handler) fetchMap(c *call) mapResult {
	resp, err := h.fetch(c.r.Context(), c, c.r.URL.Query())
	if err != nil {
		return mapResult{err: err}
	}
	body, err := resp.ReadAll()
	if err != nil {
		return mapResult{err: err}
	}
	return mapResult{status: resp.StatusCode, header: resp.Header, body: body}
}

// composite masks the decoded map. A missing or unusable mask yields the
// error image instead. It fails only when the map cannot be decoded or
// encoded in its own format.
func (h *Handler) composite(c *call, body []byte, mimeType string, mk maskResult) ([]byte, error) {
	img, _, err := imaging.Decode(body)
	if err != nil {
		return nil, err
	}

	var out image.Image
	switch {
	case mk.err != nil:
		stage := "mask_fetch"
		if errors.Is(mk.err, mask.ErrEmptyArea) {
			stage = "mask_empty"
		}
		out = h.errorImage(c, img.Bounds(), stage, mk.err)
	case mk.img == nil || mk.img.Bounds().Empty():
		out = h.errorImage(c, img.Bounds(), "mask_empty", errors.New("empty mask"))
	default:
		out = imaging.ApplyMask(img, mk.img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, mimeType); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) errorImage(c *call, bounds image.Rectangle, stage string, cause error) image.Image {
	metrics.MaskFailures.WithLabelValues(stage).Inc()
	logging.Ctx(c.r.Context()).Warn().
		Err(cause).
		Int64("service_id", c.svc.ID).
		Str("stage", stage).
		Msg("Mask unavailable, returning error image")
	return imaging.ErrorImage(bounds.Dx(), bounds.Dy(), h.cfg.ErrorColor, imaging.AccessDeniedText)
}
