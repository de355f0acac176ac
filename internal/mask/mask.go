// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package mask produces allowed-area masks: images of the requested map
// extent that are white where the caller may see data and transparent
// elsewhere.
package mask

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
	"github.com/mrmap-community/mrmap-proxy/internal/imaging"
	"github.com/mrmap-community/mrmap-proxy/internal/upstream"
)

// ErrEmptyArea is returned when there is nothing to render.
var ErrEmptyArea = errors.New("mask: empty allowed area")

// Request describes the map the mask is rendered for.
type Request struct {
	Area   geometry.Area
	BBox   geometry.BBox
	Width  int
	Height int
}

func (r Request) validate() error {
	if r.Area.Empty() {
		return ErrEmptyArea
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("mask: invalid size %dx%d", r.Width, r.Height)
	}
	if r.BBox.Bound.Max[0] <= r.BBox.Bound.Min[0] || r.BBox.Bound.Max[1] <= r.BBox.Bound.Min[1] {
		return fmt.Errorf("mask: degenerate bbox")
	}
	return nil
}

// Source renders masks.
type Source interface {
	Mask(ctx context.Context, req Request) (image.Image, error)
}

// Remote asks a WMS mask server to render the area. The server is
// expected to draw the GEOMETRY parameter (WKT, EPSG:4326) white on a
// transparent background.
type Remote struct {
	fetcher upstream.Fetcher
	baseURL string
	layer   string
}

// NewRemote creates a remote mask source.
func NewRemote(fetcher upstream.Fetcher, baseURL, layer string) *Remote {
	return &Remote{fetcher: fetcher, baseURL: baseURL, layer: layer}
}

// Mask implements Source.
func (m *Remote) Mask(ctx context.Context, req Request) (image.Image, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	target, err := upstream.JoinQuery(m.baseURL, m.params(req))
	if err != nil {
		return nil, err
	}
	resp, err := m.fetcher.Do(ctx, upstream.Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return nil, err
	}
	body, err := resp.ReadAll()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mask server answered %d", resp.StatusCode)
	}
	if ct := resp.ContentType(); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("mask server returned %q", ct)
	}
	img, _, err := imaging.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	return img, nil
}

// params builds a WMS 1.1.1 GetMap so the bbox stays in x/y order.
func (m *Remote) params(req Request) url.Values {
	b := req.BBox.Bound
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	v := url.Values{}
	v.Set("SERVICE", "WMS")
	v.Set("VERSION", "1.1.1")
	v.Set("REQUEST", "GetMap")
	v.Set("LAYERS", m.layer)
	v.Set("STYLES", "")
	v.Set("SRS", req.BBox.CRS.String())
	v.Set("BBOX", strings.Join([]string{f(b.Min[0]), f(b.Min[1]), f(b.Max[0]), f(b.Max[1])}, ","))
	v.Set("WIDTH", strconv.Itoa(req.Width))
	v.Set("HEIGHT", strconv.Itoa(req.Height))
	v.Set("FORMAT", "image/png")
	v.Set("TRANSPARENT", "TRUE")
	v.Set("GEOMETRY", req.Area.WKT())
	return v
}
