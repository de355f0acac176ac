// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package geometry holds the spatial checks behind secured requests:
// coordinate reference handling, allowed areas, convex hulls and GML
// coordinate extraction. Allowed areas are always stored in WGS84 lon/lat.
package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ErrUnsupportedCRS is returned for reference systems the proxy cannot
// transform to WGS84. Secured requests in such systems are denied.
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")

const (
	EPSG4326 = 4326
	EPSG3857 = 3857
)

// CRS identifies a supported reference system and the axis order its
// coordinates are written in.
type CRS struct {
	Code int

	// LatLon is true when the first axis is latitude (northing).
	LatLon bool
}

// WGS84 is EPSG:4326 in lon/lat order.
var WGS84 = CRS{Code: EPSG4326}

var mercatorAliases = map[int]bool{3857: true, 900913: true, 102100: true, 102113: true, 3785: true}

// ParseCRS parses the reference system notations used by WMS and WFS.
// URN and OGC URI forms of EPSG:4326 use lat/lon axis order, the short
// forms use lon/lat; callers apply protocol specific rules on top
// (see WithLatLon).
func ParseCRS(s string) (CRS, error) {
	raw := strings.TrimSpace(s)
	v := strings.ToUpper(raw)
	if v == "" {
		return CRS{}, fmt.Errorf("%w: empty", ErrUnsupportedCRS)
	}

	switch {
	case v == "CRS:84" || strings.HasSuffix(v, "CRS84"):
		return WGS84, nil
	case strings.HasPrefix(v, "EPSG:"):
		return fromCode(raw, strings.TrimPrefix(v, "EPSG:"), false)
	case strings.HasPrefix(v, "URN:OGC:DEF:CRS:EPSG:"):
		code := v[strings.LastIndex(v, ":")+1:]
		return fromCode(raw, code, true)
	case strings.HasPrefix(v, "HTTP://WWW.OPENGIS.NET/DEF/CRS/EPSG/"):
		code := v[strings.LastIndex(v, "/")+1:]
		return fromCode(raw, code, true)
	case strings.HasPrefix(v, "HTTP://WWW.OPENGIS.NET/GML/SRS/EPSG.XML#"):
		code := v[strings.LastIndex(v, "#")+1:]
		return fromCode(raw, code, false)
	}
	return CRS{}, fmt.Errorf("%w: %s", ErrUnsupportedCRS, raw)
}

func fromCode(raw, code string, urnForm bool) (CRS, error) {
	n, err := strconv.Atoi(code)
	if err != nil {
		return CRS{}, fmt.Errorf("%w: %s", ErrUnsupportedCRS, raw)
	}
	switch {
	case n == EPSG4326:
		return CRS{Code: EPSG4326, LatLon: urnForm}, nil
	case mercatorAliases[n]:
		return CRS{Code: EPSG3857}, nil
	}
	return CRS{}, fmt.Errorf("%w: %s", ErrUnsupportedCRS, raw)
}

// WithLatLon forces lat/lon axis order for geographic systems, as required
// by WMS 1.3.0 for EPSG:4326.
func (c CRS) WithLatLon() CRS {
	if c.Code == EPSG4326 {
		c.LatLon = true
	}
	return c
}

// String returns the short EPSG notation.
func (c CRS) String() string {
	return "EPSG:" + strconv.Itoa(c.Code)
}

// Axis converts a point written in this CRS's axis order to x/y order.
// It is its own inverse.
func (c CRS) Axis(p orb.Point) orb.Point {
	if c.LatLon {
		return orb.Point{p[1], p[0]}
	}
	return p
}

// ToWGS84 converts an x/y ordered point to lon/lat.
func (c CRS) ToWGS84(p orb.Point) orb.Point {
	if c.Code == EPSG3857 {
		return project.Mercator.ToWGS84(p)
	}
	return p
}

// FromWGS84 converts lon/lat to x/y in this CRS.
func (c CRS) FromWGS84(p orb.Point) orb.Point {
	if c.Code == EPSG3857 {
		return project.WGS84.ToMercator(p)
	}
	return p
}

// BBox is a request bounding box in its request CRS, already in x/y order.
type BBox struct {
	Bound orb.Bound
	CRS   CRS
}

// ParseBBox parses "minx,miny,maxx,maxy[,crs]". Coordinates are read in the
// CRS's axis order. A trailing CRS element overrides crs.
func ParseBBox(s string, crs CRS) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return BBox{}, fmt.Errorf("bbox %q must have four coordinates", s)
	}
	if len(parts) == 5 {
		c, err := ParseCRS(parts[4])
		if err != nil {
			return BBox{}, err
		}
		crs = c
	}

	var v [4]float64
	for i := 0; i < 4; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}

	lo := crs.Axis(orb.Point{v[0], v[1]})
	hi := crs.Axis(orb.Point{v[2], v[3]})
	if lo[0] > hi[0] || lo[1] > hi[1] {
		return BBox{}, fmt.Errorf("bbox %q has min greater than max", s)
	}
	return BBox{Bound: orb.Bound{Min: lo, Max: hi}, CRS: crs}, nil
}

// WGS84 returns the bounding box in lon/lat. Mercator maps rectangles to
// rectangles so transforming the corners is exact.
func (b BBox) WGS84() orb.Bound {
	return orb.Bound{Min: b.CRS.ToWGS84(b.Bound.Min), Max: b.CRS.ToWGS84(b.Bound.Max)}
}
