// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// Area is the union of the polygons a caller may access, in WGS84.
type Area struct {
	polygons orb.MultiPolygon
}

// NewArea merges allowed areas of several grants. Polygons whose outer ring
// encloses no surface are dropped.
func NewArea(areas ...orb.MultiPolygon) Area {
	var a Area
	for _, mp := range areas {
		for _, p := range mp {
			if len(p) > 0 && len(p[0]) >= 4 && ringArea(p[0]) != 0 {
				a.polygons = append(a.polygons, p)
			}
		}
	}
	return a
}

// ringArea is the shoelace sum, twice the signed area of r.
func ringArea(r orb.Ring) float64 {
	var sum float64
	for i := 0; i+1 < len(r); i++ {
		sum += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return sum
}

// Empty reports whether the area has no polygons. An empty area allows nothing.
func (a Area) Empty() bool { return len(a.polygons) == 0 }

// MultiPolygon returns the underlying polygons.
func (a Area) MultiPolygon() orb.MultiPolygon { return a.polygons }

// WKT renders the area, used to hand it to the mask server.
func (a Area) WKT() string {
	return wkt.MarshalString(a.polygons)
}

// IntersectsBound reports whether b shares any point with the area.
func (a Area) IntersectsBound(b orb.Bound) bool {
	rect := b.ToRing()
	for _, p := range a.polygons {
		if !p.Bound().Intersects(b) {
			continue
		}
		for _, corner := range rect {
			if planar.PolygonContains(p, corner) {
				return true
			}
		}
		for _, ring := range p {
			for _, v := range ring {
				if b.Contains(v) {
					return true
				}
			}
			if ringsCross(ring, rect) {
				return true
			}
		}
	}
	return false
}

// CoversBound reports whether b lies completely inside one polygon.
func (a Area) CoversBound(b orb.Bound) bool {
	return a.containsRing(b.ToRing())
}

// ContainsPoints reports whether the convex hull of pts lies inside one
// polygon. No points is trivially contained.
func (a Area) ContainsPoints(pts []orb.Point) bool {
	if len(pts) == 0 {
		return true
	}
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		ring := append(orb.Ring{}, hull...)
		return a.containsRing(ring)
	}
	return a.containsRing(append(orb.Ring(hull), hull[0]))
}

func (a Area) containsRing(ring orb.Ring) bool {
	for _, p := range a.polygons {
		if polygonContainsRing(p, ring) {
			return true
		}
	}
	return false
}

// polygonContainsRing checks every vertex is inside p, no edge of ring
// properly crosses a boundary of p and no hole of p lies within ring, which
// is exact for simple polygons.
func polygonContainsRing(p orb.Polygon, ring orb.Ring) bool {
	if !p.Bound().Contains(ring.Bound().Min) || !p.Bound().Contains(ring.Bound().Max) {
		return false
	}
	for _, v := range ring {
		if !planar.PolygonContains(p, v) {
			return false
		}
	}
	for _, boundary := range p {
		if ringsCross(boundary, ring) {
			return false
		}
	}
	for _, hole := range p[1:] {
		if holeWithin(hole, ring) {
			return false
		}
	}
	return true
}

// holeWithin reports whether a hole vertex lies inside or on ring. With no
// crossing edges that means the hole is enclosed.
func holeWithin(hole, ring orb.Ring) bool {
	if len(ring) < 4 {
		for _, v := range hole {
			if onRing(ring, v) {
				return true
			}
		}
		return false
	}
	if !ring.Bound().Intersects(hole.Bound()) {
		return false
	}
	for _, v := range hole {
		if planar.RingContains(ring, v) {
			return true
		}
	}
	return false
}

// onRing covers hulls that collapsed to a point or a segment.
func onRing(ring orb.Ring, v orb.Point) bool {
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		if cross(a, b, v) == 0 && (orb.Bound{Min: a, Max: a}).Extend(b).Contains(v) {
			return true
		}
	}
	return false
}

func ringsCross(a, b orb.Ring) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsCross(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsCross is true for proper intersections only; touching endpoints
// and collinear overlaps do not count.
func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// ParseArea reads a WKT Polygon or MultiPolygon.
func ParseArea(s string) (orb.MultiPolygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("parse allowed area: %w", err)
	}
	return AsMultiPolygon(g)
}

// AsMultiPolygon accepts Polygon and MultiPolygon geometries.
func AsMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	case orb.Bound:
		return orb.MultiPolygon{v.ToPolygon()}, nil
	}
	return nil, fmt.Errorf("allowed area must be a polygon or multipolygon, got %s", g.GeoJSONType())
}
