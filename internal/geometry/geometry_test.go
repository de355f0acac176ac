// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package geometry

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

// square returns an allowed area spanning [min,max] on both axes.
func square(t *testing.T, min, max float64) Area {
	t.Helper()
	ring := orb.Ring{{min, min}, {max, min}, {max, max}, {min, max}, {min, min}}
	return NewArea(orb.MultiPolygon{{ring}})
}

func assertBool(t *testing.T, name string, got, want bool) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

// ============================================================================
// CRS and bounding boxes
// ============================================================================

func TestParseCRS(t *testing.T) {
	tests := []struct {
		in     string
		code   int
		latLon bool
		err    bool
	}{
		{"EPSG:4326", 4326, false, false},
		{"epsg:4326", 4326, false, false},
		{"CRS:84", 4326, false, false},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", 4326, false, false},
		{"urn:ogc:def:crs:EPSG::4326", 4326, true, false},
		{"http://www.opengis.net/def/crs/EPSG/0/4326", 4326, true, false},
		{"http://www.opengis.net/gml/srs/epsg.xml#4326", 4326, false, false},
		{"EPSG:900913", 3857, false, false},
		{"EPSG:3857", 3857, false, false},
		{"EPSG:25832", 0, false, true},
		{"", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCRS(tt.in)
			if tt.err {
				if !errors.Is(err, ErrUnsupportedCRS) {
					t.Fatalf("expected ErrUnsupportedCRS, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Code != tt.code || got.LatLon != tt.latLon {
				t.Errorf("ParseCRS(%q) = %+v", tt.in, got)
			}
		})
	}
}

func TestParseBBoxAxisOrder(t *testing.T) {
	b, err := ParseBBox("47,5,55,15", WGS84.WithLatLon())
	if err != nil {
		t.Fatal(err)
	}
	want := orb.Bound{Min: orb.Point{5, 47}, Max: orb.Point{15, 55}}
	if b.Bound != want {
		t.Errorf("bound = %v, want %v", b.Bound, want)
	}

	b, err = ParseBBox("5,47,15,55,urn:ogc:def:crs:EPSG::4326", WGS84)
	if err != nil {
		t.Fatal(err)
	}
	if !b.CRS.LatLon {
		t.Error("trailing URN CRS should select lat/lon")
	}

	if _, err := ParseBBox("1,2,3", WGS84); err == nil {
		t.Error("expected error for three values")
	}
	if _, err := ParseBBox("10,0,0,10", WGS84); err == nil {
		t.Error("expected error for inverted box")
	}
}

func TestBBoxMercatorToWGS84(t *testing.T) {
	crs, _ := ParseCRS("EPSG:3857")
	b, err := ParseBBox("0,0,1113194.9079327357,1118889.9748579594", crs)
	if err != nil {
		t.Fatal(err)
	}
	got := b.WGS84()
	if math.Abs(got.Max[0]-10) > 1e-6 || math.Abs(got.Max[1]-10) > 1e-6 {
		t.Errorf("max = %v, want ~(10,10)", got.Max)
	}
}

// ============================================================================
// Area predicates
// ============================================================================

func TestAreaIntersectsBound(t *testing.T) {
	area := square(t, 0, 10)
	tests := []struct {
		name string
		b    orb.Bound
		want bool
	}{
		{"inside", orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{3, 3}}, true},
		{"overlapping", orb.Bound{Min: orb.Point{8, 8}, Max: orb.Point{12, 12}}, true},
		{"enclosing", orb.Bound{Min: orb.Point{-5, -5}, Max: orb.Point{15, 15}}, true},
		{"disjoint", orb.Bound{Min: orb.Point{20, 20}, Max: orb.Point{30, 30}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertBool(t, "IntersectsBound", area.IntersectsBound(tt.b), tt.want)
		})
	}

	assertBool(t, "empty area", Area{}.IntersectsBound(orb.Bound{Max: orb.Point{1, 1}}), false)
}

func TestAreaIntersectsCrossingBound(t *testing.T) {
	// a thin horizontal box crossing the square with no corner inside it
	area := square(t, 0, 10)
	b := orb.Bound{Min: orb.Point{-5, 4}, Max: orb.Point{15, 6}}
	assertBool(t, "IntersectsBound", area.IntersectsBound(b), true)
}

func TestAreaCoversBound(t *testing.T) {
	area := square(t, 0, 10)
	assertBool(t, "inside", area.CoversBound(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{9, 9}}), true)
	assertBool(t, "overlap", area.CoversBound(orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{11, 9}}), false)
}

func TestAreaConcaveContainment(t *testing.T) {
	// U shape: the hull of the two arm tips spans the notch
	u := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10}, {0, 0}}
	area := NewArea(orb.MultiPolygon{{u}})

	assertBool(t, "one arm", area.ContainsPoints([]orb.Point{{1, 5}, {2, 9}}), true)
	assertBool(t, "across notch", area.ContainsPoints([]orb.Point{{1, 8}, {9, 8}}), false)
	assertBool(t, "no points", area.ContainsPoints(nil), true)
}

func TestAreaWithHole(t *testing.T) {
	// square 0..10 with the excluded zone 4..6
	outer := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	area := NewArea(orb.MultiPolygon{{outer, hole}})

	bounds := []struct {
		name   string
		b      orb.Bound
		covers bool
		hits   bool
	}{
		{"beside hole", orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{3, 3}}, true, true},
		{"around hole", orb.Bound{Min: orb.Point{3, 3}, Max: orb.Point{7, 7}}, false, true},
		{"crossing hole", orb.Bound{Min: orb.Point{3, 3}, Max: orb.Point{5, 5}}, false, true},
		{"inside hole", orb.Bound{Min: orb.Point{4.5, 4.5}, Max: orb.Point{5.5, 5.5}}, false, false},
	}
	for _, tt := range bounds {
		t.Run(tt.name, func(t *testing.T) {
			assertBool(t, "CoversBound", area.CoversBound(tt.b), tt.covers)
			assertBool(t, "IntersectsBound", area.IntersectsBound(tt.b), tt.hits)
		})
	}

	points := []struct {
		name string
		pts  []orb.Point
		want bool
	}{
		{"ring around hole", []orb.Point{{2, 2}, {8, 2}, {8, 8}, {2, 8}}, false},
		{"diagonal through hole corners", []orb.Point{{3, 3}, {7, 7}}, false},
		{"point in hole", []orb.Point{{5, 5}}, false},
		{"clear of hole", []orb.Point{{1, 1}, {3, 1}, {2, 3}}, true},
		{"segment clear of hole", []orb.Point{{1, 1}, {9, 1}}, true},
	}
	for _, tt := range points {
		t.Run(tt.name, func(t *testing.T) {
			assertBool(t, "ContainsPoints", area.ContainsPoints(tt.pts), tt.want)
		})
	}
}

func TestParseArea(t *testing.T) {
	mp, err := ParseArea("POLYGON((0 0,10 0,10 10,0 10,0 0))")
	if err != nil {
		t.Fatal(err)
	}
	if len(mp) != 1 {
		t.Fatalf("got %d polygons", len(mp))
	}
	if _, err := ParseArea("POINT(1 2)"); err == nil {
		t.Error("expected error for point")
	}
	if !strings.HasPrefix(NewArea(mp).WKT(), "MULTIPOLYGON") {
		t.Errorf("WKT = %s", NewArea(mp).WKT())
	}
}

// ============================================================================
// Convex hull
// ============================================================================

func TestConvexHull(t *testing.T) {
	pts := []orb.Point{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 0.5}, {0, 0}}
	hull := ConvexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("hull = %v, want 4 corners", hull)
	}
	for _, p := range hull {
		if p.Equal(orb.Point{1, 1}) || p.Equal(orb.Point{1, 0.5}) {
			t.Errorf("interior point %v in hull", p)
		}
	}

	line := ConvexHull([]orb.Point{{0, 0}, {1, 1}, {2, 2}})
	if len(line) != 2 {
		t.Errorf("collinear hull = %v", line)
	}
	if len(ConvexHull([]orb.Point{{3, 3}})) != 1 {
		t.Error("single point hull")
	}
}

// ============================================================================
// GML scanning
// ============================================================================

const gml3Collection = `<?xml version="1.0"?>
<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2" xmlns:app="urn:app">
  <wfs:member>
    <app:parcel>
      <app:geom>
        <gml:Polygon srsName="urn:ogc:def:crs:EPSG::4326">
          <gml:exterior><gml:LinearRing>
            <gml:posList>50 7 50 8 51 8 50 7</gml:posList>
          </gml:LinearRing></gml:exterior>
        </gml:Polygon>
      </app:geom>
    </app:parcel>
  </wfs:member>
  <wfs:member>
    <app:parcel><app:geom><gml:Point srsName="EPSG:4326"><gml:pos>7.5 50.5</gml:pos></gml:Point></app:geom></app:parcel>
  </wfs:member>
</wfs:FeatureCollection>`

func TestScanGML3(t *testing.T) {
	sum, err := ScanGML(strings.NewReader(gml3Collection), WGS84)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Features != 2 {
		t.Errorf("features = %d, want 2", sum.Features)
	}
	if len(sum.Points) != 5 {
		t.Fatalf("points = %v", sum.Points)
	}
	// lat/lon posList must be swapped to lon/lat
	if !sum.Points[0].Equal(orb.Point{7, 50}) {
		t.Errorf("first point = %v, want [7 50]", sum.Points[0])
	}
	if !sum.Points[4].Equal(orb.Point{7.5, 50.5}) {
		t.Errorf("last point = %v", sum.Points[4])
	}
}

func TestScanGML2CoordinatesAndFeatureMembers(t *testing.T) {
	doc := `<FeatureCollection xmlns:gml="http://www.opengis.net/gml">
  <gml:featureMembers>
    <a><gml:Point><gml:coordinates decimal="," cs=";" ts=" ">1,5;2,5</gml:coordinates></gml:Point></a>
    <b><gml:Point><gml:coord><gml:X>3</gml:X><gml:Y>4</gml:Y></gml:coord></gml:Point></b>
  </gml:featureMembers>
</FeatureCollection>`
	sum, err := ScanGML(strings.NewReader(doc), WGS84)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Features != 2 {
		t.Errorf("features = %d, want 2", sum.Features)
	}
	want := []orb.Point{{1.5, 2.5}, {3, 4}}
	if len(sum.Points) != len(want) {
		t.Fatalf("points = %v", sum.Points)
	}
	for i := range want {
		if !sum.Points[i].Equal(want[i]) {
			t.Errorf("point %d = %v, want %v", i, sum.Points[i], want[i])
		}
	}
}

func TestScanGMLRejectsUnknownCRS(t *testing.T) {
	doc := `<c xmlns:gml="http://www.opengis.net/gml"><gml:Point srsName="EPSG:31467"><gml:pos>1 2</gml:pos></gml:Point></c>`
	if _, err := ScanGML(strings.NewReader(doc), WGS84); !errors.Is(err, ErrUnsupportedCRS) {
		t.Errorf("expected ErrUnsupportedCRS, got %v", err)
	}
}

func TestScanGMLMalformed(t *testing.T) {
	if _, err := ScanGML(strings.NewReader("<a><b></a>"), WGS84); err == nil {
		t.Error("expected error for malformed xml")
	}
}
