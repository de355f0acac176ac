// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package ows

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
)

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func testArea() geometry.Area {
	ring := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	return geometry.NewArea(orb.MultiPolygon{{ring}})
}

// ============================================================================
// Parameters and requests
// ============================================================================

func TestQueryCaseInsensitive(t *testing.T) {
	q := NewQuery(mustQuery(t, "SERVICE=WMS&Request=GetMap&info_FORMAT=text/html"))
	if q.Get("request") != "GetMap" || q.Get("INFO_FORMAT") != "text/html" {
		t.Errorf("case-insensitive lookup failed: %v", q.Values())
	}

	replaced := q.With("info_format", "text/xml")
	if got := NewQuery(replaced).Get("info_format"); got != "text/xml" {
		t.Errorf("With did not replace value, got %q", got)
	}
	if len(replaced) != 3 {
		t.Errorf("expected 3 keys after replace, got %v", replaced)
	}
	if q.Get("info_format") != "text/html" {
		t.Error("With mutated the original query")
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		query   string
		body    string
		wantOp  string
		wantSvc string
		wantErr bool
	}{
		{"query", http.MethodGet, "service=wms&request=getmap", "", GetMap, "WMS", false},
		{"unknown op kept", http.MethodGet, "request=FooBar", "", "FooBar", "", false},
		{"missing", http.MethodGet, "service=wms", "", "", "", true},
		{"post body", http.MethodPost, "", `<wfs:GetFeature xmlns:wfs="http://www.opengis.net/wfs" service="WFS" version="1.1.0"/>`, GetFeature, "WFS", false},
		{"post garbage", http.MethodPost, "", "not xml", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRequest(tt.method, mustQuery(t, tt.query), []byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMissingRequest) {
					t.Fatalf("expected ErrMissingRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if r.Operation != tt.wantOp || r.Service != tt.wantSvc {
				t.Errorf("got op %q service %q", r.Operation, r.Service)
			}
		})
	}
}

func TestQueryGetPrefersExactThenSmallestSpelling(t *testing.T) {
	v := url.Values{"STYLES": {"upper"}, "styles": {"lower"}, "Styles": {"title"}}
	q := NewQuery(v)
	if got := q.Get("styles"); got != "lower" {
		t.Errorf("exact key: got %q", got)
	}
	for i := 0; i < 20; i++ {
		if got := q.Get("sTyLeS"); got != "upper" {
			t.Fatalf("run %d: got %q, want the lexically smallest spelling", i, got)
		}
	}
}

func TestParseRequestRejectsAmbiguousParameters(t *testing.T) {
	tests := []struct {
		name   string
		method string
		query  url.Values
		body   string
		param  string
	}{
		{"bbox spelled twice", http.MethodGet,
			url.Values{"request": {"GetMap"}, "BBOX": {"0,0,1,1"}, "bbox": {"50,50,60,60"}}, "", ParamBBox},
		{"bbox repeated", http.MethodGet,
			url.Values{"request": {"GetMap"}, "bbox": {"0,0,1,1", "50,50,60,60"}}, "", ParamBBox},
		{"request spelled twice", http.MethodGet,
			url.Values{"REQUEST": {"GetCapabilities"}, "request": {"GetMap"}}, "", ParamRequest},
		{"layers spelled twice", http.MethodGet,
			url.Values{"request": {"GetMap"}, "LAYERS": {"a"}, "Layers": {"b"}}, "", ParamLayers},
		{"srsname spelled twice", http.MethodGet,
			url.Values{"request": {"GetFeature"}, "srsName": {"EPSG:4326"}, "SRSNAME": {"EPSG:3857"}}, "", ParamSRSName},
		{"body names another operation", http.MethodPost,
			url.Values{"request": {"GetCapabilities"}},
			`<wfs:Transaction xmlns:wfs="http://www.opengis.net/wfs" service="WFS"/>`, ParamRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.method, tt.query, []byte(tt.body))
			var ambiguous *AmbiguousParameterError
			if !errors.As(err, &ambiguous) {
				t.Fatalf("expected AmbiguousParameterError, got %v", err)
			}
			if ambiguous.Param != tt.param {
				t.Errorf("param = %q, want %q", ambiguous.Param, tt.param)
			}
		})
	}

	// Multi-valued and matching parameters stay accepted.
	for _, query := range []url.Values{
		{"request": {"GetMap"}, "styles": {"a"}, "STYLES": {"b"}},
		{"request": {"GetFeature"}},
	} {
		if _, err := ParseRequest(http.MethodGet, query, nil); err != nil {
			t.Errorf("%v: %v", query, err)
		}
	}
	body := `<wfs:GetFeature xmlns:wfs="http://www.opengis.net/wfs" service="WFS"/>`
	if _, err := ParseRequest(http.MethodPost, url.Values{"request": {"getfeature"}}, []byte(body)); err != nil {
		t.Errorf("matching body: %v", err)
	}
}

func TestRequestCRSDefaults(t *testing.T) {
	tests := []struct {
		query      string
		wantLatLon bool
	}{
		{"service=WFS&version=2.0.0&request=GetFeature", true},
		{"service=WFS&version=1.1.0&request=GetFeature", true},
		{"service=WFS&request=GetFeature", true},
		{"service=WFS&version=1.0.0&request=GetFeature", false},
		{"service=WFS&version=2.0.0&request=GetFeature&srsName=EPSG:4326", false},
		{"service=WMS&version=1.3.0&request=GetFeatureInfo", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r, err := ParseRequest(http.MethodGet, mustQuery(t, tt.query), nil)
			if err != nil {
				t.Fatal(err)
			}
			crs, err := r.CRS()
			if err != nil {
				t.Fatal(err)
			}
			if crs.Code != geometry.EPSG4326 || crs.LatLon != tt.wantLatLon {
				t.Errorf("CRS = %+v, want EPSG:4326 latlon=%v", crs, tt.wantLatLon)
			}
		})
	}

	// A WFS 2.0 bbox without srsName is read as lat/lon.
	r, _ := ParseRequest(http.MethodGet, mustQuery(t, "service=WFS&version=2.0.0&request=GetFeature&bbox=47,5,55,15"), nil)
	b, ok, err := r.BBox()
	if err != nil || !ok {
		t.Fatalf("BBox: ok=%v err=%v", ok, err)
	}
	if b.Bound.Min != (orb.Point{5, 47}) {
		t.Errorf("min = %v, want lon/lat swapped", b.Bound.Min)
	}
}

func TestVersionBefore(t *testing.T) {
	tests := []struct {
		v, than string
		want    bool
	}{
		{"1.0.0", "1.1.0", true},
		{"1.1.0", "1.1.0", false},
		{"2.0.0", "1.1.0", false},
		{"1.1", "1.1.0", false},
		{"1.0", "1.1.0", true},
	}
	for _, tt := range tests {
		if got := versionBefore(tt.v, tt.than); got != tt.want {
			t.Errorf("versionBefore(%q, %q) = %v", tt.v, tt.than, got)
		}
	}
}

func TestRequestBBoxWMS130(t *testing.T) {
	r, err := ParseRequest(http.MethodGet, mustQuery(t, "service=WMS&version=1.3.0&request=GetMap&crs=EPSG:4326&bbox=47,5,55,15"), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, ok, err := r.BBox()
	if err != nil || !ok {
		t.Fatalf("BBox: ok=%v err=%v", ok, err)
	}
	if b.Bound.Min != (orb.Point{5, 47}) {
		t.Errorf("min = %v, want lon/lat swapped", b.Bound.Min)
	}

	r, _ = ParseRequest(http.MethodGet, mustQuery(t, "service=WMS&version=1.1.1&request=GetMap&srs=EPSG:4326&bbox=5,47,15,55"), nil)
	b, _, _ = r.BBox()
	if b.Bound.Min != (orb.Point{5, 47}) {
		t.Errorf("1.1.1 min = %v", b.Bound.Min)
	}

	r, _ = ParseRequest(http.MethodGet, mustQuery(t, "request=GetMap&srs=EPSG:31467&bbox=1,2,3,4"), nil)
	if _, _, err := r.BBox(); !errors.Is(err, geometry.ErrUnsupportedCRS) {
		t.Errorf("expected unsupported CRS, got %v", err)
	}
}

func TestRequestSizeAndFormatParam(t *testing.T) {
	r, _ := ParseRequest(http.MethodGet, mustQuery(t, "request=GetMap&WIDTH=256&HEIGHT=128"), nil)
	w, h, err := r.Size()
	if err != nil || w != 256 || h != 128 {
		t.Errorf("Size = %d, %d, %v", w, h, err)
	}
	r, _ = ParseRequest(http.MethodGet, mustQuery(t, "request=GetMap&WIDTH=0&HEIGHT=128"), nil)
	if _, _, err := r.Size(); err == nil {
		t.Error("expected error for zero width")
	}

	for op, want := range map[string]string{GetMap: ParamFormat, GetFeatureInfo: ParamInfoFormat, GetFeature: ParamOutputFormat} {
		r := &Request{Operation: op}
		if r.FormatParam() != want {
			t.Errorf("%s FormatParam = %s", op, r.FormatParam())
		}
	}
}

func TestIsSpatiallyRestrictable(t *testing.T) {
	for _, op := range []string{"getmap", "GetFeatureInfo", "GETFEATURE", "transaction"} {
		if !IsSpatiallyRestrictable(op) {
			t.Errorf("%s should be restrictable", op)
		}
	}
	for _, op := range []string{GetCapabilities, GetLegendGraphic, DescribeFeatureType} {
		if IsSpatiallyRestrictable(op) {
			t.Errorf("%s should not be restrictable", op)
		}
	}
}

// ============================================================================
// Exceptions
// ============================================================================

func TestWriteException(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteException(rec, http.StatusForbidden, false, Exception{Code: CodeForbidden, Locator: "bbox", Text: "a < b"})

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`<ows:ExceptionReport`, `xmlns:ows="http://www.opengis.net/ows/1.1"`, `exceptionCode="Forbidden"`, `locator="bbox"`, `a &lt; b`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}

	body2, ct := ExceptionDocument(true, Exception{Code: CodeInvalidCRS, Text: "bad"})
	if ct != "application/vnd.ogc.se_xml" || !strings.Contains(string(body2), `<ServiceException code="InvalidCRS">bad</ServiceException>`) {
		t.Errorf("wms exception = %s (%s)", body2, ct)
	}
}

func TestExceptionDocumentFallsBackWhenRenderingFails(t *testing.T) {
	orig := marshalXML
	marshalXML = func(any) ([]byte, error) { return nil, errors.New("broken writer") }
	t.Cleanup(func() { marshalXML = orig })

	for _, wms := range []bool{true, false} {
		body, ct := ExceptionDocument(wms, Exception{Code: CodeForbidden, Text: "denied"})
		if ct != "application/vnd.ogc.se_xml" {
			t.Errorf("wms=%v content type = %q", wms, ct)
		}
		if string(body) != fallbackException {
			t.Errorf("wms=%v body = %s", wms, body)
		}
	}

	rec := httptest.NewRecorder()
	WriteException(rec, http.StatusForbidden, true, Exception{Code: CodeForbidden})
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "NoApplicableCode") {
		t.Errorf("WriteException = %d %s", rec.Code, rec.Body.String())
	}
}

// ============================================================================
// Transactions
// ============================================================================

const txInsert = `<wfs:Transaction service="WFS" version="1.1.0"
  xmlns:wfs="http://www.opengis.net/wfs" xmlns:gml="http://www.opengis.net/gml" xmlns:app="urn:app">
  <wfs:Insert>
    <app:parcel><app:geom><gml:Point srsName="EPSG:4326"><gml:pos>%s</gml:pos></gml:Point></app:geom></app:parcel>
  </wfs:Insert>
</wfs:Transaction>`

func TestTransactionInsert(t *testing.T) {
	tests := []struct {
		name    string
		pos     string
		wantErr error
	}{
		{"inside", "5 5", nil},
		{"outside", "50 50", ErrGeometryOutside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ParseTransaction([]byte(strings.Replace(txInsert, "%s", tt.pos, 1)), geometry.WGS84)
			if err != nil {
				t.Fatal(err)
			}
			if len(tx.Actions) != 1 || tx.Actions[0].Kind != ActionInsert {
				t.Fatalf("actions = %+v", tx.Actions)
			}
			if tx.Actions[0].TypeNames[0] != "urn:app:parcel" {
				t.Errorf("type names = %v", tx.Actions[0].TypeNames)
			}
			err = tx.Validate(testArea(), 1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionInsertTypeLimit(t *testing.T) {
	body := `<wfs:Transaction xmlns:wfs="http://www.opengis.net/wfs" xmlns:gml="http://www.opengis.net/gml" xmlns:app="urn:app">
  <wfs:Insert>
    <app:roads><app:geom><gml:Point><gml:pos>1 1</gml:pos></gml:Point></app:geom></app:roads>
    <app:trees><app:geom><gml:Point><gml:pos>2 2</gml:pos></gml:Point></app:geom></app:trees>
  </wfs:Insert>
</wfs:Transaction>`
	tx, err := ParseTransaction([]byte(body), geometry.WGS84)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Validate(testArea(), 1); !errors.Is(err, ErrTooManyInsertTypes) {
		t.Errorf("expected ErrTooManyInsertTypes, got %v", err)
	}
	if err := tx.Validate(testArea(), 0); err != nil {
		t.Errorf("limit 0 should disable the check, got %v", err)
	}
}

func TestTransactionUpdateDelete(t *testing.T) {
	const head = `<wfs:Transaction xmlns:wfs="http://www.opengis.net/wfs" xmlns:ogc="http://www.opengis.net/ogc" xmlns:gml="http://www.opengis.net/gml">`
	tests := []struct {
		name    string
		action  string
		wantErr error
	}{
		{
			"delete within inside",
			`<wfs:Delete typeName="app:parcel"><ogc:Filter><ogc:Within><ogc:PropertyName>geom</ogc:PropertyName><gml:Envelope><gml:lowerCorner>1 1</gml:lowerCorner><gml:upperCorner>2 2</gml:upperCorner></gml:Envelope></ogc:Within></ogc:Filter></wfs:Delete>`,
			nil,
		},
		{
			"delete within outside",
			`<wfs:Delete typeName="app:parcel"><ogc:Filter><ogc:Within><gml:Envelope><gml:lowerCorner>1 1</gml:lowerCorner><gml:upperCorner>20 2</gml:upperCorner></gml:Envelope></ogc:Within></ogc:Filter></wfs:Delete>`,
			ErrGeometryOutside,
		},
		{
			"update within and attribute",
			`<wfs:Update typeName="app:parcel"><wfs:Property><wfs:Name>name</wfs:Name><wfs:Value>x</wfs:Value></wfs:Property><ogc:Filter><ogc:And><ogc:Within><gml:Envelope><gml:lowerCorner>1 1</gml:lowerCorner><gml:upperCorner>2 2</gml:upperCorner></gml:Envelope></ogc:Within><ogc:PropertyIsEqualTo><ogc:PropertyName>name</ogc:PropertyName><ogc:Literal>a</ogc:Literal></ogc:PropertyIsEqualTo></ogc:And></ogc:Filter></wfs:Update>`,
			nil,
		},
		{
			"delete with bbox inside",
			`<wfs:Delete typeName="app:parcel"><ogc:Filter><ogc:BBOX><ogc:PropertyName>geom</ogc:PropertyName><gml:Envelope><gml:lowerCorner>1 1</gml:lowerCorner><gml:upperCorner>2 2</gml:upperCorner></gml:Envelope></ogc:BBOX></ogc:Filter></wfs:Delete>`,
			ErrNoSpatialFilter,
		},
		{
			"delete with intersects inside",
			`<wfs:Delete typeName="app:parcel"><ogc:Filter><ogc:Intersects><ogc:PropertyName>geom</ogc:PropertyName><gml:Point><gml:pos>1 1</gml:pos></gml:Point></ogc:Intersects></ogc:Filter></wfs:Delete>`,
			ErrNoSpatialFilter,
		},
		{
			"update with overlaps inside",
			`<wfs:Update typeName="app:parcel"><wfs:Property><wfs:Name>name</wfs:Name><wfs:Value>x</wfs:Value></wfs:Property><ogc:Filter><ogc:Overlaps><gml:Envelope><gml:lowerCorner>1 1</gml:lowerCorner><gml:upperCorner>2 2</gml:upperCorner></gml:Envelope></ogc:Overlaps></ogc:Filter></wfs:Update>`,
			ErrNoSpatialFilter,
		},
		{
			"delete by id",
			`<wfs:Delete typeName="app:parcel"><ogc:Filter><ogc:FeatureId fid="parcel.1"/></ogc:Filter></wfs:Delete>`,
			ErrNoSpatialFilter,
		},
		{
			"update with or filter",
			`<wfs:Update typeName="app:parcel"><wfs:Property><wfs:Name>name</wfs:Name><wfs:Value>x</wfs:Value></wfs:Property><ogc:Filter><ogc:Or><ogc:BBOX><gml:Envelope><gml:lowerCorner>1 1</gml:lowerCorner><gml:upperCorner>2 2</gml:upperCorner></gml:Envelope></ogc:BBOX><ogc:FeatureId fid="p.2"/></ogc:Or></ogc:Filter></wfs:Update>`,
			ErrUnsafeFilter,
		},
		{
			"update geometry outside",
			`<wfs:Update typeName="app:parcel"><wfs:Property><wfs:Name>geom</wfs:Name><wfs:Value><gml:Point><gml:pos>30 30</gml:pos></gml:Point></wfs:Value></wfs:Property><ogc:Filter><ogc:Intersects><gml:Point><gml:pos>1 1</gml:pos></gml:Point></ogc:Intersects></ogc:Filter></wfs:Update>`,
			ErrGeometryOutside,
		},
		{
			"native",
			`<wfs:Native vendorId="x" safeToIgnore="false">VACUUM</wfs:Native>`,
			ErrNativeAction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ParseTransaction([]byte(head+tt.action+`</wfs:Transaction>`), geometry.WGS84)
			if err != nil {
				t.Fatal(err)
			}
			err = tx.Validate(testArea(), 1)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTransactionErrors(t *testing.T) {
	if _, err := ParseTransaction([]byte(`<GetFeature/>`), geometry.WGS84); err == nil {
		t.Error("expected error for non transaction root")
	}
	if _, err := ParseTransaction(nil, geometry.WGS84); err == nil {
		t.Error("expected error for empty body")
	}
}
