// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package capabilities

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/cache"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/upstream"
)

const wmsDoc = `<?xml version="1.0"?>
<WMS_Capabilities xmlns="http://www.opengis.net/wms" xmlns:xlink="http://www.w3.org/1999/xlink" version="1.3.0">
  <Service><OnlineResource xlink:href="http://origin.example/wms?map=roads&amp;"/></Service>
  <Capability><Request><GetMap>
    <DCPType><HTTP><Get><OnlineResource xlink:type="simple" xlink:href="http://origin.example/wms?"/></Get></HTTP></DCPType>
  </GetMap></Request>
  <Layer><Style><LegendURL><OnlineResource xlink:href="http://legend.example/wms?x=1"/></LegendURL></Style></Layer>
  </Capability>
</WMS_Capabilities>`

const wfs100Doc = `<WFS_Capabilities version="1.0.0">
  <Service><OnlineResource>http://origin.example/wms</OnlineResource></Service>
  <Capability><Request><GetFeature><DCPType><HTTP><Get onlineResource="http://origin.example/wms?"/></HTTP></DCPType></GetFeature></Request></Capability>
</WFS_Capabilities>`

// =============================================================================
// Camouflage
// =============================================================================

func TestCamouflageRewritesOriginLinks(t *testing.T) {
	out, err := Camouflage([]byte(wmsDoc), "http://origin.example/wms", "https://proxy.example/ows/7")
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if strings.Contains(s, "http://origin.example") {
		t.Errorf("origin href left in document:\n%s", s)
	}
	if !strings.Contains(s, `xlink:href="https://proxy.example/ows/7?map=roads&amp;"`) {
		t.Errorf("query not preserved:\n%s", s)
	}
	if !strings.Contains(s, `xlink:href="https://proxy.example/ows/7?"`) {
		t.Errorf("bare href not rewritten:\n%s", s)
	}
	if !strings.Contains(s, `http://legend.example/wms?x=1`) {
		t.Error("foreign host must not be rewritten")
	}
}

func TestCamouflageOnlineResourceText(t *testing.T) {
	out, err := Camouflage([]byte(wfs100Doc), "http://origin.example/wms", "https://proxy.example/ows/3")
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, "<OnlineResource>https://proxy.example/ows/3</OnlineResource>") {
		t.Errorf("element text not rewritten:\n%s", s)
	}
	if !strings.Contains(s, `onlineResource="https://proxy.example/ows/3?"`) {
		t.Errorf("attribute not rewritten:\n%s", s)
	}
}

func TestCamouflageOtherPathUntouched(t *testing.T) {
	doc := `<a xmlns:xlink="http://www.w3.org/1999/xlink"><b xlink:href="http://origin.example/other?x=1"/></a>`
	out, err := Camouflage([]byte(doc), "http://origin.example/wms", "https://proxy.example/ows/1")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != doc {
		t.Errorf("document changed: %s", out)
	}
}

func TestCamouflageEndpointsOnOtherPaths(t *testing.T) {
	doc := `<WMS_Capabilities xmlns:xlink="http://www.w3.org/1999/xlink">
  <Capability><Request>
    <GetMap><DCPType><HTTP><Get><OnlineResource xlink:href="http://origin.example/geoserver/ows?SERVICE=WMS&amp;"/></Get></HTTP></DCPType></GetMap>
    <GetFeatureInfo><DCPType><HTTP><Post><OnlineResource xlink:href="http://ORIGIN.example/cgi-bin/mapserv?map=/srv/roads.map&amp;"/></Post></HTTP></DCPType></GetFeatureInfo>
  </Request>
  <Layer><Style><LegendURL><OnlineResource xlink:href="http://origin.example/geoserver/styles/legend.png"/></LegendURL></Style></Layer>
  </Capability>
</WMS_Capabilities>`
	out, err := Camouflage([]byte(doc), "http://origin.example/geoserver/wms", "https://proxy.example/ows/5")
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	for _, want := range []string{
		`xlink:href="https://proxy.example/ows/5?SERVICE=WMS&amp;"`,
		`xlink:href="https://proxy.example/ows/5?map=/srv/roads.map&amp;"`,
		`xlink:href="http://origin.example/geoserver/styles/legend.png"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in:\n%s", want, s)
		}
	}
	if strings.Contains(s, "geoserver/ows") || strings.Contains(s, "mapserv") {
		t.Errorf("operation endpoint left unproxied:\n%s", s)
	}
}

func TestCamouflageOWSCommonOperations(t *testing.T) {
	doc := `<wfs:WFS_Capabilities xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:ows="http://www.opengis.net/ows/1.1" xmlns:xlink="http://www.w3.org/1999/xlink">
  <ows:OperationsMetadata><ows:Operation name="GetFeature"><ows:DCP><ows:HTTP><ows:Get xlink:href="http://origin.example/other/wfs?"/></ows:HTTP></ows:DCP></ows:Operation></ows:OperationsMetadata>
</wfs:WFS_Capabilities>`
	out, err := Camouflage([]byte(doc), "http://origin.example/wfs", "https://proxy.example/ows/2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `xlink:href="https://proxy.example/ows/2?"`) {
		t.Errorf("DCP link not rewritten:\n%s", out)
	}
}

func TestCamouflageInvalidInput(t *testing.T) {
	if _, err := Camouflage([]byte(wmsDoc), "not a url", "https://proxy.example/ows/1"); err == nil {
		t.Error("expected error for invalid origin")
	}
	if _, err := Camouflage([]byte("<a><b></a>"), "http://origin.example/wms", "https://proxy.example/ows/1"); err == nil {
		t.Error("expected error for malformed xml")
	}
}

// =============================================================================
// Service
// =============================================================================

type fakeFetcher struct {
	calls atomic.Int32
	body  string
	code  int
}

func (f *fakeFetcher) Do(_ context.Context, req upstream.Request) (*upstream.Response, error) {
	f.calls.Add(1)
	code := f.code
	if code == 0 {
		code = http.StatusOK
	}
	return &upstream.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": {"text/xml"}},
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func newTestService(t *testing.T, f upstream.Fetcher, store Store) *Service {
	t.Helper()
	s := New(f, store, "https://proxy.example/", time.Hour)
	t.Cleanup(s.Close)
	return s
}

func testWMS() *models.Service {
	return &models.Service{ID: 7, Type: models.ServiceTypeWMS, Version: "1.3.0", BaseURL: "http://origin.example/wms"}
}

func TestServiceCachesInMemory(t *testing.T) {
	f := &fakeFetcher{body: wmsDoc}
	s := newTestService(t, f, nil)

	for i := 0; i < 3; i++ {
		doc, err := s.Get(context.Background(), testWMS(), "")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(doc.Body, []byte("https://proxy.example/ows/7")) {
			t.Fatalf("document not camouflaged: %s", doc.Body)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("origin fetched %d times, want 1", got)
	}
}

func TestServiceBadgerTierSurvivesRestart(t *testing.T) {
	db, err := cache.OpenBadger("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := cache.NewBadgerStore(db, "caps:")

	f := &fakeFetcher{body: wmsDoc}
	first := newTestService(t, f, store)
	if _, err := first.Get(context.Background(), testWMS(), ""); err != nil {
		t.Fatal(err)
	}

	second := newTestService(t, f, store)
	doc, err := second.Get(context.Background(), testWMS(), "")
	if err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("origin fetched %d times, want 1", f.calls.Load())
	}
	if doc.ContentType != "application/vnd.ogc.wms_xml" {
		t.Errorf("content type = %q", doc.ContentType)
	}

	if err := second.Invalidate(7); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Get(context.Background(), testWMS(), ""); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("invalidate did not force a refetch, calls = %d", f.calls.Load())
	}
}

func TestServiceOriginErrorNotCached(t *testing.T) {
	f := &fakeFetcher{body: "boom", code: http.StatusInternalServerError}
	s := newTestService(t, f, nil)

	_, err := s.Get(context.Background(), testWMS(), "")
	ue := upstream.Classify(err)
	if ue == nil || ue.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected upstream error with status 500, got %v", err)
	}
	_, _ = s.Get(context.Background(), testWMS(), "")
	if f.calls.Load() != 2 {
		t.Errorf("failed fetch was cached")
	}
}

func TestDocumentEncoding(t *testing.T) {
	in := Document{ContentType: "text/xml", Body: []byte("<a>\n</a>"), FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	out, ok := decodeDocument(encodeDocument(in))
	if !ok || out.ContentType != in.ContentType || string(out.Body) != string(in.Body) || !out.FetchedAt.Equal(in.FetchedAt) {
		t.Errorf("decode = %+v, %v", out, ok)
	}
	if _, ok := decodeDocument([]byte("garbage")); ok {
		t.Error("expected decode failure")
	}
}
