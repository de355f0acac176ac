// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package capabilities

import (
	"errors"
	"testing"

	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

func TestInspect(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Info
	}{
		{
			name: "wms 1.3.0",
			doc: `<?xml version="1.0"?><WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms">
<Service><Name>WMS</Name><Title> Topographic map </Title></Service>
<Capability><Layer><Title>Layer title</Title></Layer></Capability></WMS_Capabilities>`,
			want: Info{Type: models.ServiceTypeWMS, Version: "1.3.0", Title: "Topographic map"},
		},
		{
			name: "wms 1.1.1",
			doc:  `<WMT_MS_Capabilities version="1.1.1"><Service><Title>Old</Title></Service></WMT_MS_Capabilities>`,
			want: Info{Type: models.ServiceTypeWMS, Version: "1.1.1", Title: "Old"},
		},
		{
			name: "wfs 2.0.0",
			doc: `<wfs:WFS_Capabilities version="2.0.0" xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:ows="http://www.opengis.net/ows/1.1">
<ows:ServiceIdentification><ows:Title>Parcels</ows:Title></ows:ServiceIdentification></wfs:WFS_Capabilities>`,
			want: Info{Type: models.ServiceTypeWFS, Version: "2.0.0", Title: "Parcels"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inspect([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInspectRejects(t *testing.T) {
	for _, doc := range []string{
		`<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows/1.1"/>`,
		`<html><body>nope</body></html>`,
		``,
		`<WMS_Capabilities><Service>`,
	} {
		if _, err := Inspect([]byte(doc)); err == nil {
			t.Errorf("Inspect(%q) succeeded", doc)
		}
	}
	if _, err := Inspect([]byte(`<html/>`)); !errors.Is(err, ErrNotCapabilities) {
		t.Errorf("expected ErrNotCapabilities, got %v", err)
	}
}
