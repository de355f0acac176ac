// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "services"))
	RecordDBQuery("SELECT", "services", time.Millisecond, nil)
	RecordDBQuery("SELECT", "services", time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "services")); got != before+1 {
		t.Errorf("errors = %v, want %v", got, before+1)
	}
}

func TestRecordProxyRequest(t *testing.T) {
	c := ProxyRequestsTotal.WithLabelValues("WMS", "GetMap", "masked")
	before := testutil.ToFloat64(c)
	RecordProxyRequest("WMS", "GetMap", "masked", 20*time.Millisecond)
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestRecordUpstream(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		label  string
	}{
		{"typed error", 0, "GatewayTimeout", "GatewayTimeout"},
		{"origin 502", 502, "", "502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := UpstreamErrors.WithLabelValues("origin.test", tt.label)
			before := testutil.ToFloat64(c)
			RecordUpstream("origin.test", tt.status, time.Second, tt.code)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}

	ok := UpstreamErrors.WithLabelValues("origin.test", "200")
	RecordUpstream("origin.test", 200, time.Second, "")
	if testutil.ToFloat64(ok) != 0 {
		t.Error("success must not count as error")
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if testutil.ToFloat64(APIActiveRequests) != before+1 {
		t.Error("gauge not incremented")
	}
	TrackActiveRequest(false)
	if testutil.ToFloat64(APIActiveRequests) != before {
		t.Error("gauge not decremented")
	}
}
