// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package models

import "testing"

func TestParseServiceType(t *testing.T) {
	tests := []struct {
		in   string
		want ServiceType
		ok   bool
	}{
		{"wms", ServiceTypeWMS, true},
		{" WFS ", ServiceTypeWFS, true},
		{"wcs", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseServiceType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseServiceType(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestJobDone(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		JobPending: false, JobRunning: false, JobSucceeded: true, JobFailed: true,
	} {
		j := Job{Status: status}
		if j.Done() != want {
			t.Errorf("%s: Done() = %v", status, j.Done())
		}
	}
}
