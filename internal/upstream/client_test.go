// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func newTestClient(t *testing.T, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		ConnectTimeout: time.Second,
		RequestTimeout: 2 * time.Second,
		UserAgent:      "mrmap-proxy-test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func assertUpstreamError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if ue.StatusCode != status || ue.Code != code {
		t.Errorf("got %d %s, want %d %s", ue.StatusCode, ue.Code, status, code)
	}
}

func TestDoPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "mrmap-proxy-test" {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/xml")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, Body: []byte("<a/>")})
	if err != nil {
		t.Fatal(err)
	}
	body, err := resp.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "echo:<a/>" {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("Content-Encoding") != "gzip" || resp.ContentType() != "text/xml" {
		t.Errorf("headers = %v", resp.Header)
	}
}

func TestDoTimeoutIs504(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, func(cfg *Config) { cfg.RequestTimeout = 50 * time.Millisecond })
	_, err := c.Do(context.Background(), Request{URL: srv.URL})
	assertUpstreamError(t, err, http.StatusGatewayTimeout, CodeGatewayTimeout)
}

func TestDoConnectionRefusedIs502(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := newTestClient(t, nil)
	_, err := c.Do(context.Background(), Request{URL: addr})
	assertUpstreamError(t, err, http.StatusBadGateway, CodeBadGateway)
}

func TestDoOtherErrorIs500WithTypeName(t *testing.T) {
	c := newTestClient(t, nil)
	_, err := c.Do(context.Background(), Request{URL: "gopher://example.invalid/"})
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ue.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", ue.StatusCode)
	}
	if !strings.HasPrefix(ue.Code, "*") {
		t.Errorf("code should be a Go type name, got %q", ue.Code)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := newTestClient(t, func(cfg *Config) { cfg.BreakerEnabled = true })
	var last error
	for i := 0; i < 12; i++ {
		_, last = c.Do(context.Background(), Request{URL: addr})
	}
	assertUpstreamError(t, last, http.StatusServiceUnavailable, CodeServiceUnavailable)
	if !errors.Is(last, gobreaker.ErrOpenState) {
		t.Errorf("expected open state error, got %v", last)
	}
}

func TestHostRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestClient(t, func(cfg *Config) { cfg.HostRateLimit = 1; cfg.HostRateBurst = 1 })
	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	resp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Do(ctx, Request{URL: srv.URL}); err == nil {
		t.Error("second request within the window should be limited")
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("nil error should classify to nil")
	}
	assertUpstreamError(t, Classify(context.DeadlineExceeded), http.StatusGatewayTimeout, CodeGatewayTimeout)
	orig := &Error{StatusCode: 418, Code: "Teapot"}
	if Classify(orig) != orig {
		t.Error("existing *Error must be returned unchanged")
	}
	if got := Classify(errors.New("x")).Code; got != "*errors.errorString" {
		t.Errorf("code = %q", got)
	}
}

func TestJoinQuery(t *testing.T) {
	params := url.Values{"REQUEST": {"GetMap"}, "map": {"/override.map"}}
	got, err := JoinQuery("http://origin.test/cgi-bin/mapserv?MAP=/data/x.map&token=abc", params)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	q := u.Query()
	if q.Get("token") != "abc" || q.Get("REQUEST") != "GetMap" || q.Get("map") != "/override.map" {
		t.Errorf("query = %v", q)
	}
	if _, ok := q["MAP"]; ok {
		t.Error("base key should be replaced case-insensitively")
	}
}
