// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package upstream performs requests against origin services. Each origin
// host gets its own circuit breaker and optional rate limiter; transport
// failures come back as *Error with the status the proxy should answer.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/time/rate"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
)

// Config configures the client.
type Config struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	HTTPProxy      string
	HTTPSProxy     string
	NoProxy        string
	UserAgent      string
	HostRateLimit  float64
	HostRateBurst  int
	BreakerEnabled bool
}

// Request is an outgoing request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response wraps the origin response. Callers must Close it.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
	Elapsed       time.Duration
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string { return r.Header.Get("Content-Type") }

// ReadAll buffers the body and closes it.
func (r *Response) ReadAll() ([]byte, error) {
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, Classify(fmt.Errorf("read origin body: %w", err))
	}
	return b, nil
}

// Close releases the body.
func (r *Response) Close() error { return r.Body.Close() }

// Fetcher is implemented by Client. The proxy and capabilities packages
// depend on it so tests can substitute origins.
type Fetcher interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
	limiters map[string]*rate.Limiter
}

// New builds a pooled client.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 proxyFunc(cfg),
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ExpectContinueTimeout: time.Second,
		// bodies are passed through untouched, including Content-Encoding
		DisableCompression: true,
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Transport: transport},
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
		limiters: make(map[string]*rate.Limiter),
	}
}

func proxyFunc(cfg Config) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}
	pc := httpproxy.Config{HTTPProxy: cfg.HTTPProxy, HTTPSProxy: cfg.HTTPSProxy, NoProxy: cfg.NoProxy}
	fn := pc.ProxyFunc()
	return func(r *http.Request) (*url.URL, error) { return fn(r.URL) }
}

// Do sends req. The returned error is always an *Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, Classify(fmt.Errorf("origin url: %w", err))
	}
	host := u.Host

	if lim := c.limiter(host); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, c.fail(host, Classify(err))
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, Classify(err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.cfg.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	var resp *http.Response
	if cb := c.breaker(host); cb != nil {
		resp, err = cb.Execute(func() (*http.Response, error) {
			return c.http.Do(httpReq)
		})
		recordBreaker(cb, err)
	} else {
		resp, err = c.http.Do(httpReq)
	}
	elapsed := time.Since(start)
	if err != nil {
		ue := Classify(err)
		metrics.RecordUpstream(host, 0, elapsed, ue.Code)
		return nil, c.fail(host, ue)
	}
	metrics.RecordUpstream(host, resp.StatusCode, elapsed, "")

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
		Elapsed:       elapsed,
	}, nil
}

func (c *Client) fail(host string, ue *Error) *Error {
	logging.Warn().Str("host", host).Int("status", ue.StatusCode).Str("code", ue.Code).Err(ue.Err).Msg("origin request failed")
	return ue
}

func (c *Client) limiter(host string) *rate.Limiter {
	if c.cfg.HostRateLimit <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		burst := c.cfg.HostRateBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.cfg.HostRateLimit), burst)
		c.limiters[host] = lim
	}
	return lim
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker[*http.Response] {
	if !c.cfg.BreakerEnabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[host]
	if !ok {
		cb = newBreaker("upstream:" + host)
		c.breakers[host] = cb
	}
	return cb
}

// JoinQuery appends the request parameters to the origin base URL. Keys
// present in both are taken from params.
func JoinQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse origin url: %w", err)
	}
	merged := url.Values{}
	for k, vs := range u.Query() {
		if hasKeyFold(params, k) {
			continue
		}
		merged[k] = vs
	}
	for k, vs := range params {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

func hasKeyFold(v url.Values, key string) bool {
	for k := range v {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
