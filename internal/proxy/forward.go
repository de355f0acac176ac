// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
	"github.com/mrmap-community/mrmap-proxy/internal/upstream"
)

// chunkSize is the write size of streamed responses.
const chunkSize = 256 << 10

// forwardedRequestHeaders are copied from the client to the origin.
var forwardedRequestHeaders = []string{"Accept", "Accept-Language", "Content-Type"}

// preservedResponseHeaders are copied from the origin to the client.
var preservedResponseHeaders = []string{"Content-Type", "Content-Disposition", "Content-Encoding"}

// originURL points the request parameters at the service origin. The base
// URL is the registered capabilities URL, so its operation parameters are
// dropped first.
func originURL(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k := range q {
		switch strings.ToLower(k) {
		case ows.ParamService, ows.ParamRequest, ows.ParamVersion:
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return upstream.JoinQuery(u.String(), params)
}

// fetch sends the client request, with params replacing its query, to the
// origin.
func (h *Handler) fetch(ctx context.Context, c *call, params url.Values) (*upstream.Response, error) {
	target, err := originURL(c.svc.BaseURL, params)
	if err != nil {
		return nil, upstream.Classify(err)
	}
	header := http.Header{}
	for _, name := range forwardedRequestHeaders {
		if v := c.r.Header.Values(name); len(v) > 0 {
			header[name] = v
		}
	}
	req := upstream.Request{Method: c.r.Method, URL: target, Header: header}
	if c.r.Method == http.MethodPost {
		req.Body = c.req.Body
	}
	return h.deps.Fetcher.Do(ctx, req)
}

// forward relays the request unchanged and returns the origin response as is.
func (h *Handler) forward(c *call) {
	resp, err := h.fetch(c.r.Context(), c, c.r.URL.Query())
	if err != nil {
		c.upstreamError(err)
		return
	}
	defer resp.Close()

	c.outcome = outcomeForwarded
	copyHeaders(c.w.Header(), resp.Header)
	if resp.ContentLength >= 0 && resp.ContentLength <= h.cfg.StreamThreshold {
		c.w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
		c.w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(c.w, resp.Body); err != nil {
			logging.Ctx(c.r.Context()).Debug().Err(err).Msg("Client write failed")
		}
		return
	}
	c.w.WriteHeader(resp.StatusCode)
	h.stream(c, resp.Body)
}

// respond writes a buffered body, switching to chunked streaming above the
// threshold.
func (h *Handler) respond(c *call, status int, header http.Header, body []byte) {
	copyHeaders(c.w.Header(), header)
	if int64(len(body)) > h.cfg.StreamThreshold {
		c.w.WriteHeader(status)
		h.stream(c, bytes.NewReader(body))
		return
	}
	c.w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	c.w.WriteHeader(status)
	_, _ = c.w.Write(body)
}

func (h *Handler) stream(c *call, r io.Reader) {
	metrics.ProxyStreamedResponses.Inc()
	rc := http.NewResponseController(c.w)
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := c.w.Write(buf[:n]); werr != nil {
				logging.Ctx(c.r.Context()).Debug().Err(werr).Msg("Client write failed")
				return
			}
			_ = rc.Flush()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			logging.Ctx(c.r.Context()).Warn().Err(err).Msg("Origin body read failed while streaming")
			return
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for _, name := range preservedResponseHeaders {
		if v := src.Values(name); len(v) > 0 {
			dst[name] = append([]string(nil), v...)
		}
	}
}
