// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package capabilities serves camouflaged capabilities documents. Documents
// are fetched from the origin once, rewritten to point at the proxy and
// cached in memory and in badger so that they survive restarts.
package capabilities

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mrmap-community/mrmap-proxy/internal/cache"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
	"github.com/mrmap-community/mrmap-proxy/internal/upstream"
)

// Document is a camouflaged capabilities document.
type Document struct {
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Store is the persistent tier.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
	DeletePrefix(prefix string) error
}

// Service fetches, camouflages and caches documents.
type Service struct {
	fetcher     upstream.Fetcher
	memory      *cache.Cache[Document]
	store       Store
	externalURL string
	ttl         time.Duration
	group       singleflight.Group
}

// New creates a Service. store may be nil.
func New(fetcher upstream.Fetcher, store Store, externalURL string, ttl time.Duration) *Service {
	return &Service{
		fetcher:     fetcher,
		memory:      cache.New[Document](ttl),
		store:       store,
		externalURL: strings.TrimSuffix(externalURL, "/"),
		ttl:         ttl,
	}
}

// Close stops the memory tier's cleanup.
func (s *Service) Close() { s.memory.Close() }

// ProxyURL is the public endpoint for a service.
func (s *Service) ProxyURL(id int64) string {
	return s.externalURL + "/ows/" + strconv.FormatInt(id, 10)
}

func key(id int64, version string) string {
	return strconv.FormatInt(id, 10) + ":" + version
}

// Get returns the document for svc, using version when the caller asked
// for one.
func (s *Service) Get(ctx context.Context, svc *models.Service, version string) (Document, error) {
	if version == "" {
		version = svc.Version
	}
	k := key(svc.ID, version)

	if doc, ok := s.memory.Get(k); ok {
		metrics.CapabilitiesCacheHits.WithLabelValues("memory").Inc()
		return doc, nil
	}
	if s.store != nil {
		if raw, err := s.store.Get(k); err == nil {
			if doc, ok := decodeDocument(raw); ok {
				metrics.CapabilitiesCacheHits.WithLabelValues("badger").Inc()
				s.memory.Set(k, doc)
				return doc, nil
			}
		} else if !errors.Is(err, cache.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("key", k).Msg("capabilities store read failed")
		}
	}

	v, err, _ := s.group.Do(k, func() (any, error) {
		return s.fetch(ctx, svc, version)
	})
	if err != nil {
		return Document{}, err
	}
	doc := v.(Document)
	s.memory.Set(k, doc)
	if s.store != nil {
		if err := s.store.Set(k, encodeDocument(doc), s.ttl); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", k).Msg("capabilities store write failed")
		}
	}
	return doc, nil
}

// Fetch retrieves the raw origin document without camouflage or caching.
// Registration uses it to inspect a new service.
func (s *Service) Fetch(ctx context.Context, baseURL string, serviceType models.ServiceType, version string) ([]byte, error) {
	params := url.Values{}
	params.Set(ows.ParamService, string(serviceType))
	params.Set(ows.ParamRequest, ows.GetCapabilities)
	if version != "" {
		params.Set(ows.ParamVersion, version)
	}
	target, err := upstream.JoinQuery(baseURL, params)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetcher.Do(ctx, upstream.Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return nil, err
	}
	body, err := resp.ReadAll()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &upstream.Error{
			StatusCode: resp.StatusCode,
			Code:       "OriginError",
			Content:    fmt.Sprintf("origin answered %d", resp.StatusCode),
		}
	}
	return body, nil
}

func (s *Service) fetch(ctx context.Context, svc *models.Service, version string) (Document, error) {
	metrics.CapabilitiesCacheMisses.Inc()
	body, err := s.Fetch(ctx, svc.BaseURL, svc.Type, version)
	if err != nil {
		return Document{}, err
	}
	camouflaged, err := Camouflage(body, svc.BaseURL, s.ProxyURL(svc.ID))
	if err != nil {
		return Document{}, fmt.Errorf("camouflage service %d: %w", svc.ID, err)
	}
	logging.Ctx(ctx).Debug().
		Int64("service_id", svc.ID).
		Str("version", version).
		Int("bytes", len(camouflaged)).
		Msg("capabilities fetched")
	return Document{ContentType: contentType(svc.Type), Body: camouflaged, FetchedAt: time.Now().UTC()}, nil
}

func contentType(t models.ServiceType) string {
	if t == models.ServiceTypeWMS {
		return "application/vnd.ogc.wms_xml"
	}
	return "application/xml"
}

// Invalidate drops every cached version of a service.
func (s *Service) Invalidate(id int64) error {
	prefix := strconv.FormatInt(id, 10) + ":"
	s.memory.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
	if s.store != nil {
		if err := s.store.DeletePrefix(prefix); err != nil {
			return fmt.Errorf("invalidate capabilities %d: %w", id, err)
		}
	}
	return nil
}

// Persisted form: RFC3339 timestamp, content type, body separated by '\n'.
func encodeDocument(d Document) []byte {
	var b bytes.Buffer
	b.WriteString(d.FetchedAt.Format(time.RFC3339))
	b.WriteByte('\n')
	b.WriteString(d.ContentType)
	b.WriteByte('\n')
	b.Write(d.Body)
	return b.Bytes()
}

func decodeDocument(raw []byte) (Document, bool) {
	parts := bytes.SplitN(raw, []byte{'\n'}, 3)
	if len(parts) != 3 {
		return Document{}, false
	}
	at, err := time.Parse(time.RFC3339, string(parts[0]))
	if err != nil {
		return Document{}, false
	}
	return Document{FetchedAt: at, ContentType: string(parts[1]), Body: parts[2]}, true
}
