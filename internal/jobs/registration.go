// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mrmap-community/mrmap-proxy/internal/capabilities"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
)

// KindRegisterService is the job kind of service registrations.
const KindRegisterService = "register_service"

// RegisterRequest describes a service to register. Type and Version are
// taken from the URL's query when empty, and detected from the
// capabilities document otherwise.
type RegisterRequest struct {
	URL            string `json:"url" validate:"required,url"`
	Type           string `json:"type,omitempty" validate:"omitempty,oneof=WMS WFS wms wfs"`
	Version        string `json:"version,omitempty" validate:"omitempty,max=16"`
	Title          string `json:"title,omitempty" validate:"omitempty,max=255"`
	IsActive       bool   `json:"is_active"`
	IsSecured      bool   `json:"is_secured"`
	LogProxyAccess bool   `json:"log_proxy_access"`
}

// CapabilitiesFetcher retrieves raw origin documents.
type CapabilitiesFetcher interface {
	Fetch(ctx context.Context, baseURL string, serviceType models.ServiceType, version string) ([]byte, error)
}

// ServiceCreator persists a new service and assigns its ID.
type ServiceCreator interface {
	CreateService(ctx context.Context, svc *models.Service) error
}

// Registrar builds registration tasks.
type Registrar struct {
	fetcher  CapabilitiesFetcher
	services ServiceCreator
}

// NewRegistrar creates a Registrar.
func NewRegistrar(fetcher CapabilitiesFetcher, services ServiceCreator) *Registrar {
	return &Registrar{fetcher: fetcher, services: services}
}

// Task returns the job task registering req.
func (g *Registrar) Task(req RegisterRequest) Task {
	return func(ctx context.Context, t *Tracker) error {
		baseURL, urlType, urlVersion, err := splitServiceURL(req.URL)
		if err != nil {
			return err
		}

		candidates := []models.ServiceType{models.ServiceTypeWMS, models.ServiceTypeWFS}
		typeName := req.Type
		if typeName == "" {
			typeName = urlType
		}
		if typeName != "" {
			st, ok := models.ParseServiceType(typeName)
			if !ok {
				return fmt.Errorf("unsupported service type %q", typeName)
			}
			candidates = []models.ServiceType{st}
		}
		version := req.Version
		if version == "" {
			version = urlVersion
		}

		t.Progress(10, "fetching capabilities")
		info, err := g.detect(ctx, baseURL, candidates, version)
		if err != nil {
			return err
		}

		t.Progress(50, "capabilities inspected")
		svc := &models.Service{
			Title:          req.Title,
			Type:           info.Type,
			Version:        info.Version,
			BaseURL:        baseURL,
			IsActive:       req.IsActive,
			IsSecured:      req.IsSecured,
			LogProxyAccess: req.LogProxyAccess,
		}
		if svc.Title == "" {
			svc.Title = info.Title
		}
		if svc.Title == "" {
			svc.Title = baseURL
		}
		if svc.Version == "" {
			svc.Version = version
		}

		t.Progress(80, "saving service")
		if err := g.services.CreateService(ctx, svc); err != nil {
			return fmt.Errorf("save service: %w", err)
		}
		t.SetService(svc.ID)

		logging.Ctx(ctx).Info().
			Int64("service_id", svc.ID).
			Str("type", string(svc.Type)).
			Str("version", svc.Version).
			Str("base_url", svc.BaseURL).
			Msg("Service registered")
		return nil
	}
}

// detect tries each candidate type until the origin answers with a matching
// capabilities document.
func (g *Registrar) detect(ctx context.Context, baseURL string, candidates []models.ServiceType, version string) (capabilities.Info, error) {
	var errs []error
	for _, st := range candidates {
		doc, err := g.fetcher.Fetch(ctx, baseURL, st, version)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st, err))
			continue
		}
		info, err := capabilities.Inspect(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st, err))
			continue
		}
		if info.Type != st {
			errs = append(errs, fmt.Errorf("%s: origin described a %s service", st, info.Type))
			continue
		}
		return info, nil
	}
	return capabilities.Info{}, fmt.Errorf("no capabilities found at %s: %w", baseURL, errors.Join(errs...))
}

// splitServiceURL removes the OGC operation parameters from a service URL
// and returns the service type and version it named.
func splitServiceURL(raw string) (base, serviceType, version string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", "", fmt.Errorf("invalid service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", "", fmt.Errorf("invalid service url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("invalid service url %q: missing host", raw)
	}
	q := u.Query()
	for k, vs := range q {
		switch strings.ToLower(k) {
		case ows.ParamService:
			serviceType = first(vs)
		case ows.ParamVersion:
			version = first(vs)
		case ows.ParamRequest:
		default:
			continue
		}
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), serviceType, version, nil
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return strings.TrimSpace(vs[0])
}
