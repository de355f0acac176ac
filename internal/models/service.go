// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package models

import (
	"strings"
	"time"
)

// ServiceType is the OGC service family.
type ServiceType string

const (
	ServiceTypeWMS ServiceType = "WMS"
	ServiceTypeWFS ServiceType = "WFS"
)

// ParseServiceType accepts any letter case.
func ParseServiceType(s string) (ServiceType, bool) {
	switch ServiceType(strings.ToUpper(strings.TrimSpace(s))) {
	case ServiceTypeWMS:
		return ServiceTypeWMS, true
	case ServiceTypeWFS:
		return ServiceTypeWFS, true
	}
	return "", false
}

// Service is a registered origin web service.
type Service struct {
	ID      int64       `json:"id"`
	Title   string      `json:"title"`
	Type    ServiceType `json:"type"`
	Version string      `json:"version"`

	// BaseURL is the origin endpoint without OGC query parameters.
	BaseURL string `json:"base_url"`

	IsActive       bool `json:"is_active"`
	IsSecured      bool `json:"is_secured"`
	LogProxyAccess bool `json:"log_proxy_access"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceUpdate carries the mutable service flags. Nil fields are unchanged.
type ServiceUpdate struct {
	Title          *string `json:"title,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	IsSecured      *bool   `json:"is_secured,omitempty"`
	LogProxyAccess *bool   `json:"log_proxy_access,omitempty"`
}

// ServiceFilter narrows service listings.
type ServiceFilter struct {
	Type     ServiceType
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}
