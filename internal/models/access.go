// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package models

import (
	"time"

	"github.com/paulmach/orb"
)

// AnonymousUsername identifies unauthenticated callers.
const AnonymousUsername = "anonymous"

// User is a local account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
}

// Group collects users. Organizations are modelled as groups.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// AllowedOperation grants a group a set of operations on one service,
// optionally limited to an area. A nil AllowedArea means no spatial limit.
type AllowedOperation struct {
	ID          int64            `json:"id"`
	ServiceID   int64            `json:"service_id"`
	GroupID     int64            `json:"group_id"`
	Operations  []string         `json:"operations"`
	AllowedArea orb.MultiPolygon `json:"-"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Grant is an AllowedOperation resolved for a single caller. A grant that
// is not Unrestricted allows only AllowedArea, so an empty area allows
// nothing.
type Grant struct {
	GroupName    string
	AllowedArea  orb.MultiPolygon
	Unrestricted bool
}
