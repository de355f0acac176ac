// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package ows

import "strings"

// Operation names in their canonical spelling.
const (
	GetCapabilities       = "GetCapabilities"
	GetMap                = "GetMap"
	GetFeatureInfo        = "GetFeatureInfo"
	GetLegendGraphic      = "GetLegendGraphic"
	DescribeLayer         = "DescribeLayer"
	GetStyles             = "GetStyles"
	DescribeFeatureType   = "DescribeFeatureType"
	GetFeature            = "GetFeature"
	GetPropertyValue      = "GetPropertyValue"
	Transaction           = "Transaction"
	LockFeature           = "LockFeature"
	GetFeatureWithLock    = "GetFeatureWithLock"
	ListStoredQueries     = "ListStoredQueries"
	DescribeStoredQueries = "DescribeStoredQueries"
)

var canonical = func() map[string]string {
	m := make(map[string]string)
	for _, op := range []string{
		GetCapabilities, GetMap, GetFeatureInfo, GetLegendGraphic, DescribeLayer,
		GetStyles, DescribeFeatureType, GetFeature, GetPropertyValue, Transaction,
		LockFeature, GetFeatureWithLock, ListStoredQueries, DescribeStoredQueries,
	} {
		m[strings.ToLower(op)] = op
	}
	return m
}()

// CanonicalOperation normalises the letter case of known operations and
// returns unknown names unchanged.
func CanonicalOperation(op string) string {
	op = strings.TrimSpace(op)
	if c, ok := canonical[strings.ToLower(op)]; ok {
		return c
	}
	return op
}

// restrictable operations can leak data outside an allowed area.
var restrictable = map[string]bool{
	GetMap:             true,
	GetFeatureInfo:     true,
	GetFeature:         true,
	GetFeatureWithLock: true,
	GetPropertyValue:   true,
	Transaction:        true,
}

// IsSpatiallyRestrictable reports whether op needs the spatial handler when
// the caller's grants carry an allowed area.
func IsSpatiallyRestrictable(op string) bool {
	return restrictable[CanonicalOperation(op)]
}

// IsKnownOperation reports whether op is a WMS or WFS operation name.
func IsKnownOperation(op string) bool {
	_, ok := canonical[strings.ToLower(strings.TrimSpace(op))]
	return ok
}
