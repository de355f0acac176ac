// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package ows understands just enough of the OGC WMS and WFS protocols to
// secure them: parameter access, operation names, bounding boxes, WFS-T
// bodies and exception documents.
package ows

import (
	"net/url"
	"sort"
	"strings"
)

// Common parameter names. OGC keys are case-insensitive.
const (
	ParamService      = "service"
	ParamRequest      = "request"
	ParamVersion      = "version"
	ParamBBox         = "bbox"
	ParamSRS          = "srs"
	ParamCRS          = "crs"
	ParamSRSName      = "srsname"
	ParamWidth        = "width"
	ParamHeight       = "height"
	ParamFormat       = "format"
	ParamInfoFormat   = "info_format"
	ParamOutputFormat = "outputformat"
	ParamLayers       = "layers"
	ParamTransparent  = "transparent"
	ParamQueryLayers  = "query_layers"
	ParamTypeName     = "typename"
	ParamTypeNames    = "typenames"
	ParamFilter       = "filter"
)

// singleValued are the parameters the proxy decides on. Each may appear
// once under one spelling, otherwise the origin could read a different
// value than the one that was checked.
var singleValued = []string{
	ParamService, ParamRequest, ParamVersion, ParamBBox,
	ParamSRS, ParamCRS, ParamSRSName, ParamWidth, ParamHeight,
	ParamFormat, ParamInfoFormat, ParamOutputFormat,
	ParamLayers, ParamQueryLayers, ParamTypeName, ParamTypeNames, ParamFilter,
}

// Query is a case-insensitive view of URL query parameters.
type Query struct {
	values url.Values
}

// NewQuery wraps v without copying.
func NewQuery(v url.Values) Query {
	if v == nil {
		v = url.Values{}
	}
	return Query{values: v}
}

// Get returns the first value of key, matching keys case-insensitively.
// When several spellings are present the lexically smallest one wins.
func (q Query) Get(key string) string {
	if vs := q.values[key]; len(vs) > 0 {
		return vs[0]
	}
	var found []string
	for k, vs := range q.values {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			found = append(found, k)
		}
	}
	if len(found) == 0 {
		return ""
	}
	sort.Strings(found)
	return q.values[found[0]][0]
}

// count returns how many values key has across all of its spellings.
func (q Query) count(key string) int {
	n := 0
	for k, vs := range q.values {
		if strings.EqualFold(k, key) {
			n += len(vs)
		}
	}
	return n
}

// repeated returns the first single-valued parameter that occurs more than
// once, or "".
func (q Query) repeated() string {
	for _, key := range singleValued {
		if q.count(key) > 1 {
			return key
		}
	}
	return ""
}

// Has reports whether key is present with a non-empty value.
func (q Query) Has(key string) bool {
	return q.Get(key) != ""
}

// With returns a copy of the parameters where every spelling of key is
// replaced by a single key=value pair.
func (q Query) With(key, value string) url.Values {
	out := make(url.Values, len(q.values)+1)
	for k, vs := range q.values {
		if strings.EqualFold(k, key) {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	out.Set(strings.ToUpper(key), value)
	return out
}

// Values returns the underlying parameters.
func (q Query) Values() url.Values { return q.values }
