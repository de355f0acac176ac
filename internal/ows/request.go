// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package ows

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
)

// ErrMissingRequest is returned when neither the query nor the body names
// an operation.
var ErrMissingRequest = errors.New("missing request parameter")

// AmbiguousParameterError is returned when a parameter the proxy checks is
// given more than once, or when the query and the POST body name different
// operations.
type AmbiguousParameterError struct {
	Param string
}

func (e *AmbiguousParameterError) Error() string {
	return fmt.Sprintf("parameter %s is ambiguous", e.Param)
}

// Request is an incoming OGC request.
type Request struct {
	Method    string
	Query     Query
	Body      []byte
	Service   string
	Operation string
	Version   string
}

// ParseRequest reads the operation from the request parameter, falling
// back to the root element of an XML POST body.
func ParseRequest(method string, values url.Values, body []byte) (*Request, error) {
	q := NewQuery(values)
	if key := q.repeated(); key != "" {
		return nil, &AmbiguousParameterError{Param: key}
	}
	r := &Request{
		Method:    method,
		Query:     q,
		Body:      body,
		Service:   strings.ToUpper(q.Get(ParamService)),
		Operation: CanonicalOperation(q.Get(ParamRequest)),
		Version:   q.Get(ParamVersion),
	}

	if r.Operation != "" && method == http.MethodPost && len(bytes.TrimSpace(body)) > 0 {
		if root, err := rootElement(body); err == nil {
			if op := CanonicalOperation(root.Name.Local); IsKnownOperation(op) && op != r.Operation {
				return nil, &AmbiguousParameterError{Param: ParamRequest}
			}
		}
	}

	if r.Operation == "" && method == http.MethodPost && len(bytes.TrimSpace(body)) > 0 {
		root, err := rootElement(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingRequest, err)
		}
		r.Operation = CanonicalOperation(root.Name.Local)
		for _, a := range root.Attr {
			switch strings.ToLower(a.Name.Local) {
			case "service":
				if r.Service == "" {
					r.Service = strings.ToUpper(a.Value)
				}
			case "version":
				if r.Version == "" {
					r.Version = a.Value
				}
			}
		}
	}

	if r.Operation == "" {
		return nil, ErrMissingRequest
	}
	return r, nil
}

func rootElement(body []byte) (xml.StartElement, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// CRS returns the request reference system. WMS 1.3.0 uses CRS with
// lat/lon order for EPSG:4326, older WMS uses SRS, WFS uses srsName. A WFS
// 1.1.0 or later request without srsName is in EPSG:4326 lat/lon; without
// a version the origin answers with its newest, so the same applies.
func (r *Request) CRS() (geometry.CRS, error) {
	raw := r.Query.Get(ParamCRS)
	if raw == "" {
		raw = r.Query.Get(ParamSRS)
	}
	if raw == "" {
		raw = r.Query.Get(ParamSRSName)
	}
	if raw == "" {
		if r.IsWFS() && (r.Version == "" || !versionBefore(r.Version, "1.1.0")) {
			return geometry.WGS84.WithLatLon(), nil
		}
		return geometry.WGS84, nil
	}
	crs, err := geometry.ParseCRS(raw)
	if err != nil {
		return crs, err
	}
	if r.Service != "WFS" && r.Version == "1.3.0" {
		crs = crs.WithLatLon()
	}
	return crs, nil
}

// versionBefore compares dotted OGC version numbers. Missing or
// unparsable parts count as zero.
func versionBefore(v, than string) bool {
	a, b := strings.Split(v, "."), strings.Split(than, ".")
	for i := 0; i < len(a) || i < len(b); i++ {
		x, y := versionPart(a, i), versionPart(b, i)
		if x != y {
			return x < y
		}
	}
	return false
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(parts[i]))
	return n
}

// BBox returns the request bounding box. ok is false when the request has
// no bbox parameter.
func (r *Request) BBox() (bbox geometry.BBox, ok bool, err error) {
	raw := r.Query.Get(ParamBBox)
	if raw == "" {
		return geometry.BBox{}, false, nil
	}
	crs, err := r.CRS()
	if err != nil {
		return geometry.BBox{}, true, err
	}
	bbox, err = geometry.ParseBBox(raw, crs)
	return bbox, true, err
}

// Size returns WIDTH and HEIGHT.
func (r *Request) Size() (width, height int, err error) {
	width, err = strconv.Atoi(r.Query.Get(ParamWidth))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width %q", r.Query.Get(ParamWidth))
	}
	height, err = strconv.Atoi(r.Query.Get(ParamHeight))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height %q", r.Query.Get(ParamHeight))
	}
	return width, height, nil
}

// FormatParam names the parameter that selects the response format of the
// operation.
func (r *Request) FormatParam() string {
	switch r.Operation {
	case GetFeatureInfo:
		return ParamInfoFormat
	case GetFeature, GetFeatureWithLock, GetPropertyValue:
		return ParamOutputFormat
	}
	return ParamFormat
}

// IsWFS reports whether the request targets a WFS.
func (r *Request) IsWFS() bool {
	if r.Service != "" {
		return r.Service == "WFS"
	}
	switch r.Operation {
	case GetFeature, Transaction, DescribeFeatureType, GetPropertyValue, GetFeatureWithLock, LockFeature:
		return true
	}
	return false
}
