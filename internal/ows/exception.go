// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package ows

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
)

// Exception codes from OWS Common and WMS.
const (
	CodeMissingParameterValue = "MissingParameterValue"
	CodeInvalidParameterValue = "InvalidParameterValue"
	CodeOperationNotSupported = "OperationNotSupported"
	CodeNoApplicableCode      = "NoApplicableCode"
	CodeInvalidCRS            = "InvalidCRS"
	CodeForbidden             = "Forbidden"
)

// fallbackException is served when an exception document cannot be rendered.
const fallbackException = xml.Header + `<ServiceExceptionReport version="1.3.0" xmlns="http://www.opengis.net/ogc"><ServiceException code="NoApplicableCode">internal error</ServiceException></ServiceExceptionReport>`

// Exception is a single error reported to an OGC client.
type Exception struct {
	Code    string
	Locator string
	Text    string
}

type owsExceptionReport struct {
	XMLName   xml.Name       `xml:"ows:ExceptionReport"`
	NS        string         `xml:"xmlns:ows,attr"`
	Version   string         `xml:"version,attr"`
	Exception []owsException `xml:"ows:Exception"`
}

type owsException struct {
	Code    string `xml:"exceptionCode,attr"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:"ows:ExceptionText"`
}

type wmsExceptionReport struct {
	XMLName   xml.Name       `xml:"ServiceExceptionReport"`
	NS        string         `xml:"xmlns,attr"`
	Version   string         `xml:"version,attr"`
	Exception []wmsException `xml:"ServiceException"`
}

type wmsException struct {
	Code    string `xml:"code,attr"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:",chardata"`
}

// ExceptionDocument renders ex. WMS requests get a WMS
// ServiceExceptionReport, everything else an OWS 1.1 ExceptionReport.
func ExceptionDocument(wms bool, ex Exception) (body []byte, contentType string) {
	var v any
	if wms {
		contentType = "application/vnd.ogc.se_xml"
		v = wmsExceptionReport{
			NS:        "http://www.opengis.net/ogc",
			Version:   "1.3.0",
			Exception: []wmsException{{Code: ex.Code, Locator: ex.Locator, Text: ex.Text}},
		}
	} else {
		contentType = "application/xml"
		v = owsExceptionReport{
			NS:        "http://www.opengis.net/ows/1.1",
			Version:   "2.0.0",
			Exception: []owsException{{Code: ex.Code, Locator: ex.Locator, Text: ex.Text}},
		}
	}
	out, err := marshalXML(v)
	if err != nil {
		logging.Error().Err(err).Str("code", ex.Code).Msg("Exception document could not be rendered")
		return []byte(fallbackException), "application/vnd.ogc.se_xml"
	}
	return append([]byte(xml.Header), out...), contentType
}

// marshalXML is replaced in tests.
var marshalXML = xml.Marshal

// WriteException writes an exception document with the given status.
func WriteException(w http.ResponseWriter, status int, wms bool, ex Exception) {
	body, ct := ExceptionDocument(wms, ex)
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
