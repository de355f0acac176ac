// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package capabilities

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

// ErrNotCapabilities is returned for documents that are not WMS or WFS
// capabilities.
var ErrNotCapabilities = errors.New("not a WMS or WFS capabilities document")

// Info is what registration learns from a capabilities document.
type Info struct {
	Type    models.ServiceType
	Version string
	Title   string
}

// Inspect reads the service type, version and title of a capabilities
// document. The title is the first Title directly below Service (WMS) or
// ServiceIdentification (WFS).
func Inspect(doc []byte) (Info, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var (
		info  Info
		path  []string
		title strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return info, fmt.Errorf("parse capabilities: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(path) == 0 {
				switch t.Name.Local {
				case "WMS_Capabilities", "WMT_MS_Capabilities":
					info.Type = models.ServiceTypeWMS
				case "WFS_Capabilities":
					info.Type = models.ServiceTypeWFS
				default:
					if strings.HasSuffix(t.Name.Local, "ExceptionReport") {
						return info, fmt.Errorf("%w: origin returned %s", ErrNotCapabilities, t.Name.Local)
					}
					return info, fmt.Errorf("%w: root element %s", ErrNotCapabilities, t.Name.Local)
				}
				for _, a := range t.Attr {
					if a.Name.Local == "version" {
						info.Version = a.Value
					}
				}
			}
			path = append(path, t.Name.Local)
		case xml.CharData:
			if isTitlePath(path) && info.Title == "" {
				title.Write(t)
			}
		case xml.EndElement:
			if isTitlePath(path) && info.Title == "" {
				info.Title = strings.TrimSpace(title.String())
			}
			path = path[:len(path)-1]
		}
	}
	if info.Type == "" {
		return info, ErrNotCapabilities
	}
	return info, nil
}

func isTitlePath(path []string) bool {
	if len(path) != 3 || path[2] != "Title" {
		return false
	}
	return path[1] == "Service" || path[1] == "ServiceIdentification"
}
