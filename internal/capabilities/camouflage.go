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
	"net/url"
	"strings"
)

// Camouflage rewrites every link in doc that points at the origin endpoint
// so that it points at proxyURL instead, keeping query strings. Operation
// endpoints (links inside DCPType or DCP) are rewritten whenever their host
// is the origin host, since servers publish several paths for one service.
// Other links are rewritten only when host and path match origin.
func Camouflage(doc []byte, origin, proxyURL string) ([]byte, error) {
	o, err := url.Parse(origin)
	if err != nil || o.Host == "" {
		return nil, fmt.Errorf("origin url %q: invalid", origin)
	}
	p, err := url.Parse(proxyURL)
	if err != nil || p.Host == "" {
		return nil, fmt.Errorf("proxy url %q: invalid", proxyURL)
	}

	links, err := collectLinks(doc)
	if err != nil {
		return nil, err
	}

	replacements := make(map[string]string)
	for _, l := range links {
		if _, done := replacements[l.url]; done {
			continue
		}
		if rewritten, ok := rewrite(l, o, p); ok {
			replacements[l.url] = rewritten
		}
	}
	if len(replacements) == 0 {
		return doc, nil
	}

	out := doc
	for from, to := range replacements {
		for _, form := range escapedForms(from) {
			toForm := escapeLike(form, from, to)
			for _, delim := range [][2]string{{`"`, `"`}, {`'`, `'`}, {">", "<"}} {
				out = bytes.ReplaceAll(out,
					[]byte(delim[0]+form+delim[1]),
					[]byte(delim[0]+toForm+delim[1]))
			}
		}
	}
	return out, nil
}

type link struct {
	url      string
	endpoint bool
}

func isDCP(local string) bool {
	return local == "DCPType" || local == "DCP"
}

// collectLinks returns the unescaped values of href/onlineResource
// attributes and the text of OnlineResource elements.
func collectLinks(doc []byte) ([]link, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var (
		links  []link
		inText bool
		text   strings.Builder
		dcp    int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return links, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse capabilities: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if isDCP(t.Name.Local) {
				dcp++
			}
			for _, a := range t.Attr {
				if strings.EqualFold(a.Name.Local, "href") || strings.EqualFold(a.Name.Local, "onlineResource") {
					links = append(links, link{url: strings.TrimSpace(a.Value), endpoint: dcp > 0})
				}
			}
			if t.Name.Local == "OnlineResource" {
				inText = true
				text.Reset()
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			if inText && t.Name.Local == "OnlineResource" {
				if s := strings.TrimSpace(text.String()); s != "" {
					links = append(links, link{url: s, endpoint: dcp > 0})
				}
				inText = false
			}
			if isDCP(t.Name.Local) && dcp > 0 {
				dcp--
			}
		}
	}
}

func rewrite(l link, origin, proxy *url.URL) (string, bool) {
	u, err := url.Parse(l.url)
	if err != nil || !strings.EqualFold(u.Host, origin.Host) {
		return "", false
	}
	if !l.endpoint && strings.TrimSuffix(u.Path, "/") != strings.TrimSuffix(origin.Path, "/") {
		return "", false
	}
	out := *proxy
	out.RawQuery = u.RawQuery
	out.ForceQuery = u.ForceQuery || strings.HasSuffix(l.url, "?")
	return out.String(), true
}

var (
	minimalEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;")
	fullEscaper    = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
)

func escapedForms(s string) []string {
	forms := []string{s}
	for _, f := range []string{minimalEscaper.Replace(s), fullEscaper.Replace(s)} {
		if f != forms[len(forms)-1] && f != forms[0] {
			forms = append(forms, f)
		}
	}
	return forms
}

// escapeLike escapes to the same way form escapes from.
func escapeLike(form, from, to string) string {
	switch form {
	case from:
		return to
	case minimalEscaper.Replace(from):
		return minimalEscaper.Replace(to)
	}
	return fullEscaper.Replace(to)
}
