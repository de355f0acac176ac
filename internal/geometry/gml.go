// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package geometry

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Collector pulls coordinates out of a GML token stream. Feed it every
// token; End returns the WGS84 points completed by that end element.
// srsName and srsDimension attributes are inherited by nested elements.
type Collector struct {
	frames []frame
	text   strings.Builder
	coordX *float64
}

type frame struct {
	crs   CRS
	dim   int
	local string
	attrs []xml.Attr
}

// NewCollector starts with the CRS used when the document names none.
func NewCollector(def CRS) *Collector {
	return &Collector{frames: []frame{{crs: def, dim: 2}}}
}

func (c *Collector) top() frame { return c.frames[len(c.frames)-1] }

// Start must be called for every start element.
func (c *Collector) Start(se xml.StartElement) error {
	f := c.top()
	f.local = se.Name.Local
	f.attrs = se.Attr
	for _, a := range se.Attr {
		switch a.Name.Local {
		case "srsName":
			crs, err := ParseCRS(a.Value)
			if err != nil {
				return err
			}
			f.crs = crs
		case "srsDimension":
			if n, err := strconv.Atoi(a.Value); err == nil && n >= 2 {
				f.dim = n
			}
		}
	}
	c.frames = append(c.frames, f)
	if isCoordinateElement(se.Name) {
		c.text.Reset()
	}
	return nil
}

// CharData must be called for character data.
func (c *Collector) CharData(b xml.CharData) {
	if isCoordinateLocal(c.top().local) {
		c.text.Write(b)
	}
}

// End must be called for every end element.
func (c *Collector) End(ee xml.EndElement) ([]orb.Point, error) {
	if len(c.frames) < 2 {
		return nil, errors.New("unbalanced gml document")
	}
	f := c.top()
	c.frames = c.frames[:len(c.frames)-1]
	if !isCoordinateElement(ee.Name) {
		return nil, nil
	}

	raw := c.text.String()
	c.text.Reset()

	var xy []orb.Point
	switch f.local {
	case "pos", "lowerCorner", "upperCorner":
		vals, err := parseFloats(strings.Fields(raw))
		if err != nil || len(vals) < 2 {
			return nil, fmt.Errorf("invalid %s %q", f.local, raw)
		}
		xy = []orb.Point{{vals[0], vals[1]}}
	case "posList":
		vals, err := parseFloats(strings.Fields(raw))
		if err != nil || len(vals)%f.dim != 0 {
			return nil, fmt.Errorf("invalid posList of dimension %d", f.dim)
		}
		for i := 0; i+1 < len(vals); i += f.dim {
			xy = append(xy, orb.Point{vals[i], vals[i+1]})
		}
	case "coordinates":
		pts, err := parseCoordinates(raw, f.attrs)
		if err != nil {
			return nil, err
		}
		xy = pts
	case "X":
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid X %q", raw)
		}
		c.coordX = &v
		return nil, nil
	case "Y":
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || c.coordX == nil {
			return nil, fmt.Errorf("invalid coord Y %q", raw)
		}
		xy = []orb.Point{{*c.coordX, v}}
		c.coordX = nil
	}

	out := make([]orb.Point, len(xy))
	for i, p := range xy {
		out[i] = f.crs.ToWGS84(f.crs.Axis(p))
	}
	return out, nil
}

func isCoordinateElement(n xml.Name) bool {
	return isGMLSpace(n.Space) && isCoordinateLocal(n.Local)
}

func isCoordinateLocal(local string) bool {
	switch local {
	case "pos", "posList", "coordinates", "lowerCorner", "upperCorner", "X", "Y":
		return true
	}
	return false
}

func isGMLSpace(space string) bool {
	return space == "gml" || strings.HasPrefix(space, "http://www.opengis.net/gml")
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, s := range fields {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// parseCoordinates handles GML2 gml:coordinates with its cs, ts and
// decimal attributes.
func parseCoordinates(raw string, attrs []xml.Attr) ([]orb.Point, error) {
	cs, ts, dec := ",", " ", "."
	for _, a := range attrs {
		switch a.Name.Local {
		case "cs":
			cs = a.Value
		case "ts":
			ts = a.Value
		case "decimal":
			dec = a.Value
		}
	}

	var tuples []string
	if strings.TrimSpace(ts) == "" {
		tuples = strings.Fields(raw)
	} else {
		tuples = strings.Split(strings.TrimSpace(raw), ts)
	}

	pts := make([]orb.Point, 0, len(tuples))
	for _, tuple := range tuples {
		tuple = strings.TrimSpace(tuple)
		if tuple == "" {
			continue
		}
		parts := strings.Split(tuple, cs)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid coordinate tuple %q", tuple)
		}
		if dec != "." {
			for i := range parts {
				parts[i] = strings.ReplaceAll(parts[i], dec, ".")
			}
		}
		vals, err := parseFloats(parts[:2])
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate tuple %q", tuple)
		}
		pts = append(pts, orb.Point{vals[0], vals[1]})
	}
	return pts, nil
}

// Summary is what ScanGML learned about a feature collection.
type Summary struct {
	Points   []orb.Point
	Features int
}

// ScanGML streams a GML feature collection (WFS GetFeature or a GML
// GetFeatureInfo response) and returns all coordinates in WGS84.
func ScanGML(r io.Reader, def CRS) (Summary, error) {
	var sum Summary
	dec := xml.NewDecoder(r)
	col := NewCollector(def)
	membersDepth := -1
	depth := 0

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("parse gml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == membersDepth+1 && membersDepth >= 0 {
				sum.Features++
			}
			switch {
			case t.Name.Local == "featureMember" || (t.Name.Local == "member" && !isGMLSpace(t.Name.Space)):
				sum.Features++
			case t.Name.Local == "featureMembers":
				membersDepth = depth
			case strings.HasSuffix(t.Name.Local, "_feature"):
				sum.Features++
			}
			depth++
			if err := col.Start(t); err != nil {
				return sum, err
			}
		case xml.CharData:
			col.CharData(t)
		case xml.EndElement:
			depth--
			if depth == membersDepth {
				membersDepth = -1
			}
			pts, err := col.End(t)
			if err != nil {
				return sum, err
			}
			sum.Points = append(sum.Points, pts...)
		}
	}
	return sum, nil
}
