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
	"io"

	"github.com/paulmach/orb"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
)

// Errors returned by Transaction.Validate.
var (
	ErrTooManyInsertTypes = errors.New("insert touches too many feature types")
	ErrGeometryOutside    = errors.New("geometry outside allowed area")
	ErrNoSpatialFilter    = errors.New("update and delete require a Within filter")
	ErrUnsafeFilter       = errors.New("filter may select features outside allowed area")
	ErrNativeAction       = errors.New("native transaction actions are not allowed")
)

// ActionKind is a WFS-T action element.
type ActionKind string

const (
	ActionInsert  ActionKind = "Insert"
	ActionUpdate  ActionKind = "Update"
	ActionDelete  ActionKind = "Delete"
	ActionReplace ActionKind = "Replace"
	ActionNative  ActionKind = "Native"
)

// Action is one action of a transaction with the coordinates it carries.
// Geometries holds one point group per inserted feature or updated
// property; FilterGeometries one group per filter.
type Action struct {
	Kind             ActionKind
	TypeNames        []string
	Geometries       [][]orb.Point
	FilterGeometries [][]orb.Point
	SpatialFilter    bool
	UnsafeFilter     bool
}

// TransactionRequest is a parsed WFS-T request body.
type TransactionRequest struct {
	Actions []Action
}

// restrictingSpatialOps select only features inside their geometry. BBOX
// and Intersects also match features that merely touch it.
var restrictingSpatialOps = map[string]bool{
	"Within": true,
}

var unsafeFilterOps = map[string]bool{
	"Or": true, "Not": true, "Disjoint": true, "Beyond": true,
}

// ParseTransaction reads a WFS Transaction body. Coordinates are returned in
// WGS84; def is the CRS assumed for geometries without srsName.
func ParseTransaction(body []byte, def geometry.CRS) (*TransactionRequest, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	col := geometry.NewCollector(def)
	tx := &TransactionRequest{}

	var (
		depth       int
		cur         *Action
		filterDepth = -1
		groupDepth  = -1
		group       []orb.Point
		sawRoot     bool
	)

	flushGroup := func(inFilter bool) {
		if cur == nil {
			return
		}
		if inFilter {
			cur.FilterGeometries = append(cur.FilterGeometries, group)
		} else if len(group) > 0 {
			cur.Geometries = append(cur.Geometries, group)
		}
		group = nil
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse transaction: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := col.Start(t); err != nil {
				return nil, err
			}
			local := t.Name.Local
			switch {
			case depth == 0:
				if local != Transaction {
					return nil, fmt.Errorf("parse transaction: root element is %s", local)
				}
				sawRoot = true
			case depth == 1:
				tx.Actions = append(tx.Actions, Action{Kind: ActionKind(local)})
				cur = &tx.Actions[len(tx.Actions)-1]
				for _, a := range t.Attr {
					if a.Name.Local == "typeName" || a.Name.Local == "typeNames" {
						cur.TypeNames = append(cur.TypeNames, a.Value)
					}
				}
			case local == "Filter" && filterDepth < 0:
				filterDepth = depth
				groupDepth = depth
				group = nil
			case filterDepth >= 0:
				if restrictingSpatialOps[local] {
					cur.SpatialFilter = true
				}
				if unsafeFilterOps[local] {
					cur.UnsafeFilter = true
				}
			case depth == 2 && cur != nil:
				switch cur.Kind {
				case ActionInsert, ActionReplace:
					cur.TypeNames = appendUnique(cur.TypeNames, qualified(t.Name))
					groupDepth = depth
					group = nil
				case ActionUpdate:
					if local == "Property" {
						groupDepth = depth
						group = nil
					}
				}
			}
			depth++

		case xml.CharData:
			col.CharData(t)

		case xml.EndElement:
			depth--
			pts, err := col.End(t)
			if err != nil {
				return nil, err
			}
			group = append(group, pts...)
			if depth == groupDepth {
				flushGroup(depth == filterDepth)
				groupDepth = -1
			}
			if depth == filterDepth {
				filterDepth = -1
			}
		}
	}

	if !sawRoot {
		return nil, errors.New("parse transaction: empty body")
	}
	return tx, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Validate applies the transaction policy for a caller restricted to area:
// inserted and updated geometries must lie inside it, updates and deletes
// need a Within filter whose geometries lie inside it and inserts may touch
// at most maxInsertTypes feature types (0 disables the limit).
func (tx *TransactionRequest) Validate(area geometry.Area, maxInsertTypes int) error {
	insertTypes := map[string]bool{}
	for _, a := range tx.Actions {
		if a.Kind == ActionNative {
			return ErrNativeAction
		}
		if a.Kind == ActionInsert {
			for _, tn := range a.TypeNames {
				insertTypes[tn] = true
			}
		}
	}
	if maxInsertTypes > 0 && len(insertTypes) > maxInsertTypes {
		return fmt.Errorf("%w: %d > %d", ErrTooManyInsertTypes, len(insertTypes), maxInsertTypes)
	}

	for _, a := range tx.Actions {
		for _, g := range a.Geometries {
			if !area.ContainsPoints(g) {
				return fmt.Errorf("%w: %s action", ErrGeometryOutside, a.Kind)
			}
		}
		if a.Kind != ActionUpdate && a.Kind != ActionDelete && a.Kind != ActionReplace {
			continue
		}
		if a.UnsafeFilter {
			return fmt.Errorf("%w: %s action", ErrUnsafeFilter, a.Kind)
		}
		if !a.SpatialFilter {
			return fmt.Errorf("%w: %s action", ErrNoSpatialFilter, a.Kind)
		}
		for _, g := range a.FilterGeometries {
			if !area.ContainsPoints(g) {
				return fmt.Errorf("%w: %s filter", ErrGeometryOutside, a.Kind)
			}
		}
	}
	return nil
}
