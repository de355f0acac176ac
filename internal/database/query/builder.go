// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package query builds parameterized WHERE clauses for the database package.
package query

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder collects AND-joined conditions and their arguments.
//
//	wb := query.NewWhereBuilder()
//	wb.AddEquals("username", "alice").AddTimeRange("timestamp", since, nil)
//	where, args := wb.Build()
//	// username = ? AND timestamp >= ?
type WhereBuilder struct {
	clauses []string
	args    []any
}

// NewWhereBuilder creates an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition.
func (wb *WhereBuilder) AddClause(clause string, args ...any) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEquals adds "column = ?" unless value is the zero value of its type.
func (wb *WhereBuilder) AddEquals(column string, value any) *WhereBuilder {
	switch v := value.(type) {
	case nil:
		return wb
	case string:
		if v == "" {
			return wb
		}
	case *int64:
		if v == nil {
			return wb
		}
		value = *v
	case *bool:
		if v == nil {
			return wb
		}
		value = *v
	}
	return wb.AddClause(column+" = ?", value)
}

// AddTimeRange bounds column by since (inclusive) and until (exclusive).
// Nil bounds are skipped.
func (wb *WhereBuilder) AddTimeRange(column string, since, until *time.Time) *WhereBuilder {
	if since != nil {
		wb.AddClause(column+" >= ?", *since)
	}
	if until != nil {
		wb.AddClause(column+" < ?", *until)
	}
	return wb
}

// AddSearch adds a case-insensitive substring match over columns.
func (wb *WhereBuilder) AddSearch(term string, columns ...string) *WhereBuilder {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return wb
	}
	parts := make([]string, len(columns))
	pattern := "%" + strings.ToLower(term) + "%"
	for i, c := range columns {
		parts[i] = fmt.Sprintf("lower(%s) LIKE ?", c)
		wb.args = append(wb.args, pattern)
	}
	wb.clauses = append(wb.clauses, "("+strings.Join(parts, " OR ")+")")
	return wb
}

// Build returns the clause without the WHERE keyword, or "1=1".
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}
