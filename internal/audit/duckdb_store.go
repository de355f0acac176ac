// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/database/query"
)

const maxQueryLimit = 1000

const eventColumns = `id, created_at, event_type, outcome, actor, target_type, target_id,
	description, metadata, request_id, source_ip`

// DuckDBStore keeps events in the audit_events table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore wraps an open connection. Call CreateTable once before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the table and its indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			actor TEXT NOT NULL,
			target_type TEXT,
			target_id TEXT,
			description TEXT,
			metadata TEXT,
			request_id TEXT,
			source_ip TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create audit table: %w", err)
		}
	}
	return nil
}

// Save inserts e.
func (s *DuckDBStore) Save(ctx context.Context, e *Event) error {
	var metadata *string
	if len(e.Metadata) > 0 {
		m := string(e.Metadata)
		metadata = &m
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, string(e.Type), string(e.Outcome), e.Actor,
		nullable(e.TargetType), nullable(e.TargetID), e.Description, metadata,
		nullable(e.RequestID), nullable(e.SourceIP))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns one page of matching events, newest first, and the total
// number of matches.
func (s *DuckDBStore) Query(ctx context.Context, f QueryFilter) ([]Event, int, error) {
	if f.Limit <= 0 || f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	where, args := query.NewWhereBuilder().
		AddEquals("event_type", string(f.Type)).
		AddEquals("actor", f.Actor).
		AddEquals("target_type", f.TargetType).
		AddEquals("target_id", f.TargetID).
		AddTimeRange("created_at", f.Since, f.Until).
		Build()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM audit_events WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e                                              Event
			typ, outcome                                   string
			targetType, targetID, metadata, reqID, address sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &outcome, &e.Actor, &targetType, &targetID,
			&e.Description, &metadata, &reqID, &address); err != nil {
			return nil, 0, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type, e.Outcome = EventType(typ), Outcome(outcome)
		e.TargetType, e.TargetID = targetType.String, targetID.String
		e.RequestID, e.SourceIP = reqID.String, address.String
		if metadata.Valid {
			e.Metadata = []byte(metadata.String)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// DeleteBefore removes events older than cutoff.
func (s *DuckDBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
