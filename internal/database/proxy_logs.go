// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mrmap-community/mrmap-proxy/internal/database/query"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

const proxyLogColumns = `id, service_id, username, operation, uri, status_code, response_bytes, megapixel, feature_count, elapsed_ms, created_at`

func scanProxyLog(scanner interface{ Scan(dest ...any) error }) (*models.ProxyLog, error) {
	l := &models.ProxyLog{}
	err := scanner.Scan(&l.ID, &l.ServiceID, &l.Username, &l.Operation, &l.URI, &l.StatusCode,
		&l.ResponseBytes, &l.Megapixel, &l.FeatureCount, &l.ElapsedMS, &l.Timestamp)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// InsertProxyLogEntry writes the log row and its request/response rows in
// one transaction.
func (db *DB) InsertProxyLogEntry(ctx context.Context, e *models.ProxyLogEntry) (err error) {
	defer db.observe("insert", "proxy_logs", time.Now(), &err)

	reqHeaders, err := json.Marshal(e.Request.Headers)
	if err != nil {
		return fmt.Errorf("encode request headers: %w", err)
	}
	respHeaders, err := json.Marshal(e.Response.Headers)
	if err != nil {
		return fmt.Errorf("encode response headers: %w", err)
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		l := e.Log
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proxy_logs (`+proxyLogColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.ServiceID, l.Username, l.Operation, l.URI, l.StatusCode,
			l.ResponseBytes, l.Megapixel, l.FeatureCount, l.ElapsedMS, l.Timestamp); err != nil {
			return fmt.Errorf("insert proxy log: %w", err)
		}

		r := e.Request
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO http_request_logs (id, proxy_log_id, method, url, headers, body, body_path, requested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, l.ID, r.Method, r.URL, string(reqHeaders), nullBytes(r.Body), nullString(r.BodyPath), r.Timestamp); err != nil {
			return fmt.Errorf("insert request log: %w", err)
		}

		s := e.Response
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO http_response_logs (id, proxy_log_id, status_code, headers, content_type, body, body_path, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, l.ID, s.StatusCode, string(respHeaders), s.ContentType, nullBytes(s.Body), nullString(s.BodyPath), s.ElapsedMS); err != nil {
			return fmt.Errorf("insert response log: %w", err)
		}
		return nil
	})
	if isConstraintError(err) {
		return ErrConflict
	}
	return err
}

// ListProxyLogs returns one page of log rows, newest first.
func (db *DB) ListProxyLogs(ctx context.Context, f models.ProxyLogFilter) (_ []models.ProxyLog, total int, err error) {
	defer db.observe("select", "proxy_logs", time.Now(), &err)
	f.Limit, f.Offset = pageBounds(f.Limit, f.Offset)

	where, args := query.NewWhereBuilder().
		AddEquals("service_id", f.ServiceID).
		AddEquals("username", f.Username).
		AddTimeRange("created_at", f.Since, f.Until).
		Build()

	if err = db.conn.QueryRowContext(ctx, `SELECT count(*) FROM proxy_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proxy logs: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+proxyLogColumns+` FROM proxy_logs WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proxy logs: %w", err)
	}
	defer closeQuietly(rows)

	out := []models.ProxyLog{}
	for rows.Next() {
		l, err := scanProxyLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan proxy log: %w", err)
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// GetProxyLogEntry returns a log row with its request and response.
func (db *DB) GetProxyLogEntry(ctx context.Context, id string) (_ *models.ProxyLogEntry, err error) {
	defer db.observe("select", "proxy_logs", time.Now(), &err)

	l, err := scanProxyLog(db.conn.QueryRowContext(ctx, `SELECT `+proxyLogColumns+` FROM proxy_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proxy log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get proxy log %s: %w", id, err)
	}
	e := &models.ProxyLogEntry{Log: *l}

	var (
		headers  string
		bodyPath sql.NullString
	)
	err = db.conn.QueryRowContext(ctx, `
		SELECT id, method, url, headers, body, body_path, requested_at
		FROM http_request_logs WHERE proxy_log_id = ?`, id).
		Scan(&e.Request.ID, &e.Request.Method, &e.Request.URL, &headers, &e.Request.Body, &bodyPath, &e.Request.Timestamp)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get request log %s: %w", id, err)
	}
	e.Request.ProxyLogID = id
	e.Request.BodyPath = bodyPath.String
	if err == nil {
		if err := json.Unmarshal([]byte(headers), &e.Request.Headers); err != nil {
			return nil, fmt.Errorf("decode request headers: %w", err)
		}
	}

	bodyPath = sql.NullString{}
	err = db.conn.QueryRowContext(ctx, `
		SELECT id, status_code, headers, content_type, body, body_path, elapsed_ms
		FROM http_response_logs WHERE proxy_log_id = ?`, id).
		Scan(&e.Response.ID, &e.Response.StatusCode, &headers, &e.Response.ContentType, &e.Response.Body, &bodyPath, &e.Response.ElapsedMS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get response log %s: %w", id, err)
	}
	e.Response.ProxyLogID = id
	e.Response.BodyPath = bodyPath.String
	if err == nil {
		if err := json.Unmarshal([]byte(headers), &e.Response.Headers); err != nil {
			return nil, fmt.Errorf("decode response headers: %w", err)
		}
	}
	return e, nil
}

// DeleteProxyLogsBefore removes log rows older than cutoff and returns
// how many were removed together with their attachment paths.
func (db *DB) DeleteProxyLogsBefore(ctx context.Context, cutoff time.Time) (deleted int64, attachments []string, err error) {
	defer db.observe("delete", "proxy_logs", time.Now(), &err)

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM proxy_logs WHERE created_at < ?`, cutoff).Scan(&deleted); err != nil {
			return fmt.Errorf("count expired proxy logs: %w", err)
		}
		var err error
		attachments, err = deleteProxyLogs(ctx, tx, `created_at < ?`, cutoff)
		return err
	})
	return deleted, attachments, err
}

// deleteProxyLogs removes proxy_logs rows matching where and their
// request/response rows.
func deleteProxyLogs(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]string, error) {
	sub := `SELECT id FROM proxy_logs WHERE ` + where
	rows, err := tx.QueryContext(ctx, `
		SELECT body_path FROM http_request_logs WHERE body_path IS NOT NULL AND proxy_log_id IN (`+sub+`)
		UNION ALL
		SELECT body_path FROM http_response_logs WHERE body_path IS NOT NULL AND proxy_log_id IN (`+sub+`)`,
		append(append([]any{}, args...), args...)...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		paths = append(paths, p)
	}
	closeQuietly(rows)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	for _, q := range []string{
		`DELETE FROM http_request_logs WHERE proxy_log_id IN (` + sub + `)`,
		`DELETE FROM http_response_logs WHERE proxy_log_id IN (` + sub + `)`,
		`DELETE FROM proxy_logs WHERE ` + where,
	} {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, fmt.Errorf("delete proxy logs: %w", err)
		}
	}
	return paths, nil
}
