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

	"github.com/mrmap-community/mrmap-proxy/internal/database/query"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

const serviceColumns = `id, title, type, version, base_url, is_active, is_secured, log_proxy_access, created_at, updated_at`

func scanService(scanner interface{ Scan(dest ...any) error }) (*models.Service, error) {
	s := &models.Service{}
	var typ string
	if err := scanner.Scan(&s.ID, &s.Title, &typ, &s.Version, &s.BaseURL,
		&s.IsActive, &s.IsSecured, &s.LogProxyAccess, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Type = models.ServiceType(typ)
	return s, nil
}

// CreateService inserts s and fills in its ID and timestamps.
func (db *DB) CreateService(ctx context.Context, s *models.Service) (err error) {
	defer db.observe("insert", "services", time.Now(), &err)

	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO services (title, type, version, base_url, is_active, is_secured, log_proxy_access, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		s.Title, string(s.Type), s.Version, s.BaseURL, s.IsActive, s.IsSecured, s.LogProxyAccess, now, now)
	if err = row.Scan(&s.ID); err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

// GetService returns the service with id or ErrNotFound.
func (db *DB) GetService(ctx context.Context, id int64) (_ *models.Service, err error) {
	defer db.observe("select", "services", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return s, nil
}

// ListServices returns one page of services and the total match count.
func (db *DB) ListServices(ctx context.Context, f models.ServiceFilter) (_ []models.Service, total int, err error) {
	defer db.observe("select", "services", time.Now(), &err)
	f.Limit, f.Offset = pageBounds(f.Limit, f.Offset)

	wb := query.NewWhereBuilder().AddSearch(f.Search, "title", "base_url").AddEquals("is_active", f.IsActive)
	if f.Type != "" {
		wb.AddEquals("type", string(f.Type))
	}
	where, args := wb.Build()

	if err = db.conn.QueryRowContext(ctx, `SELECT count(*) FROM services WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	defer closeQuietly(rows)

	out := []models.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

// UpdateService applies the non-nil fields of u.
func (db *DB) UpdateService(ctx context.Context, id int64, u models.ServiceUpdate) (_ *models.Service, err error) {
	defer db.observe("update", "services", time.Now(), &err)

	s, err := db.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.IsActive != nil {
		s.IsActive = *u.IsActive
	}
	if u.IsSecured != nil {
		s.IsSecured = *u.IsSecured
	}
	if u.LogProxyAccess != nil {
		s.LogProxyAccess = *u.LogProxyAccess
	}
	s.UpdatedAt = time.Now().UTC()

	_, err = db.conn.ExecContext(ctx, `
		UPDATE services SET title = ?, is_active = ?, is_secured = ?, log_proxy_access = ?, updated_at = ?
		WHERE id = ?`,
		s.Title, s.IsActive, s.IsSecured, s.LogProxyAccess, s.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update service %d: %w", id, err)
	}
	return s, nil
}

// DeleteService removes a service with its grants and proxy logs. It
// returns the attachment paths of the deleted logs.
func (db *DB) DeleteService(ctx context.Context, id int64) (attachments []string, err error) {
	defer db.observe("delete", "services", time.Now(), &err)

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete service %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("service %d: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM allowed_operations WHERE service_id = ?`, id); err != nil {
			return fmt.Errorf("delete grants of service %d: %w", id, err)
		}
		attachments, err = deleteProxyLogs(ctx, tx, `service_id = ?`, id)
		return err
	})
	return attachments, err
}
