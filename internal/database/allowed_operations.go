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
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mrmap-community/mrmap-proxy/internal/geometry"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/ows"
)

const allowedOperationColumns = `id, service_id, group_id, operations, allowed_area, description, created_at`

func scanAllowedOperation(scanner interface{ Scan(dest ...any) error }) (*models.AllowedOperation, error) {
	a := &models.AllowedOperation{}
	var ops string
	var area sql.NullString
	if err := scanner.Scan(&a.ID, &a.ServiceID, &a.GroupID, &ops, &area, &a.Description, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Operations = splitOperations(ops)
	if area.Valid {
		mp, err := loadArea(area.String)
		if err != nil {
			return nil, fmt.Errorf("allowed operation %d: %w", a.ID, err)
		}
		a.AllowedArea = mp
	}
	return a, nil
}

// loadArea parses a stored area. Empty geometries come back as a non-nil
// empty MultiPolygon so they stay distinguishable from NULL.
func loadArea(s string) (orb.MultiPolygon, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(strings.ToUpper(s), "EMPTY") {
		return orb.MultiPolygon{}, nil
	}
	mp, err := geometry.ParseArea(s)
	if err != nil {
		return nil, err
	}
	if mp == nil {
		mp = orb.MultiPolygon{}
	}
	return mp, nil
}

func joinOperations(ops []string) string {
	seen := make(map[string]bool, len(ops))
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		op = ows.CanonicalOperation(op)
		if op == "" || seen[op] {
			continue
		}
		seen[op] = true
		out = append(out, op)
	}
	return strings.Join(out, ",")
}

func splitOperations(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// areaValue stores a nil area as NULL and anything else, even an empty
// area, as WKT.
func areaValue(a *models.AllowedOperation) any {
	if a.AllowedArea == nil {
		return nil
	}
	return geometry.NewArea(a.AllowedArea).WKT()
}

// CreateAllowedOperation inserts a grant. Operation names are normalised
// to their canonical spelling.
func (db *DB) CreateAllowedOperation(ctx context.Context, a *models.AllowedOperation) (err error) {
	defer db.observe("insert", "allowed_operations", time.Now(), &err)

	if _, err = db.GetService(ctx, a.ServiceID); err != nil {
		return err
	}
	if _, err = db.GetGroup(ctx, a.GroupID); err != nil {
		return err
	}

	ops := joinOperations(a.Operations)
	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO allowed_operations (service_id, group_id, operations, allowed_area, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		a.ServiceID, a.GroupID, ops, areaValue(a), a.Description, now).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert allowed operation: %w", err)
	}
	a.Operations = splitOperations(ops)
	a.CreatedAt = now
	return nil
}

// GetAllowedOperation returns the grant with id.
func (db *DB) GetAllowedOperation(ctx context.Context, id int64) (_ *models.AllowedOperation, err error) {
	defer db.observe("select", "allowed_operations", time.Now(), &err)

	a, err := scanAllowedOperation(db.conn.QueryRowContext(ctx,
		`SELECT `+allowedOperationColumns+` FROM allowed_operations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("allowed operation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get allowed operation %d: %w", id, err)
	}
	return a, nil
}

// ListAllowedOperations returns all grants, or those of one service.
func (db *DB) ListAllowedOperations(ctx context.Context, serviceID *int64) (_ []models.AllowedOperation, err error) {
	defer db.observe("select", "allowed_operations", time.Now(), &err)

	q := `SELECT ` + allowedOperationColumns + ` FROM allowed_operations`
	var args []any
	if serviceID != nil {
		q += ` WHERE service_id = ?`
		args = append(args, *serviceID)
	}
	rows, err := db.conn.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list allowed operations: %w", err)
	}
	defer closeQuietly(rows)

	out := []models.AllowedOperation{}
	for rows.Next() {
		a, err := scanAllowedOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DeleteAllowedOperation removes a grant.
func (db *DB) DeleteAllowedOperation(ctx context.Context, id int64) (err error) {
	defer db.observe("delete", "allowed_operations", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx, `DELETE FROM allowed_operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete allowed operation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("allowed operation %d: %w", id, ErrNotFound)
	}
	return nil
}

// Grants returns the grants through which username may perform operation
// on a service. Superusers get a single unrestricted grant, as do grants
// stored without an area.
func (db *DB) Grants(ctx context.Context, serviceID int64, username, operation string) (_ []models.Grant, err error) {
	defer db.observe("select", "allowed_operations", time.Now(), &err)

	u, err := db.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.IsSuperuser {
		return []models.Grant{{GroupName: "admin", Unrestricted: true}}, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT g.name, a.operations, a.allowed_area
		FROM allowed_operations a
		JOIN user_groups g ON g.id = a.group_id
		JOIN group_members m ON m.group_id = g.id
		WHERE a.service_id = ? AND m.user_id = ?
		ORDER BY a.id`, serviceID, u.ID)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer closeQuietly(rows)

	operation = ows.CanonicalOperation(operation)
	var out []models.Grant
	for rows.Next() {
		var (
			group, ops string
			area       sql.NullString
		)
		if err := rows.Scan(&group, &ops, &area); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		if !containsOperation(ops, operation) {
			continue
		}
		g := models.Grant{GroupName: group, Unrestricted: !area.Valid}
		if area.Valid {
			if g.AllowedArea, err = loadArea(area.String); err != nil {
				return nil, fmt.Errorf("grant of group %q: %w", group, err)
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func containsOperation(list, op string) bool {
	for _, o := range splitOperations(list) {
		if strings.EqualFold(o, op) {
			return true
		}
	}
	return false
}
