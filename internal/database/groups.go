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

	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

func scanGroup(scanner interface{ Scan(dest ...any) error }) (*models.Group, error) {
	g := &models.Group{}
	if err := scanner.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGroup inserts g.
func (db *DB) CreateGroup(ctx context.Context, g *models.Group) (err error) {
	defer db.observe("insert", "user_groups", time.Now(), &err)

	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO user_groups (name, description, created_at) VALUES (?, ?, ?) RETURNING id`,
		g.Name, g.Description, now).Scan(&g.ID)
	if isConstraintError(err) {
		return fmt.Errorf("group %q: %w", g.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	g.CreatedAt = now
	return nil
}

// GetGroup returns the group with id.
func (db *DB) GetGroup(ctx context.Context, id int64) (_ *models.Group, err error) {
	defer db.observe("select", "user_groups", time.Now(), &err)

	g, err := scanGroup(db.conn.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM user_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	return g, nil
}

// ListGroups returns all groups ordered by name.
func (db *DB) ListGroups(ctx context.Context) (_ []models.Group, err error) {
	defer db.observe("select", "user_groups", time.Now(), &err)
	return db.queryGroups(ctx, `SELECT id, name, description, created_at FROM user_groups ORDER BY name`)
}

// UserGroups returns the groups username belongs to.
func (db *DB) UserGroups(ctx context.Context, username string) (_ []models.Group, err error) {
	defer db.observe("select", "group_members", time.Now(), &err)
	return db.queryGroups(ctx, `
		SELECT g.id, g.name, g.description, g.created_at
		FROM user_groups g
		JOIN group_members m ON m.group_id = g.id
		JOIN users u ON u.id = m.user_id
		WHERE u.username = ?
		ORDER BY g.name`, username)
}

func (db *DB) queryGroups(ctx context.Context, q string, args ...any) ([]models.Group, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer closeQuietly(rows)

	out := []models.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// DeleteGroup removes a group with its memberships and grants.
func (db *DB) DeleteGroup(ctx context.Context, id int64) (err error) {
	defer db.observe("delete", "user_groups", time.Now(), &err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM user_groups WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete group %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("group %d: %w", id, ErrNotFound)
		}
		for _, q := range []string{
			`DELETE FROM group_members WHERE group_id = ?`,
			`DELETE FROM allowed_operations WHERE group_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete dependents of group %d: %w", id, err)
			}
		}
		return nil
	})
}

// AddMember adds a user to a group. Adding an existing member is a no-op.
func (db *DB) AddMember(ctx context.Context, groupID, userID int64) (err error) {
	defer db.observe("insert", "group_members", time.Now(), &err)

	if _, err = db.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err = db.GetUser(ctx, userID); err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add member %d to group %d: %w", userID, groupID, err)
	}
	return nil
}

// RemoveMember removes a user from a group.
func (db *DB) RemoveMember(ctx context.Context, groupID, userID int64) (err error) {
	defer db.observe("delete", "group_members", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member %d from group %d: %w", userID, groupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("membership %d/%d: %w", groupID, userID, ErrNotFound)
	}
	return nil
}

// Members returns the users in a group.
func (db *DB) Members(ctx context.Context, groupID int64) (_ []models.User, err error) {
	defer db.observe("select", "group_members", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.is_superuser, u.created_at
		FROM users u JOIN group_members m ON m.user_id = u.id
		WHERE m.group_id = ? ORDER BY u.username`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members of group %d: %w", groupID, err)
	}
	defer closeQuietly(rows)

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Memberships returns every (username, group name) pair.
func (db *DB) Memberships(ctx context.Context) (_ [][2]string, err error) {
	defer db.observe("select", "group_members", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT u.username, g.name
		FROM group_members m
		JOIN users u ON u.id = m.user_id
		JOIN user_groups g ON g.id = m.group_id`)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer closeQuietly(rows)

	var out [][2]string
	for rows.Next() {
		var pair [2]string
		if err := rows.Scan(&pair[0], &pair[1]); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}
