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

const userColumns = `id, username, password_hash, is_superuser, created_at`

func scanUser(scanner interface{ Scan(dest ...any) error }) (*models.User, error) {
	u := &models.User{}
	if err := scanner.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsSuperuser, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts u. PasswordHash must already be hashed.
func (db *DB) CreateUser(ctx context.Context, u *models.User) (err error) {
	defer db.observe("insert", "users", time.Now(), &err)

	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, is_superuser, created_at)
		VALUES (?, ?, ?, ?) RETURNING id`,
		u.Username, u.PasswordHash, u.IsSuperuser, now).Scan(&u.ID)
	if isConstraintError(err) {
		return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = now
	return nil
}

// EnsureUser returns the user with username, creating it without a
// password when missing.
func (db *DB) EnsureUser(ctx context.Context, username string) (*models.User, error) {
	u, err := db.GetUserByUsername(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u = &models.User{Username: username}
	if err := db.CreateUser(ctx, u); err != nil && !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return db.GetUserByUsername(ctx, username)
}

// GetUser returns the user with id.
func (db *DB) GetUser(ctx context.Context, id int64) (_ *models.User, err error) {
	defer db.observe("select", "users", time.Now(), &err)

	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername returns the user named username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (_ *models.User, err error) {
	defer db.observe("select", "users", time.Now(), &err)

	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

// ListUsers returns one page of users ordered by username.
func (db *DB) ListUsers(ctx context.Context, limit, offset int) (_ []models.User, total int, err error) {
	defer db.observe("select", "users", time.Now(), &err)
	limit, offset = pageBounds(limit, offset)

	if err = db.conn.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer closeQuietly(rows)

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// SetPassword replaces the stored hash.
func (db *DB) SetPassword(ctx context.Context, id int64, hash string) (err error) {
	defer db.observe("update", "users", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("set password of user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user and its memberships.
func (db *DB) DeleteUser(ctx context.Context, id int64) (err error) {
	defer db.observe("delete", "users", time.Now(), &err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete memberships of user %d: %w", id, err)
		}
		return nil
	})
}
