// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

/*
schema.go - Database Schema Management

Tables:
  - services: registered origin WMS/WFS endpoints
  - users, user_groups, group_members: principals and membership
  - allowed_operations: per group and service operation grants, with an
    optional allowed area stored as WKT in EPSG:4326
  - proxy_logs, http_request_logs, http_response_logs: audit trail of
    proxied requests

DuckDB does not enforce ON DELETE CASCADE, so dependent rows are removed
explicitly inside the same transaction as their parent.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range tableQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(q), err)
		}
	}
	for _, q := range indexQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create index %q: %w", firstLine(q), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	for i, r := range q {
		if r == '\n' {
			return q[:i]
		}
	}
	return q
}

var tableQueries = []string{
	`CREATE SEQUENCE IF NOT EXISTS services_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS users_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS user_groups_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS allowed_operations_id_seq START 1`,

	`CREATE TABLE IF NOT EXISTS services (
		id BIGINT PRIMARY KEY DEFAULT nextval('services_id_seq'),
		title VARCHAR NOT NULL,
		type VARCHAR NOT NULL,
		version VARCHAR NOT NULL,
		base_url VARCHAR NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT false,
		is_secured BOOLEAN NOT NULL DEFAULT false,
		log_proxy_access BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
		username VARCHAR NOT NULL UNIQUE,
		password_hash VARCHAR NOT NULL DEFAULT '',
		is_superuser BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_groups (
		id BIGINT PRIMARY KEY DEFAULT nextval('user_groups_id_seq'),
		name VARCHAR NOT NULL UNIQUE,
		description VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		group_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS allowed_operations (
		id BIGINT PRIMARY KEY DEFAULT nextval('allowed_operations_id_seq'),
		service_id BIGINT NOT NULL,
		group_id BIGINT NOT NULL,
		operations VARCHAR NOT NULL,
		allowed_area VARCHAR,
		description VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS proxy_logs (
		id VARCHAR PRIMARY KEY,
		service_id BIGINT NOT NULL,
		username VARCHAR NOT NULL,
		operation VARCHAR NOT NULL,
		uri VARCHAR NOT NULL,
		status_code INTEGER NOT NULL,
		response_bytes BIGINT NOT NULL DEFAULT 0,
		megapixel DOUBLE NOT NULL DEFAULT 0,
		feature_count INTEGER NOT NULL DEFAULT 0,
		elapsed_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS http_request_logs (
		id VARCHAR PRIMARY KEY,
		proxy_log_id VARCHAR NOT NULL,
		method VARCHAR NOT NULL,
		url VARCHAR NOT NULL,
		headers VARCHAR NOT NULL DEFAULT '{}',
		body BLOB,
		body_path VARCHAR,
		requested_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS http_response_logs (
		id VARCHAR PRIMARY KEY,
		proxy_log_id VARCHAR NOT NULL,
		status_code INTEGER NOT NULL,
		headers VARCHAR NOT NULL DEFAULT '{}',
		content_type VARCHAR NOT NULL DEFAULT '',
		body BLOB,
		body_path VARCHAR,
		elapsed_ms BIGINT NOT NULL DEFAULT 0
	)`,
}

var indexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_allowed_operations_service ON allowed_operations(service_id)`,
	`CREATE INDEX IF NOT EXISTS idx_allowed_operations_group ON allowed_operations(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_proxy_logs_service_time ON proxy_logs(service_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_proxy_logs_username ON proxy_logs(username)`,
	`CREATE INDEX IF NOT EXISTS idx_http_request_logs_proxy_log ON http_request_logs(proxy_log_id)`,
	`CREATE INDEX IF NOT EXISTS idx_http_response_logs_proxy_log ON http_response_logs(proxy_log_id)`,
}
