// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package main

import (
	"context"
	"testing"

	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

func TestBootstrapAccounts(t *testing.T) {
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	sec := &config.SecurityConfig{AdminUsername: "admin", AdminPassword: "first-password"}

	if err := bootstrapAccounts(ctx, db, sec); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetUserByUsername(ctx, models.AnonymousUsername); err != nil {
		t.Errorf("anonymous user missing: %v", err)
	}
	admin, err := db.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if !admin.IsSuperuser {
		t.Error("admin is not a superuser")
	}

	// A second start with a different password keeps the stored one.
	sec.AdminPassword = "second-password"
	if err := bootstrapAccounts(ctx, db, sec); err != nil {
		t.Fatal(err)
	}
	if _, err := auth.VerifyPassword(ctx, db, "admin", "first-password"); err != nil {
		t.Errorf("stored password replaced: %v", err)
	}
}

func TestBootstrapWithoutAdmin(t *testing.T) {
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := bootstrapAccounts(context.Background(), db, &config.SecurityConfig{}); err != nil {
		t.Fatal(err)
	}
	_, total, err := db.ListUsers(context.Background(), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("users = %d, want only anonymous", total)
	}
}
