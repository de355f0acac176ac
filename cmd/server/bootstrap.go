// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

// accountStore is the part of the database the bootstrap needs.
type accountStore interface {
	EnsureUser(ctx context.Context, username string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// bootstrapAccounts creates the anonymous account that unauthenticated
// grants attach to, and the configured superuser on first start. An
// existing admin account is left untouched.
func bootstrapAccounts(ctx context.Context, store accountStore, sec *config.SecurityConfig) error {
	if _, err := store.EnsureUser(ctx, models.AnonymousUsername); err != nil {
		return fmt.Errorf("anonymous user: %w", err)
	}
	if sec.AdminUsername == "" || sec.AdminPassword == "" {
		return nil
	}

	_, err := store.GetUserByUsername(ctx, sec.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	hash, err := auth.HashPassword(sec.AdminPassword)
	if err != nil {
		return err
	}
	u := &models.User{Username: sec.AdminUsername, PasswordHash: hash, IsSuperuser: true}
	if err := store.CreateUser(ctx, u); err != nil && !errors.Is(err, database.ErrConflict) {
		return fmt.Errorf("create admin: %w", err)
	}
	logging.Info().Str("username", sec.AdminUsername).Msg("Created admin account")
	return nil
}
