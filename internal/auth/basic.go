// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

// UserStore looks up accounts.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// dummyHash keeps the timing of unknown-user logins close to known ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mrmap-proxy-dummy"), bcrypt.MinCost)

// VerifyPassword checks username/password against the store and returns
// the user. Accounts without a password hash cannot log in.
func VerifyPassword(ctx context.Context, store UserStore, username, password string) (*models.User, error) {
	u, err := store.GetUserByUsername(ctx, username)
	if err != nil || u.PasswordHash == "" || username == models.AnonymousUsername {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("username", username).Msg("login for unknown user")
		}
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// BasicAuthenticator validates HTTP Basic credentials.
type BasicAuthenticator struct {
	store UserStore
}

// NewBasicAuthenticator creates a Basic authenticator backed by store.
func NewBasicAuthenticator(store UserStore) *BasicAuthenticator {
	return &BasicAuthenticator{store: store}
}

// Authenticate implements Authenticator.
func (a *BasicAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrNoCredentials
	}
	u, err := VerifyPassword(ctx, a.store, username, password)
	if err != nil {
		return nil, err
	}
	return &AuthSubject{Username: u.Username, Roles: RolesFor(u), AuthMethod: AuthModeBasic}, nil
}

// Name returns the authenticator name.
func (a *BasicAuthenticator) Name() string { return string(AuthModeBasic) }

// Priority returns 25, after JWT.
func (a *BasicAuthenticator) Priority() int { return 25 }

// WWWAuthenticate is sent with 401 responses.
const WWWAuthenticate = `Basic realm="mrmap-proxy", charset="UTF-8"`
