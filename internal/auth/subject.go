// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package auth authenticates API and OWS callers with HTTP Basic
// credentials or JWT bearer tokens. Callers without credentials are
// treated as the anonymous user on the OWS endpoint.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

// AuthMode represents the authentication strategy.
type AuthMode string

const (
	// AuthModeNone disables authentication; every caller is anonymous.
	AuthModeNone AuthMode = "none"

	// AuthModeBasic uses HTTP Basic Authentication
	AuthModeBasic AuthMode = "basic"

	// AuthModeJWT uses JWT Bearer tokens
	AuthModeJWT AuthMode = "jwt"

	// AuthModeMulti tries JWT, then Basic.
	AuthModeMulti AuthMode = "multi"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none", "":
		return AuthModeNone, nil
	case "basic":
		return AuthModeBasic, nil
	case "jwt":
		return AuthModeJWT, nil
	case "multi":
		return AuthModeMulti, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// Roles understood by the authorization policy.
const (
	RoleAdmin         = "admin"
	RoleAuthenticated = "authenticated"
)

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Authenticator defines the interface for authentication providers.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error)
	Name() string

	// Priority orders authenticators in multi mode, lower first.
	Priority() int
}

// AuthSubject is an authenticated caller.
type AuthSubject struct {
	Username   string   `json:"username"`
	Roles      []string `json:"roles,omitempty"`
	AuthMethod AuthMode `json:"auth_method"`
	ExpiresAt  int64    `json:"expires_at,omitempty"`
}

// Anonymous is the subject of callers without credentials.
func Anonymous() *AuthSubject {
	return &AuthSubject{Username: models.AnonymousUsername, AuthMethod: AuthModeNone}
}

// IsAnonymous reports whether s is the anonymous caller.
func (s *AuthSubject) IsAnonymous() bool {
	return s == nil || s.Username == models.AnonymousUsername
}

// HasRole checks if the subject has a specific role.
func (s *AuthSubject) HasRole(role string) bool {
	if s == nil || role == "" {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CasbinSubject is the policy subject for s.
func (s *AuthSubject) CasbinSubject() string {
	if s == nil {
		return "user:" + models.AnonymousUsername
	}
	return "user:" + s.Username
}

// RolesFor returns the roles a local account carries.
func RolesFor(u *models.User) []string {
	roles := []string{RoleAuthenticated}
	if u.IsSuperuser {
		roles = append(roles, RoleAdmin)
	}
	return roles
}

type contextKey string

const subjectKey contextKey = "auth_subject"

// ContextWithSubject stores s in ctx.
func ContextWithSubject(ctx context.Context, s *AuthSubject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// GetAuthSubject returns the subject stored in ctx, or nil.
func GetAuthSubject(ctx context.Context) *AuthSubject {
	s, _ := ctx.Value(subjectKey).(*AuthSubject)
	return s
}
