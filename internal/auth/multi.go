// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
)

// MultiAuthenticator tries authenticators in priority order. Missing
// credentials move on to the next one; invalid or expired credentials stop
// the chain.
type MultiAuthenticator struct {
	authenticators []Authenticator
}

// NewMultiAuthenticator sorts authenticators by priority.
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	m := &MultiAuthenticator{authenticators: append([]Authenticator(nil), authenticators...)}
	sort.SliceStable(m.authenticators, func(i, j int) bool {
		return m.authenticators[i].Priority() < m.authenticators[j].Priority()
	})
	return m
}

// Authenticate implements Authenticator.
func (m *MultiAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	for _, a := range m.authenticators {
		s, err := a.Authenticate(ctx, r)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNoCredentials) {
			return nil, err
		}
	}
	return nil, ErrNoCredentials
}

// Name returns the authenticator name.
func (m *MultiAuthenticator) Name() string { return string(AuthModeMulti) }

// Priority returns 0.
func (m *MultiAuthenticator) Priority() int { return 0 }

// noneAuthenticator never finds credentials.
type noneAuthenticator struct{}

func (noneAuthenticator) Authenticate(context.Context, *http.Request) (*AuthSubject, error) {
	return nil, ErrNoCredentials
}
func (noneAuthenticator) Name() string  { return string(AuthModeNone) }
func (noneAuthenticator) Priority() int { return 100 }

// NewAuthenticator builds the authenticator for mode. jwt may be nil in
// basic and none modes.
func NewAuthenticator(mode AuthMode, store UserStore, jwt *JWTManager) Authenticator {
	switch mode {
	case AuthModeBasic:
		return NewBasicAuthenticator(store)
	case AuthModeJWT:
		return NewJWTAuthenticator(jwt)
	case AuthModeMulti:
		if jwt == nil {
			return NewBasicAuthenticator(store)
		}
		return NewMultiAuthenticator(NewJWTAuthenticator(jwt), NewBasicAuthenticator(store))
	}
	return noneAuthenticator{}
}
