// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package auth

import (
	"errors"
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
)

// Middleware attaches the caller's AuthSubject to the request context.
type Middleware struct {
	authenticator Authenticator
}

// NewMiddleware wraps authenticator.
func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// Optional lets requests without credentials through as anonymous.
// Presented but invalid credentials are rejected with 401.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.authenticator.Authenticate(r.Context(), r)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoCredentials):
			s = Anonymous()
		default:
			m.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), s)))
	})
}

// Required rejects requests without valid credentials.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.authenticator.Authenticate(r.Context(), r)
		if err != nil {
			m.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), s)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
	w.Header().Set("WWW-Authenticate", WWWAuthenticate)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
