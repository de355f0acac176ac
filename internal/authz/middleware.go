// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package authz

import (
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
)

// Middleware guards admin API routes.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Authorize enforces a fixed object and action.
func (m *Middleware) Authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.check(w, r, object, action) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// AuthorizeRequest derives the action from the HTTP method and uses the
// request path as the object.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.check(w, r, r.URL.Path, methodToAction(r.Method)) {
			next.ServeHTTP(w, r)
		}
	})
}

func (m *Middleware) check(w http.ResponseWriter, r *http.Request, object, action string) bool {
	subject := auth.GetAuthSubject(r.Context())
	if subject == nil || subject.IsAnonymous() {
		w.Header().Set("WWW-Authenticate", auth.WWWAuthenticate)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}

	allowed, err := m.enforcer.EnforceWithRoles(subject.CasbinSubject(), subject.Roles, object, action)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		logging.Ctx(r.Context()).Debug().
			Str("subject", subject.Username).
			Str("object", object).
			Str("action", action).
			Msg("Access denied")
		http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
		return false
	}
	return true
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
