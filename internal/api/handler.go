// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/authz"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/jobs"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/middleware"
)

// CapabilitiesCache drops cached capabilities documents.
type CapabilitiesCache interface {
	Invalidate(id int64) error
}

// Deps are the collaborators of the API. JWT, Capabilities, Performance,
// Audit and Proxy may be nil.
type Deps struct {
	Config       *config.Config
	DB           *database.DB
	Enforcer     *authz.Enforcer
	Auth         *auth.Middleware
	JWT          *auth.JWTManager
	Capabilities CapabilitiesCache
	Jobs         *jobs.Runner
	Registrar    *jobs.Registrar
	Performance  *middleware.PerformanceMonitor
	Audit        *audit.Logger

	// WebSocket serves /api/v1/ws.
	WebSocket http.Handler

	// Proxy serves /ows/{serviceID}.
	Proxy http.Handler
}

// Handler implements the admin endpoints.
type Handler struct {
	cfg       *config.Config
	db        *database.DB
	enforcer  *authz.Enforcer
	jwt       *auth.JWTManager
	caps      CapabilitiesCache
	jobs      *jobs.Runner
	registrar *jobs.Registrar
	perf      *middleware.PerformanceMonitor
	audit     *audit.Logger
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:       d.Config,
		db:        d.DB,
		enforcer:  d.Enforcer,
		jwt:       d.JWT,
		caps:      d.Capabilities,
		jobs:      d.Jobs,
		registrar: d.Registrar,
		perf:      d.Performance,
		audit:     d.Audit,
		startTime: time.Now(),
	}
}

// syncPolicy reloads the grants into the enforcer after a change to groups,
// memberships or allowed operations. It writes a 500 and returns false when
// the reload fails; the stored change is kept.
func (h *Handler) syncPolicy(w http.ResponseWriter, r *http.Request) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	defer cancel()
	if err := h.enforcer.Sync(ctx, h.db); err != nil {
		respondError(w, r, http.StatusInternalServerError, "POLICY_SYNC_ERROR",
			"The change was saved but the access policy could not be reloaded", err)
		return false
	}
	logging.Ctx(r.Context()).Debug().Msg("Access policy reloaded")
	return true
}
