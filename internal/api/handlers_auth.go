// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"net/http"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=1024"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
}

// Login exchanges a username and password for a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Token login is disabled", nil)
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := auth.VerifyPassword(r.Context(), h.db, req.Username, req.Password)
	if err != nil {
		logging.Ctx(r.Context()).Info().Str("username", sanitizeLogValue(req.Username)).Msg("Login failed")
		h.audit.Record(r, audit.EventLoginFailed, audit.OutcomeFailure, "user", "", "Login failed",
			map[string]any{"username": sanitizeLogValue(req.Username)})
		respondError(w, r, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Invalid username or password", nil)
		return
	}

	roles := auth.RolesFor(u)
	token, expires, err := h.jwt.GenerateToken(u.Username, roles)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "TOKEN_ERROR", "Token could not be issued", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("username", u.Username).Msg("Login succeeded")
	h.audit.Record(r, audit.EventLoginSucceeded, audit.OutcomeSuccess, "user", itoa(u.ID), "Login succeeded",
		map[string]any{"username": u.Username})
	respondData(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, Username: u.Username, Roles: roles})
}

// Me returns the authenticated subject.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, auth.GetAuthSubject(r.Context()))
}
