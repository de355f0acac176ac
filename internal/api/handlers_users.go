// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

type createUserRequest struct {
	Username    string `json:"username" validate:"required,max=150,excludesall=:/ ,ne=anonymous"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	IsSuperuser bool   `json:"is_superuser"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// ListUsers pages through local accounts.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}
	users, total, err := h.db.ListUsers(r.Context(), p.Limit, p.Offset)
	if err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	respondList(w, users, total, p)
}

// CreateUser adds an account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "HASH_ERROR", "Password could not be stored", err)
		return
	}
	u := &models.User{Username: req.Username, PasswordHash: hash, IsSuperuser: req.IsSuperuser}
	if err := h.db.CreateUser(r.Context(), u); err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	h.audit.Record(r, audit.EventUserCreated, audit.OutcomeSuccess, "user", itoa(u.ID), "User created",
		map[string]any{"username": u.Username, "superuser": u.IsSuperuser})
	respondData(w, http.StatusCreated, u)
}

// GetUser returns an account with its groups.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.db.GetUser(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	groups, err := h.db.UserGroups(r.Context(), u.Username)
	if err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"user": u, "groups": groups})
}

// SetPassword replaces an account's password.
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "HASH_ERROR", "Password could not be stored", err)
		return
	}
	if err := h.db.SetPassword(r.Context(), id, hash); err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	h.audit.Record(r, audit.EventPasswordChanged, audit.OutcomeSuccess, "user", itoa(id), "Password changed", nil)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser removes an account and its memberships. The caller cannot
// delete their own account.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.db.GetUser(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	if s := auth.GetAuthSubject(r.Context()); s != nil && s.Username == u.Username {
		respondError(w, r, http.StatusConflict, "CONFLICT", "You cannot delete your own account", nil)
		return
	}
	if err := h.db.DeleteUser(r.Context(), id); err != nil {
		respondStoreError(w, r, "user", err)
		return
	}
	h.audit.Record(r, audit.EventUserDeleted, audit.OutcomeSuccess, "user", itoa(id), "User deleted",
		map[string]any{"username": u.Username})
	if !h.syncPolicy(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
