// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package api

import (
	"net/http"

	"github.com/mrmap-community/mrmap-proxy/internal/audit"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,max=150,excludesall=:/ "`
	Description string `json:"description" validate:"max=1000"`
}

// ListGroups returns all groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.db.ListGroups(r.Context())
	if err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	respondData(w, http.StatusOK, groups)
}

// CreateGroup adds a group.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g := &models.Group{Name: req.Name, Description: req.Description}
	if err := h.db.CreateGroup(r.Context(), g); err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	h.audit.Record(r, audit.EventGroupCreated, audit.OutcomeSuccess, "group", itoa(g.ID), "Group created",
		map[string]any{"name": g.Name})
	respondData(w, http.StatusCreated, g)
}

// GetGroup returns a group with its members.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.db.GetGroup(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	members, err := h.db.Members(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"group": g, "members": members})
}

// DeleteGroup removes a group, its memberships and its grants.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.db.DeleteGroup(r.Context(), id); err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	h.audit.Record(r, audit.EventGroupDeleted, audit.OutcomeSuccess, "group", itoa(id), "Group deleted", nil)
	if !h.syncPolicy(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers returns the users in a group.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.db.GetGroup(r.Context(), id); err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	members, err := h.db.Members(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "group", err)
		return
	}
	respondData(w, http.StatusOK, members)
}

// AddMember puts a user into a group.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.db.AddMember(r.Context(), groupID, userID); err != nil {
		respondStoreError(w, r, "group member", err)
		return
	}
	h.audit.Record(r, audit.EventMemberAdded, audit.OutcomeSuccess, "group", itoa(groupID), "Member added",
		map[string]any{"user_id": userID})
	if !h.syncPolicy(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember takes a user out of a group.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.db.RemoveMember(r.Context(), groupID, userID); err != nil {
		respondStoreError(w, r, "group member", err)
		return
	}
	h.audit.Record(r, audit.EventMemberRemoved, audit.OutcomeSuccess, "group", itoa(groupID), "Member removed",
		map[string]any{"user_id": userID})
	if !h.syncPolicy(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
