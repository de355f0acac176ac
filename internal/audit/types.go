// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package audit records who changed the registry and the access policy.
//
// Events are queued by the API handlers and written asynchronously to the
// audit_events table. Proxied OWS traffic is not audited here; see the
// proxylog package for that.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType identifies what happened.
type EventType string

const (
	EventLoginSucceeded EventType = "auth.login_succeeded"
	EventLoginFailed    EventType = "auth.login_failed"

	EventServiceRegistrationQueued EventType = "service.registration_queued"
	EventServiceUpdated            EventType = "service.updated"
	EventServiceDeleted            EventType = "service.deleted"

	EventGroupCreated  EventType = "group.created"
	EventGroupDeleted  EventType = "group.deleted"
	EventMemberAdded   EventType = "group.member_added"
	EventMemberRemoved EventType = "group.member_removed"

	EventUserCreated     EventType = "user.created"
	EventUserDeleted     EventType = "user.deleted"
	EventPasswordChanged EventType = "user.password_changed"

	EventGrantCreated EventType = "grant.created"
	EventGrantDeleted EventType = "grant.deleted"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record.
type Event struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        EventType       `json:"type"`
	Outcome     Outcome         `json:"outcome"`
	Actor       string          `json:"actor"`
	TargetType  string          `json:"target_type,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	SourceIP    string          `json:"source_ip,omitempty"`
}

// QueryFilter selects events. Zero fields do not filter.
type QueryFilter struct {
	Type       EventType
	Actor      string
	TargetType string
	TargetID   string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// Store persists events.
type Store interface {
	Save(ctx context.Context, e *Event) error
	Query(ctx context.Context, f QueryFilter) ([]Event, int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
