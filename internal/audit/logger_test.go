// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

type memStore struct {
	mu     sync.Mutex
	events []*Event
	cutoff time.Time
}

func (s *memStore) Save(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memStore) Query(context.Context, QueryFilter) ([]Event, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (s *memStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	return 3, nil
}

func (s *memStore) saved() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func TestNewLoggerDisabled(t *testing.T) {
	if l := NewLogger(&memStore{}, config.AuditConfig{Enabled: false}); l != nil {
		t.Fatal("disabled config should return nil")
	}

	// A nil logger discards without panicking.
	var l *Logger
	l.Log(&Event{Type: EventUserCreated})
	l.Record(httptest.NewRequest(http.MethodGet, "/", nil), EventUserCreated, OutcomeSuccess, "user", "1", "", nil)
	events, total, err := l.Query(context.Background(), QueryFilter{})
	if err != nil || total != 0 || len(events) != 0 {
		t.Errorf("Query = %v, %d, %v", events, total, err)
	}
}

func TestRecordFillsRequestFields(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, config.AuditConfig{Enabled: true, BufferSize: 8})

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/users/4", nil)
	r.RemoteAddr = "192.0.2.10:4711"
	ctx := auth.ContextWithSubject(r.Context(), &auth.AuthSubject{Username: "root"})
	ctx = logging.ContextWithRequestID(ctx, "req-42")
	l.Record(r.WithContext(ctx), EventUserDeleted, OutcomeSuccess, "user", "4", "User deleted",
		map[string]any{"username": "bob"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Serve(ctx)

	saved := store.saved()
	if len(saved) != 1 {
		t.Fatalf("saved %d events, want 1", len(saved))
	}
	e := saved[0]
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("id/timestamp not set: %+v", e)
	}
	if e.Actor != "root" || e.RequestID != "req-42" || e.SourceIP != "192.0.2.10" {
		t.Errorf("event = %+v", e)
	}
	if string(e.Metadata) != `{"username":"bob"}` {
		t.Errorf("metadata = %s", e.Metadata)
	}
}

func TestRecordAnonymous(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, config.AuditConfig{Enabled: true, BufferSize: 8})
	l.Record(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil), EventLoginFailed, OutcomeFailure, "user", "", "Login failed", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Serve(ctx)

	if saved := store.saved(); len(saved) != 1 || saved[0].Actor != models.AnonymousUsername {
		t.Errorf("saved = %+v", saved)
	}
}

func TestLogDropsWhenFull(t *testing.T) {
	l := NewLogger(&memStore{}, config.AuditConfig{Enabled: true, BufferSize: 1})
	before := testutil.ToFloat64(metrics.AuditEventsDropped)

	l.Log(&Event{Type: EventGroupCreated})
	l.Log(&Event{Type: EventGroupDeleted})

	if got := testutil.ToFloat64(metrics.AuditEventsDropped) - before; got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestCleanupUsesRetention(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, config.AuditConfig{Enabled: true, BufferSize: 1, Retention: 24 * time.Hour})
	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	n, err := l.Cleanup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("deleted = %d", n)
	}
	if want := now.Add(-24 * time.Hour); !store.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoff, want)
	}

	l.cfg.Retention = 0
	if n, _ := l.Cleanup(context.Background()); n != 0 {
		t.Errorf("cleanup without retention deleted %d", n)
	}
}
