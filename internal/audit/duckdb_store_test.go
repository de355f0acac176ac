// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
)

func newTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewDuckDBStore(db.Conn())
	if err := s.CreateTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDuckDBStoreSaveAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []*Event{
		{ID: "1", Timestamp: base, Type: EventGroupCreated, Outcome: OutcomeSuccess, Actor: "root",
			TargetType: "group", TargetID: "7", Description: "Group created", Metadata: []byte(`{"name":"editors"}`)},
		{ID: "2", Timestamp: base.Add(time.Minute), Type: EventMemberAdded, Outcome: OutcomeSuccess, Actor: "root",
			TargetType: "group", TargetID: "7", Description: "Member added", RequestID: "req-1", SourceIP: "10.0.0.1"},
		{ID: "3", Timestamp: base.Add(2 * time.Minute), Type: EventLoginFailed, Outcome: OutcomeFailure, Actor: "anonymous",
			Description: "Login failed"},
	}
	for _, e := range events {
		if err := s.Save(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	since := base.Add(30 * time.Second)
	tests := []struct {
		name    string
		filter  QueryFilter
		wantIDs []string
	}{
		{"all newest first", QueryFilter{}, []string{"3", "2", "1"}},
		{"by type", QueryFilter{Type: EventLoginFailed}, []string{"3"}},
		{"by actor", QueryFilter{Actor: "root"}, []string{"2", "1"}},
		{"by target", QueryFilter{TargetType: "group", TargetID: "7"}, []string{"2", "1"}},
		{"since", QueryFilter{Since: &since}, []string{"3", "2"}},
		{"paged", QueryFilter{Limit: 1, Offset: 1}, []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.Query(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("event %d = %s, want %s", i, got[i].ID, id)
				}
			}
			if tt.filter.Limit == 0 && total != len(tt.wantIDs) {
				t.Errorf("total = %d", total)
			}
		})
	}

	got, _, err := s.Query(ctx, QueryFilter{Type: EventMemberAdded})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].RequestID != "req-1" || got[0].SourceIP != "10.0.0.1" {
		t.Errorf("event = %+v", got[0])
	}
	got, _, err = s.Query(ctx, QueryFilter{Type: EventGroupCreated})
	if err != nil {
		t.Fatal(err)
	}
	if string(got[0].Metadata) != `{"name":"editors"}` {
		t.Errorf("metadata = %s", got[0].Metadata)
	}
}

func TestDuckDBStoreDeleteBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, ts := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour)} {
		e := &Event{ID: string(rune('a' + i)), Timestamp: ts, Type: EventUserCreated, Outcome: OutcomeSuccess, Actor: "root"}
		if err := s.Save(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	_, total, err := s.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("remaining = %d, want 1", total)
	}
}
