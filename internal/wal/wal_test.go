// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package wal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type payload struct {
	Name string `json:"name"`
}

func newTestWAL(t *testing.T, cfg Config) *WAL {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, cfg)
}

func TestWriteConfirm(t *testing.T) {
	w := newTestWAL(t, Config{})

	if err := w.Write("a", payload{Name: "first"}); err != nil {
		t.Fatal(err)
	}
	pending, err := w.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Fatalf("pending = %+v", pending)
	}
	var p payload
	if err := pending[0].Unmarshal(&p); err != nil || p.Name != "first" {
		t.Errorf("payload = %+v, %v", p, err)
	}

	if err := w.Confirm("a"); err != nil {
		t.Fatal(err)
	}
	if pending, _ := w.Pending(); len(pending) != 0 {
		t.Errorf("pending after confirm = %d", len(pending))
	}
}

func TestWriteValidation(t *testing.T) {
	w := newTestWAL(t, Config{})
	if err := w.Write("", payload{}); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("empty id: %v", err)
	}
	if err := w.Write("x", nil); !errors.Is(err, ErrNilPayload) {
		t.Errorf("nil payload: %v", err)
	}
	if err := w.Confirm(""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("confirm empty id: %v", err)
	}
}

func TestNilWAL(t *testing.T) {
	var w *WAL
	if err := w.Write("a", payload{}); err != nil {
		t.Error(err)
	}
	if err := w.Confirm("a"); err != nil {
		t.Error(err)
	}
	w.Release("a")
	if res, err := w.Recover(context.Background(), nil); err != nil || res.Pending != 0 {
		t.Errorf("Recover = %+v, %v", res, err)
	}
}

func TestRecoverSkipsInFlightEntries(t *testing.T) {
	w := newTestWAL(t, Config{})
	for _, id := range []string{"queued", "dropped"} {
		if err := w.Write(id, payload{Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	// "dropped" never reached the consumer.
	w.Release("dropped")

	var replayed []string
	res, err := w.Recover(context.Background(), func(_ context.Context, e *Entry) error {
		replayed = append(replayed, e.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(replayed) != 1 || replayed[0] != "dropped" {
		t.Errorf("replayed = %v", replayed)
	}
	if res.Recovered != 1 || res.Skipped != 1 || res.Pending != 2 {
		t.Errorf("result = %+v", res)
	}

	pending, _ := w.Pending()
	if len(pending) != 1 || pending[0].ID != "queued" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestRecoverHonorsMinAge(t *testing.T) {
	w := newTestWAL(t, Config{MinAge: time.Minute})
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write("young", payload{}); err != nil {
		t.Fatal(err)
	}
	w.Release("young")

	calls := 0
	replay := func(context.Context, *Entry) error { calls++; return nil }
	if _, err := w.Recover(context.Background(), replay); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("young entry replayed")
	}

	now = now.Add(2 * time.Minute)
	if _, err := w.Recover(context.Background(), replay); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRecoverDiscardsAfterMaxAttempts(t *testing.T) {
	w := newTestWAL(t, Config{MaxAttempts: 2})
	if err := w.Write("bad", payload{}); err != nil {
		t.Fatal(err)
	}
	w.Release("bad")

	fail := func(context.Context, *Entry) error { return errors.New("store down") }

	res, err := w.Recover(context.Background(), fail)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("first pass = %+v", res)
	}
	pending, _ := w.Pending()
	if len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError != "store down" {
		t.Fatalf("pending = %+v", pending)
	}

	res, err = w.Recover(context.Background(), fail)
	if err != nil {
		t.Fatal(err)
	}
	if res.Discarded != 1 {
		t.Errorf("second pass = %+v", res)
	}
	if pending, _ := w.Pending(); len(pending) != 0 {
		t.Errorf("entry not discarded: %+v", pending)
	}
}

func TestPendingOrder(t *testing.T) {
	w := newTestWAL(t, Config{})
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	// Written in reverse id order so key order and creation order differ.
	for i, id := range []string{"c", "b", "a"} {
		ts := base.Add(time.Duration(i) * time.Second)
		w.now = func() time.Time { return ts }
		if err := w.Write(id, payload{}); err != nil {
			t.Fatal(err)
		}
	}
	pending, err := w.Pending()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[2] != "a" {
		t.Errorf("order = %v", ids)
	}
}
