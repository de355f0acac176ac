// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package cache

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache[string] {
	t.Helper()
	c := New[string](ttl)
	t.Cleanup(c.Close)
	return c
}

func TestCacheGetSet(t *testing.T) {
	c := newTestCache(t, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss")
	}
	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("Get = %q, %v", v, ok)
	}

	s := c.GetStats()
	if s.Hits != 1 || s.Misses != 1 || s.Keys != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(t, time.Minute)
	c.SetWithTTL("short", "x", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("entry should have expired")
	}
}

func TestCacheDeleteFunc(t *testing.T) {
	c := newTestCache(t, time.Minute)
	c.Set("svc:1:1.3.0", "a")
	c.Set("svc:1:1.1.1", "b")
	c.Set("svc:2:1.3.0", "c")

	if n := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "svc:1:") }); n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if _, ok := c.Get("svc:2:1.3.0"); !ok {
		t.Error("unrelated key removed")
	}
	c.Clear()
	if c.GetStats().Keys != 0 {
		t.Error("Clear left keys behind")
	}
}

func TestBadgerStore(t *testing.T) {
	db, err := OpenBadger("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewBadgerStore(db, "caps:")

	if _, err := s.Get("1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set("1", []byte("<doc/>"), time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("1")
	if err != nil || string(got) != "<doc/>" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if err := s.Delete("1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	_ = s.Set("2:a", []byte("x"), 0)
	_ = s.Set("2:b", []byte("y"), 0)
	if err := s.DeletePrefix("2:"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("2:a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("prefix delete left key: %v", err)
	}
}
