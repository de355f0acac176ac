// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package proxylog

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/wal"
	"github.com/mrmap-community/mrmap-proxy/internal/websocket"
)

type memStore struct {
	mu      sync.Mutex
	entries []*models.ProxyLogEntry
	failing bool

	deleteFiles []string
	cutoff      time.Time
}

func (s *memStore) InsertProxyLogEntry(_ context.Context, e *models.ProxyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("insert failed")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memStore) DeleteProxyLogsBefore(_ context.Context, cutoff time.Time) (int64, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	return int64(len(s.deleteFiles)), s.deleteFiles, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []string
}

func (p *recordingPublisher) Broadcast(messageType string, _ any) {
	p.mu.Lock()
	p.msgs = append(p.msgs, messageType)
	p.mu.Unlock()
}

func testEntry(id string, reqBody, respBody []byte) *models.ProxyLogEntry {
	return &models.ProxyLogEntry{
		Log:      models.ProxyLog{ID: id, ServiceID: 1, Operation: "GetMap"},
		Request:  models.HTTPRequestLog{ID: id + "-rq", Body: reqBody},
		Response: models.HTTPResponseLog{ID: id + "-rs", Body: respBody},
	}
}

func testConfig(t *testing.T) config.ProxyLogConfig {
	t.Helper()
	return config.ProxyLogConfig{
		InlineLimit:     8,
		AttachmentsDir:  t.TempDir(),
		BufferSize:      4,
		RetentionPeriod: 24 * time.Hour,
	}
}

// =============================================================================
// Writer
// =============================================================================

func TestServeDrainsOnShutdown(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	l := New(store, testConfig(t), pub)

	for i := 0; i < 3; i++ {
		l.Log(testEntry(string(rune('a'+i)), nil, []byte("ok")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve = %v", err)
	}
	if store.count() != 3 {
		t.Errorf("persisted %d entries, want 3", store.count())
	}
	if len(pub.msgs) != 3 || pub.msgs[0] != websocket.MessageTypeProxyActivity {
		t.Errorf("published %v", pub.msgs)
	}
}

func TestLogDropsWhenFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferSize = 1
	l := New(&memStore{}, cfg, nil)

	before := testutil.ToFloat64(metrics.ProxyLogDropped)
	l.Log(testEntry("a", nil, nil))
	l.Log(testEntry("b", nil, nil))
	if got := testutil.ToFloat64(metrics.ProxyLogDropped) - before; got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestSpillLargeBodies(t *testing.T) {
	store := &memStore{}
	cfg := testConfig(t)
	l := New(store, cfg, nil)

	big := bytes.Repeat([]byte("x"), 100)
	l.write(testEntry("big", []byte("small"), big))

	if store.count() != 1 {
		t.Fatalf("persisted %d entries", store.count())
	}
	e := store.entries[0]
	if string(e.Request.Body) != "small" || e.Request.BodyPath != "" {
		t.Errorf("request body should stay inline: %q %q", e.Request.Body, e.Request.BodyPath)
	}
	if e.Response.Body != nil || e.Response.BodyPath == "" {
		t.Fatalf("response body should be spilled: path=%q", e.Response.BodyPath)
	}
	if !strings.HasPrefix(e.Response.BodyPath, cfg.AttachmentsDir) {
		t.Errorf("attachment outside dir: %s", e.Response.BodyPath)
	}
	data, err := os.ReadFile(e.Response.BodyPath)
	if err != nil || !bytes.Equal(data, big) {
		t.Errorf("attachment content mismatch: %v", err)
	}
}

func TestFailedInsertRemovesAttachments(t *testing.T) {
	store := &memStore{failing: true}
	cfg := testConfig(t)
	l := New(store, cfg, nil)

	before := testutil.ToFloat64(metrics.ProxyLogWriteErrors)
	e := testEntry("lost", nil, bytes.Repeat([]byte("y"), 50))
	l.write(e)

	if got := testutil.ToFloat64(metrics.ProxyLogWriteErrors) - before; got != 1 {
		t.Errorf("write errors = %v", got)
	}
	if _, err := os.Stat(e.Response.BodyPath); !os.IsNotExist(err) {
		t.Errorf("attachment left behind: %v", err)
	}
}

func newTestWAL(t *testing.T) *wal.WAL {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return wal.New(db, wal.Config{MaxAttempts: 3})
}

func TestWALReplaysDroppedEntries(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferSize = 1
	store := &memStore{}
	w := newTestWAL(t)
	l := New(store, cfg, nil).WithWAL(w, time.Minute)

	l.Log(testEntry("queued", nil, []byte("ok")))
	l.Log(testEntry("dropped", []byte("q"), []byte("ok")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Serve(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if store.count() != 2 {
		t.Fatalf("persisted %d entries, want 2", store.count())
	}
	ids := map[string]bool{}
	for _, e := range store.entries {
		ids[e.Log.ID] = true
	}
	if !ids["queued"] || !ids["dropped"] {
		t.Errorf("persisted %v", ids)
	}
	if pending, _ := w.Pending(); len(pending) != 0 {
		t.Errorf("WAL still holds %d entries", len(pending))
	}
}

func TestWALKeepsFailedInserts(t *testing.T) {
	store := &memStore{failing: true}
	w := newTestWAL(t)
	l := New(store, testConfig(t), nil).WithWAL(w, time.Minute)

	l.Log(testEntry("retry-me", nil, []byte("ok")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Serve(ctx)

	pending, err := w.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "retry-me" {
		t.Fatalf("pending = %+v", pending)
	}

	store.mu.Lock()
	store.failing = false
	store.mu.Unlock()
	l.recover(context.Background())

	if store.count() != 1 {
		t.Errorf("persisted %d entries after recovery", store.count())
	}
	if pending, _ := w.Pending(); len(pending) != 0 {
		t.Errorf("WAL still holds %d entries", len(pending))
	}
}

func TestCleanup(t *testing.T) {
	cfg := testConfig(t)
	stale := filepath.Join(cfg.AttachmentsDir, "old.bin")
	if err := os.WriteFile(stale, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := &memStore{deleteFiles: []string{stale, filepath.Join(cfg.AttachmentsDir, "missing.bin")}}
	l := New(store, cfg, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	n, err := l.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}
	if !store.cutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("cutoff = %v", store.cutoff)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale attachment not removed")
	}
}

func TestCleanupDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetentionPeriod = 0
	store := &memStore{deleteFiles: []string{"x"}}
	n, err := New(store, cfg, nil).Cleanup(context.Background())
	if err != nil || n != 0 || !store.cutoff.IsZero() {
		t.Errorf("cleanup ran with retention disabled: n=%d err=%v", n, err)
	}
}

// =============================================================================
// Recorder
// =============================================================================

func TestRecorderAndEntry(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := NewRecorder(rr)
	rec.Header().Set("Content-Type", "image/png")
	rec.WriteHeader(http.StatusCreated)
	_, _ = rec.Write([]byte("abc"))
	_, _ = rec.Write([]byte("def"))
	rec.Flush()

	if rr.Body.String() != "abcdef" || !rr.Flushed {
		t.Errorf("passthrough body = %q flushed=%v", rr.Body.String(), rr.Flushed)
	}

	req := httptest.NewRequest(http.MethodGet, "/ows/3?REQUEST=GetMap", nil)
	req.Header.Set("Authorization", "Basic secret")
	x := &Exchange{
		ServiceID: 3,
		Username:  "alice",
		Operation: "GetMap",
		Request:   req,
		Started:   time.Now(),
		Megapixel: 0.25,
	}
	e := x.Entry(rec)

	if e.Log.StatusCode != http.StatusCreated || e.Response.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", e.Log.StatusCode)
	}
	if e.Log.ResponseBytes != 6 || string(e.Response.Body) != "abcdef" {
		t.Errorf("body = %q (%d bytes)", e.Response.Body, e.Log.ResponseBytes)
	}
	if e.Response.ContentType != "image/png" {
		t.Errorf("content type = %q", e.Response.ContentType)
	}
	if e.Request.ProxyLogID != e.Log.ID || e.Response.ProxyLogID != e.Log.ID {
		t.Error("child rows not linked to the log row")
	}
	if got := e.Request.Headers["Authorization"]; len(got) != 1 || got[0] != "[redacted]" {
		t.Errorf("authorization header not redacted: %v", got)
	}
	if e.Log.URI != "/ows/3?REQUEST=GetMap" {
		t.Errorf("uri = %q", e.Log.URI)
	}
}

func TestRecorderImplicitStatus(t *testing.T) {
	rec := NewRecorder(httptest.NewRecorder())
	if rec.Status() != http.StatusOK {
		t.Errorf("status = %d", rec.Status())
	}
	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.Status() != http.StatusOK {
		t.Errorf("late WriteHeader changed status to %d", rec.Status())
	}
}
