// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type fakeServer struct {
	listenErr error
	shutdown  chan struct{}
	stopped   atomic.Bool
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, shutdown: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.shutdown
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.stopped.Store(true)
	close(f.shutdown)
	return nil
}

// =============================================================================
// HTTPServerService
// =============================================================================

func TestHTTPServerServiceShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer(nil)
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if !srv.stopped.Load() {
		t.Error("Shutdown not called")
	}
	if svc.String() != "http-server" {
		t.Errorf("String = %q", svc.String())
	}
}

func TestHTTPServerServiceReportsListenError(t *testing.T) {
	svc := NewHTTPServerService(newFakeServer(errors.New("address in use")), 0)
	err := svc.Serve(context.Background())
	if err == nil || err.Error() != "http server failed: address in use" {
		t.Errorf("Serve = %v", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v", svc.shutdownTimeout)
	}
}

// =============================================================================
// PeriodicService
// =============================================================================

func TestPeriodicServiceRunsUntilCanceled(t *testing.T) {
	var runs atomic.Int32
	svc := NewPeriodicService("sweeper", 5*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d", runs.Load())
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if svc.String() != "sweeper" {
		t.Errorf("String = %q", svc.String())
	}
}
