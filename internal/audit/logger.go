// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mrmap-community/mrmap-proxy/internal/auth"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
)

const (
	writeTimeout    = 5 * time.Second
	cleanupInterval = 24 * time.Hour
)

// Logger queues events and writes them in the background. A nil *Logger
// discards everything, so callers need not check whether auditing is on.
type Logger struct {
	cfg    config.AuditConfig
	store  Store
	events chan *Event
	now    func() time.Time
}

// NewLogger creates a logger. It returns nil when auditing is disabled.
func NewLogger(store Store, cfg config.AuditConfig) *Logger {
	if !cfg.Enabled || store == nil {
		return nil
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1000
	}
	return &Logger{
		cfg:    cfg,
		store:  store,
		events: make(chan *Event, cfg.BufferSize),
		now:    time.Now,
	}
}

// Log queues e, filling in its ID and timestamp. A full buffer drops the
// event.
func (l *Logger) Log(e *Event) {
	if l == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	select {
	case l.events <- e:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("type", string(e.Type)).Msg("Audit buffer full, event dropped")
	}
}

// Record queues an event for an action taken through r. The actor,
// request id and client address come from the request.
func (l *Logger) Record(r *http.Request, typ EventType, outcome Outcome, targetType, targetID, description string, metadata map[string]any) {
	if l == nil {
		return
	}
	e := &Event{
		Type:        typ,
		Outcome:     outcome,
		Actor:       models.AnonymousUsername,
		TargetType:  targetType,
		TargetID:    targetID,
		Description: description,
		RequestID:   logging.RequestIDFromContext(r.Context()),
		SourceIP:    clientIP(r),
	}
	if subject := auth.GetAuthSubject(r.Context()); subject != nil {
		e.Actor = subject.Username
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			e.Metadata = raw
		}
	}
	l.Log(e)
}

// Query reads events from the store.
func (l *Logger) Query(ctx context.Context, f QueryFilter) ([]Event, int, error) {
	if l == nil {
		return []Event{}, 0, nil
	}
	return l.store.Query(ctx, f)
}

// Serve writes queued events and applies retention until ctx is canceled.
// Events still queued at shutdown are written before returning.
func (l *Logger) Serve(ctx context.Context) error {
	var cleanup <-chan time.Time
	if l.cfg.Retention > 0 {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		cleanup = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-l.events:
					l.write(e)
				default:
					return ctx.Err()
				}
			}
		case e := <-l.events:
			l.write(e)
		case <-cleanup:
			if _, err := l.Cleanup(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("Audit cleanup failed")
			}
		}
	}
}

func (l *Logger) String() string { return "audit-writer" }

func (l *Logger) write(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.Save(ctx, e); err != nil {
		logging.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to save audit event")
		return
	}
	metrics.AuditEventsTotal.WithLabelValues(string(e.Type)).Inc()
}

// Cleanup deletes events older than the retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.Retention <= 0 {
		return 0, nil
	}
	n, err := l.store.DeleteBefore(ctx, l.now().Add(-l.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info().Int64("count", n).Msg("Cleaned up old audit events")
	}
	return n, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
