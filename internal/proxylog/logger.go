// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package proxylog persists proxied request/response pairs of services
// with access logging enabled.
//
// Log calls never block the proxy: entries go through a buffered channel to
// a single writer goroutine that spills large bodies to attachment files,
// writes the three rows in one transaction and publishes a summary to live
// clients. When the buffer is full entries are dropped and counted.
//
// With a write-ahead log attached, every entry is written to it before
// queueing. Dropped entries and failed inserts stay in the log and are
// replayed at startup and every retry interval.
package proxylog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/database"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/wal"
	"github.com/mrmap-community/mrmap-proxy/internal/websocket"
)

// Store persists log entries.
type Store interface {
	InsertProxyLogEntry(ctx context.Context, e *models.ProxyLogEntry) error
	DeleteProxyLogsBefore(ctx context.Context, cutoff time.Time) (int64, []string, error)
}

// Publisher receives a summary of every persisted entry.
type Publisher interface {
	Broadcast(messageType string, data any)
}

const (
	writeTimeout    = 5 * time.Second
	cleanupInterval = time.Hour
)

// Logger is the asynchronous proxy log writer.
type Logger struct {
	cfg       config.ProxyLogConfig
	store     Store
	publisher Publisher
	entries   chan *models.ProxyLogEntry
	now       func() time.Time

	wal           *wal.WAL
	retryInterval time.Duration
}

// New creates a Logger. publisher may be nil.
func New(store Store, cfg config.ProxyLogConfig, publisher Publisher) *Logger {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1000
	}
	return &Logger{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		entries:   make(chan *models.ProxyLogEntry, cfg.BufferSize),
		now:       time.Now,
	}
}

// WithWAL attaches a write-ahead log. Pending entries are replayed when
// Serve starts and then every retryInterval.
func (l *Logger) WithWAL(w *wal.WAL, retryInterval time.Duration) *Logger {
	l.wal = w
	l.retryInterval = retryInterval
	return l
}

// Log queues an entry for persistence.
func (l *Logger) Log(e *models.ProxyLogEntry) {
	if err := l.wal.Write(e.Log.ID, e); err != nil {
		logging.Warn().Err(err).Str("proxy_log_id", e.Log.ID).Msg("Failed to write proxy log to WAL")
	}
	select {
	case l.entries <- e:
		metrics.ProxyLogQueueDepth.Set(float64(len(l.entries)))
	default:
		metrics.ProxyLogDropped.Inc()
		l.wal.Release(e.Log.ID)
		logging.Warn().Str("proxy_log_id", e.Log.ID).Msg("Proxy log buffer full, dropping entry")
	}
}

// Serve writes queued entries and runs retention cleanup until ctx is
// canceled. Entries still queued at shutdown are written before returning.
func (l *Logger) Serve(ctx context.Context) error {
	var cleanup <-chan time.Time
	if l.cfg.RetentionPeriod > 0 {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		cleanup = ticker.C
	}
	var retry <-chan time.Time
	if l.wal != nil {
		l.recover(ctx)
		if l.retryInterval > 0 {
			ticker := time.NewTicker(l.retryInterval)
			defer ticker.Stop()
			retry = ticker.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case e := <-l.entries:
			l.write(e)
		case <-cleanup:
			if _, err := l.Cleanup(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("Proxy log cleanup failed")
			}
		case <-retry:
			l.recover(ctx)
		}
	}
}

func (l *Logger) recover(ctx context.Context) {
	_, err := l.wal.Recover(ctx, func(ctx context.Context, we *wal.Entry) error {
		var e models.ProxyLogEntry
		if err := we.Unmarshal(&e); err != nil {
			return fmt.Errorf("decode proxy log: %w", err)
		}
		err := l.persist(&e)
		if errors.Is(err, database.ErrConflict) {
			// Stored before the previous confirm was lost.
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Proxy log WAL recovery failed")
	}
}

func (l *Logger) String() string { return "proxy-log-writer" }

func (l *Logger) drain() {
	for {
		select {
		case e := <-l.entries:
			l.write(e)
		default:
			metrics.ProxyLogQueueDepth.Set(0)
			return
		}
	}
}

func (l *Logger) write(e *models.ProxyLogEntry) {
	metrics.ProxyLogQueueDepth.Set(float64(len(l.entries)))

	if err := l.persist(e); err != nil {
		metrics.ProxyLogWriteErrors.Inc()
		logging.Error().Err(err).Str("proxy_log_id", e.Log.ID).Msg("Failed to save proxy log")
		l.wal.Release(e.Log.ID)
		return
	}
	if err := l.wal.Confirm(e.Log.ID); err != nil {
		logging.Warn().Err(err).Str("proxy_log_id", e.Log.ID).Msg("Failed to confirm proxy log in WAL")
	}
}

// persist stores e and announces it to live clients.
func (l *Logger) persist(e *models.ProxyLogEntry) error {
	if err := l.spill(e); err != nil {
		// The row is still written, without the oversized body.
		logging.Error().Err(err).Str("proxy_log_id", e.Log.ID).Msg("Failed to write proxy log attachment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.InsertProxyLogEntry(ctx, e); err != nil {
		RemoveAttachments(e.Request.BodyPath, e.Response.BodyPath)
		return err
	}

	if l.publisher != nil {
		l.publisher.Broadcast(websocket.MessageTypeProxyActivity, e.Log)
	}
	return nil
}

// spill moves bodies above the inline limit to attachment files.
func (l *Logger) spill(e *models.ProxyLogEntry) error {
	var errs []error
	if int64(len(e.Request.Body)) > l.cfg.InlineLimit {
		path, err := l.writeAttachment(e.Log.ID+"-request", e.Request.Body)
		if err != nil {
			errs = append(errs, err)
		} else {
			e.Request.BodyPath = path
		}
		e.Request.Body = nil
	}
	if int64(len(e.Response.Body)) > l.cfg.InlineLimit {
		path, err := l.writeAttachment(e.Log.ID+"-response", e.Response.Body)
		if err != nil {
			errs = append(errs, err)
		} else {
			e.Response.BodyPath = path
		}
		e.Response.Body = nil
	}
	return errors.Join(errs...)
}

func (l *Logger) writeAttachment(name string, body []byte) (string, error) {
	if l.cfg.AttachmentsDir == "" {
		return "", errors.New("no attachments directory configured")
	}
	day := l.now().UTC().Format("2006/01/02")
	dir := filepath.Join(l.cfg.AttachmentsDir, day)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create attachment dir: %w", err)
	}
	path := filepath.Join(dir, name+".bin")
	if err := os.WriteFile(path, body, 0o640); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return path, nil
}

// Cleanup deletes entries older than the retention period together with
// their attachment files.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionPeriod <= 0 {
		return 0, nil
	}
	cutoff := l.now().Add(-l.cfg.RetentionPeriod)
	n, files, err := l.store.DeleteProxyLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete proxy logs: %w", err)
	}
	RemoveAttachments(files...)
	if n > 0 {
		logging.Info().Int64("count", n).Time("cutoff", cutoff).Msg("Cleaned up old proxy logs")
	}
	return n, nil
}

// RemoveAttachments deletes attachment files, ignoring ones already gone.
func RemoveAttachments(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", p).Msg("Failed to remove proxy log attachment")
		}
	}
}
