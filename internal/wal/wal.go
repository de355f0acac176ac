// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package wal is a write-ahead log on BadgerDB.
//
// Payloads are written before they are handed to a slower consumer and
// confirmed (deleted) once the consumer has persisted them. Anything left
// over after a crash or a failed write is replayed by Recover:
//
//	w := wal.New(kv, cfg)
//	w.Write(id, entry)        // before queueing
//	store.Insert(entry)
//	w.Confirm(id)             // after the insert
//
//	w.Recover(ctx, replay)    // at startup and periodically
//
// Entries expire through badger's native TTL, so nothing accumulates when
// replay keeps failing.
package wal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
)

const keyPrefix = "wal/pending/"

var (
	ErrEmptyEntryID = errors.New("wal: entry id is empty")
	ErrNilPayload   = errors.New("wal: payload is nil")
)

// Config controls retention and retries.
type Config struct {
	// EntryTTL bounds how long an unconfirmed entry is kept.
	EntryTTL time.Duration

	// MaxAttempts is the number of failed replays after which an entry is
	// discarded. Zero means unlimited.
	MaxAttempts int

	// MinAge keeps Recover away from entries that were written moments ago
	// and are most likely still on their way to the consumer.
	MinAge time.Duration
}

// Entry is one logged payload.
type Entry struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// Unmarshal decodes the payload into v.
func (e *Entry) Unmarshal(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// WAL is the badger-backed log. A nil *WAL accepts and drops every call.
type WAL struct {
	db  *badger.DB
	cfg Config
	now func() time.Time

	// inFlight holds entries the caller is currently processing; Recover
	// skips them.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a WAL in db. Keys live under their own prefix so db can be
// shared with other stores.
func New(db *badger.DB, cfg Config) *WAL {
	return &WAL{db: db, cfg: cfg, now: time.Now, inFlight: make(map[string]struct{})}
}

// Write persists payload under id and marks it in flight.
func (w *WAL) Write(id string, payload any) error {
	if w == nil {
		return nil
	}
	if id == "" {
		return ErrEmptyEntryID
	}
	if payload == nil {
		return ErrNilPayload
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := w.put(&Entry{ID: id, Payload: raw, CreatedAt: w.now().UTC()}); err != nil {
		return err
	}
	w.claim(id)
	recordWrite()
	return nil
}

// Confirm deletes an entry once its payload is safely stored.
func (w *WAL) Confirm(id string) error {
	if w == nil {
		return nil
	}
	if id == "" {
		return ErrEmptyEntryID
	}
	defer w.release(id)
	err := w.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("confirm wal entry: %w", err)
	}
	recordConfirm()
	return nil
}

// Release gives an entry back to Recover without confirming it, for
// example after a failed write or when it was never queued.
func (w *WAL) Release(id string) {
	if w == nil {
		return
	}
	w.release(id)
}

// Pending returns unconfirmed entries, oldest first.
func (w *WAL) Pending() ([]*Entry, error) {
	if w == nil {
		return nil, nil
	}
	var out []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				log := logging.WithComponent("wal")
				log.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable entry")
				continue
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read wal: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	pendingEntries.Set(float64(len(out)))
	return out, nil
}

// ReplayFunc persists one recovered entry.
type ReplayFunc func(ctx context.Context, e *Entry) error

// RecoveryResult summarizes one Recover pass.
type RecoveryResult struct {
	Pending   int
	Recovered int
	Failed    int
	Discarded int
	Skipped   int
}

// Recover replays pending entries that are old enough and not in flight.
// Replayed entries are confirmed; failed ones have their attempt counter
// raised and are discarded after MaxAttempts.
func (w *WAL) Recover(ctx context.Context, replay ReplayFunc) (RecoveryResult, error) {
	var res RecoveryResult
	if w == nil {
		return res, nil
	}
	entries, err := w.Pending()
	if err != nil {
		return res, err
	}
	res.Pending = len(entries)
	cutoff := w.now().Add(-w.cfg.MinAge)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.CreatedAt.After(cutoff) || !w.tryClaim(e.ID) {
			res.Skipped++
			continue
		}
		w.recoverOne(ctx, e, replay, &res)
	}

	if res.Recovered+res.Failed+res.Discarded > 0 {
		log := logging.WithComponent("wal")
		log.Info().
			Int("recovered", res.Recovered).
			Int("failed", res.Failed).
			Int("discarded", res.Discarded).
			Int("skipped", res.Skipped).
			Msg("Recovery pass finished")
	}
	return res, nil
}

func (w *WAL) recoverOne(ctx context.Context, e *Entry, replay ReplayFunc, res *RecoveryResult) {
	log := logging.WithComponent("wal")
	if err := replay(ctx, e); err != nil {
		e.Attempts++
		e.LastError = err.Error()
		if w.cfg.MaxAttempts > 0 && e.Attempts >= w.cfg.MaxAttempts {
			log.Error().Err(err).Str("entry_id", e.ID).Int("attempts", e.Attempts).
				Msg("Discarding entry after repeated failures")
			if err := w.Confirm(e.ID); err != nil {
				log.Warn().Err(err).Str("entry_id", e.ID).Msg("Failed to discard entry")
			}
			recordDiscard()
			res.Discarded++
			return
		}
		if err := w.put(e); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("Failed to update entry")
		}
		w.release(e.ID)
		res.Failed++
		return
	}
	if err := w.Confirm(e.ID); err != nil {
		log.Warn().Err(err).Str("entry_id", e.ID).Msg("Failed to confirm recovered entry")
	}
	recordRecovery()
	res.Recovered++
}

// put writes e, keeping the TTL relative to its creation time.
func (w *WAL) put(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal wal entry: %w", err)
	}
	err = w.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry([]byte(keyPrefix+e.ID), data)
		if w.cfg.EntryTTL > 0 {
			ttl := w.cfg.EntryTTL - w.now().Sub(e.CreatedAt)
			if ttl <= 0 {
				return txn.Delete([]byte(keyPrefix + e.ID))
			}
			be = be.WithTTL(ttl)
		}
		return txn.SetEntry(be)
	})
	if err != nil {
		return fmt.Errorf("write wal entry: %w", err)
	}
	return nil
}

func (w *WAL) claim(id string) {
	w.mu.Lock()
	w.inFlight[id] = struct{}{}
	w.mu.Unlock()
}

func (w *WAL) tryClaim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inFlight[id]; ok {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *WAL) release(id string) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()
}
