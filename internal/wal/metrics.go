// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_writes_total",
		Help: "Entries written to the write-ahead log",
	})

	confirmsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_confirms_total",
		Help: "Entries confirmed and removed from the write-ahead log",
	})

	recoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_recovered_total",
		Help: "Entries replayed by recovery",
	})

	discardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_discarded_total",
		Help: "Entries dropped after too many failed replays",
	})

	pendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wal_pending_entries",
		Help: "Unconfirmed entries seen by the last scan",
	})
)

func recordWrite()    { writesTotal.Inc() }
func recordConfirm()  { confirmsTotal.Inc() }
func recordRecovery() { recoveredTotal.Inc() }
func recordDiscard()  { discardedTotal.Inc() }
