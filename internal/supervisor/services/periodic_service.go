// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package services

import (
	"context"
	"time"

	"github.com/mrmap-community/mrmap-proxy/internal/logging"
)

// PeriodicService calls a function on a fixed interval. A failing run is
// logged and retried at the next tick; it does not restart the service.
type PeriodicService struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// NewPeriodicService creates a service that calls run once at start and
// then every interval.
func NewPeriodicService(name string, interval time.Duration, run func(ctx context.Context) error) *PeriodicService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PeriodicService{name: name, interval: interval, run: run}
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.run(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Str("service", p.name).Msg("Periodic task failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *PeriodicService) String() string { return p.name }
