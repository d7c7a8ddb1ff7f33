// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package audit

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/gatekeeper/internal/logging"
)

// Retention periodically deletes events older than MaxAge. It implements
// suture.Service.
type Retention struct {
	Store    Store
	MaxAge   time.Duration
	Interval time.Duration
	Clock    clockwork.Clock
}

// Serve runs until ctx is cancelled.
func (r *Retention) Serve(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			r.runOnce(ctx, clock.Now())
		}
	}
}

func (r *Retention) runOnce(ctx context.Context, now time.Time) {
	if r.Store == nil || r.MaxAge <= 0 {
		return
	}
	cutoff := now.Add(-r.MaxAge)
	n, err := r.Store.DeleteBefore(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit retention cleanup failed")
		return
	}
	if n > 0 {
		logging.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Deleted expired audit events")
	}
}

// String names the service in supervisor logs.
func (r *Retention) String() string {
	return "audit-retention"
}
