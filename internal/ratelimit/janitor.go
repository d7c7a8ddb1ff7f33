// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Janitor periodically calls Limiter.Sweep. It implements suture.Service.
type Janitor struct {
	Limiter  *Limiter
	Interval time.Duration
	Clock    clockwork.Clock
}

// Serve runs until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	clock := j.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := j.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			j.Limiter.Sweep(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (j *Janitor) String() string {
	return "ratelimit-janitor"
}
