// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package lockout

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/gatekeeper/internal/logging"
)

// DefaultSweepInterval is how often the sweeper runs.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically evicts expired lockout entries. It implements
// suture.Service; cancelling the context passed to Serve stops it.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
	clock    clockwork.Clock
}

// NewSweeper creates a sweeper for tracker. A zero interval selects
// DefaultSweepInterval and a nil clock the tracker's clock.
func NewSweeper(tracker *Tracker, interval time.Duration, clock clockwork.Clock) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = tracker.cfg.Clock
	}
	return &Sweeper{tracker: tracker, interval: interval, clock: clock}
}

// Serve runs until ctx is cancelled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.tracker.Sweep(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Lockout sweep failed")
		return
	}
	if n > 0 {
		logging.Info().Int("count", n).Msg("Swept expired lockout entries")
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string {
	return "lockout-sweeper"
}
