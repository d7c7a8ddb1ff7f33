// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package lockout

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// ErrEmptyIdentifier is returned when no identifier is supplied.
var ErrEmptyIdentifier = errors.New("lockout identifier is required")

// Config holds configuration for the lockout tracker.
type Config struct {
	// MaxFailedAttempts is the number of consecutive failures that locks
	// an identifier.
	MaxFailedAttempts int

	// Duration is how long a lock lasts.
	Duration time.Duration

	// StaleAfter is how long an unlocked entry survives without new
	// failures before the sweeper removes it. Zero selects Duration.
	StaleAfter time.Duration

	// Clock drives all lock arithmetic. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns 5 attempts and a 30 minute lock.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts: 5,
		Duration:          30 * time.Minute,
		Clock:             clockwork.NewRealClock(),
	}
}

// Status is the lock state of one identifier.
type Status struct {
	Identifier  string    `json:"identifier"`
	Locked      bool      `json:"locked"`
	Attempts    int       `json:"attempts"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
	// Remaining is the time left on the lock; zero when unlocked.
	Remaining time.Duration `json:"-"`
	// RemainingMinutes is Remaining rounded up to whole minutes.
	RemainingMinutes int `json:"remaining_minutes"`
}

const lockStripes = 64

// Tracker implements the lockout state machine on top of a Store.
type Tracker struct {
	store Store
	cfg   Config
	audit *audit.Logger
	locks [lockStripes]sync.Mutex
}

// NewTracker creates a Tracker. auditLogger may be nil.
//
//nolint:gocritic // Config is copied once at construction
func NewTracker(store Store, auditLogger *audit.Logger, cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cfg.Duration
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{store: store, cfg: cfg, audit: auditLogger}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

func (t *Tracker) lockFor(identifier string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return &t.locks[h.Sum32()%lockStripes]
}

func (t *Tracker) status(e *Entry, now time.Time) Status {
	if e == nil {
		return Status{}
	}
	s := Status{Identifier: e.Identifier, Attempts: e.FailedAttempts}
	if e.LockedAt(now) {
		s.Locked = true
		s.LockedUntil = e.LockedUntil
		s.Remaining = e.LockedUntil.Sub(now)
		s.RemainingMinutes = int(math.Ceil(s.Remaining.Minutes()))
	}
	return s
}

// RecordFailedLogin counts a failed authentication. The failure that
// brings the count to MaxFailedAttempts locks the identifier for Duration.
// Failures while locked do not extend the lock.
func (t *Tracker) RecordFailedLogin(ctx context.Context, identifier string) (Status, error) {
	if identifier == "" {
		return Status{}, ErrEmptyIdentifier
	}

	mu := t.lockFor(identifier)
	mu.Lock()
	defer mu.Unlock()

	now := t.cfg.Clock.Now()

	var (
		entry     *Entry
		triggered bool
	)
	err := t.store.Update(ctx, identifier, func(current *Entry) *Entry {
		triggered = false
		switch {
		case current == nil:
			current = &Entry{Identifier: identifier}
		case current.LockedAt(now):
			entry = current
			return nil
		case current.HasLock():
			// The previous lock ran out; this failure starts a new cycle.
			current = &Entry{Identifier: identifier}
		}

		current.FailedAttempts++
		current.LastFailedAttempt = now
		if current.FailedAttempts >= t.cfg.MaxFailedAttempts {
			current.LockedUntil = now.Add(t.cfg.Duration)
			triggered = true
		}
		entry = current
		return current
	})
	if err != nil {
		return Status{}, fmt.Errorf("record failed login: %w", err)
	}

	if triggered {
		metrics.LockoutsTriggered.Inc()
		logging.Ctx(ctx).Warn().
			Str("identifier", logging.RedactIdentifier(identifier)).
			Int("attempts", entry.FailedAttempts).
			Time("locked_until", entry.LockedUntil).
			Msg("Account locked")
		t.audit.LogSecurityEvent(audit.EventLockoutTriggered, audit.SeverityHigh, audit.Fields{
			Actor:  identifier,
			Action: "lock",
			Details: map[string]any{
				"attempts":         entry.FailedAttempts,
				"locked_until":     entry.LockedUntil.UTC().Format(time.RFC3339),
				"duration_minutes": int(t.cfg.Duration.Minutes()),
			},
		})
	}

	return t.status(entry, now), nil
}

// IsAccountLocked reports the lock state of identifier. An entry whose
// lock has run out is removed, so repeated calls after expiry keep
// reporting an unlocked identifier with no attempts.
func (t *Tracker) IsAccountLocked(ctx context.Context, identifier string) (Status, error) {
	if identifier == "" {
		return Status{}, ErrEmptyIdentifier
	}

	mu := t.lockFor(identifier)
	mu.Lock()
	defer mu.Unlock()

	now := t.cfg.Clock.Now()

	entry, err := t.store.Get(ctx, identifier)
	if errors.Is(err, ErrEntryNotFound) {
		return Status{Identifier: identifier}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("get lockout entry: %w", err)
	}

	if entry.HasLock() && !entry.LockedAt(now) {
		if err := t.store.Delete(ctx, identifier); err != nil {
			return Status{}, fmt.Errorf("evict expired lockout entry: %w", err)
		}
		logging.Ctx(ctx).Debug().
			Str("identifier", logging.RedactIdentifier(identifier)).
			Msg("Lockout expired")
		return Status{Identifier: identifier}, nil
	}

	return t.status(entry, now), nil
}

// ClearFailedLogins removes all lockout state for identifier regardless of
// whether it is locked. Called after a successful authentication and by
// admins.
func (t *Tracker) ClearFailedLogins(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}

	mu := t.lockFor(identifier)
	mu.Lock()
	defer mu.Unlock()

	now := t.cfg.Clock.Now()

	entry, err := t.store.Get(ctx, identifier)
	if errors.Is(err, ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get lockout entry: %w", err)
	}

	if err := t.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("clear lockout entry: %w", err)
	}

	if entry.LockedAt(now) {
		logging.Ctx(ctx).Info().
			Str("identifier", logging.RedactIdentifier(identifier)).
			Msg("Lockout cleared")
		t.audit.LogSecurityEvent(audit.EventLockoutCleared, audit.SeverityMedium, audit.Fields{
			Success: true,
			Actor:   identifier,
			Action:  "unlock",
			Details: map[string]any{"attempts": entry.FailedAttempts},
		})
	}
	return nil
}

// ListLocked returns the status of every currently locked identifier.
func (t *Tracker) ListLocked(ctx context.Context) ([]Status, error) {
	now := t.cfg.Clock.Now()
	entries, err := t.store.ListLocked(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list locked: %w", err)
	}
	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, t.status(e, now))
	}
	return out, nil
}

// Sweep removes expired and stale entries and returns how many were
// removed.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	n, err := t.store.DeleteExpired(ctx, t.cfg.Clock.Now(), t.cfg.StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("sweep lockout entries: %w", err)
	}
	if n > 0 {
		metrics.LockoutsSwept.Add(float64(n))
	}
	return n, nil
}
