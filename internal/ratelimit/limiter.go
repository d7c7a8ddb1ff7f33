// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

var (
	// ErrUnknownTier is returned for a tier without a policy.
	ErrUnknownTier = errors.New("unknown rate limit tier")

	// ErrEmptyIdentifier is returned when no identifier is supplied.
	ErrEmptyIdentifier = errors.New("rate limit identifier is required")
)

// Decision is the outcome of one CheckAndIncrement call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time left in the current window. It is only set
	// when the request was rejected.
	RetryAfter time.Duration
	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Config configures a Limiter.
type Config struct {
	// Policies maps tiers to their limits. Missing tiers fall back to
	// DefaultPolicies.
	Policies map[Tier]Policy

	// Disabled allows every request without touching the store.
	Disabled bool

	// ViolationLogRate and ViolationLogBurst bound how many violation
	// events are emitted per identifier and tier.
	ViolationLogRate  rate.Limit
	ViolationLogBurst int

	// Clock is used for window arithmetic. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns the built-in tiers with one violation event per
// identifier per minute.
func DefaultConfig() Config {
	return Config{
		Policies:          DefaultPolicies(),
		ViolationLogRate:  rate.Every(time.Minute),
		ViolationLogBurst: 1,
		Clock:             clockwork.NewRealClock(),
	}
}

// Limiter enforces tier policies against a Store.
type Limiter struct {
	store      Store
	policies   map[Tier]Policy
	disabled   bool
	clock      clockwork.Clock
	audit      *audit.Logger
	violations *violationThrottle
}

// New creates a Limiter. auditLogger may be nil.
//
//nolint:gocritic // Config is copied once at construction
func New(store Store, auditLogger *audit.Logger, cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.ViolationLogRate == 0 {
		cfg.ViolationLogRate = def.ViolationLogRate
	}
	if cfg.ViolationLogBurst <= 0 {
		cfg.ViolationLogBurst = def.ViolationLogBurst
	}
	if store == nil {
		store = NewMemoryStore(cfg.Clock)
	}

	policies := DefaultPolicies()
	for tier, p := range cfg.Policies {
		if p.Valid() {
			policies[tier] = p
		}
	}

	return &Limiter{
		store:      store,
		policies:   policies,
		disabled:   cfg.Disabled,
		clock:      cfg.Clock,
		audit:      auditLogger,
		violations: newViolationThrottle(cfg.ViolationLogRate, cfg.ViolationLogBurst),
	}
}

// Policy returns the policy of tier.
func (l *Limiter) Policy(tier Tier) (Policy, bool) {
	p, ok := l.policies[tier]
	return p, ok
}

// CheckAndIncrement counts one request by identifier against tier. Store
// failures are logged and the request is allowed.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identifier string, tier Tier) (Decision, error) {
	if identifier == "" {
		return Decision{}, ErrEmptyIdentifier
	}
	policy, ok := l.policies[tier]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if l.disabled {
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit}, nil
	}

	count, windowStart, err := l.store.Increment(ctx, string(tier)+":"+identifier, policy.Window)
	if err != nil {
		metrics.RecordRateLimitDecision(string(tier), "error")
		logging.Ctx(ctx).Error().Err(err).
			Str("tier", string(tier)).
			Str("identifier", logging.RedactIdentifier(identifier)).
			Msg("Rate limit store unavailable, allowing request")
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit}, nil
	}

	now := l.clock.Now()
	resetAt := windowStart.Add(policy.Window)
	d := Decision{
		Allowed:   count <= policy.Limit,
		Limit:     policy.Limit,
		Remaining: max(policy.Limit-count, 0),
		ResetAt:   resetAt,
	}

	if d.Allowed {
		metrics.RecordRateLimitDecision(string(tier), "allowed")
		return d, nil
	}

	d.RetryAfter = resetAt.Sub(now)
	if d.RetryAfter <= 0 {
		// Clock skew between store and limiter; never advertise zero.
		d.RetryAfter = time.Second
	}
	metrics.RecordRateLimitDecision(string(tier), "rejected")
	return d, nil
}

// Sweep evicts elapsed windows from stores that need it and forgets idle
// violation throttles.
func (l *Limiter) Sweep(ctx context.Context) {
	if s, ok := l.store.(Sweepable); ok {
		if n := s.Sweep(ctx); n > 0 {
			logging.Debug().Int("removed", n).Msg("Swept expired rate limit buckets")
		}
	}
	l.violations.prune(l.clock.Now(), violationIdleTTL)
}

// shouldReportViolation reports whether a violation by identifier on tier
// should produce an audit event.
func (l *Limiter) shouldReportViolation(identifier string, tier Tier) bool {
	return l.violations.allow(string(tier)+":"+identifier, l.clock.Now())
}

const violationIdleTTL = 15 * time.Minute

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// violationThrottle keeps one token bucket per key.
type violationThrottle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*throttleEntry
}

func newViolationThrottle(limit rate.Limit, burst int) *violationThrottle {
	return &violationThrottle{
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*throttleEntry),
	}
}

func (v *violationThrottle) allow(key string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (v *violationThrottle) prune(now time.Time, idle time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for key, e := range v.entries {
		if now.Sub(e.lastSeen) >= idle {
			delete(v.entries, key)
		}
	}
}

func (v *violationThrottle) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}
