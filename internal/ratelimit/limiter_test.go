// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, store Store, mutate func(*Config)) (*Limiter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	cfg := DefaultConfig()
	cfg.Clock = clock
	if mutate != nil {
		mutate(&cfg)
	}
	if store == nil {
		store = NewMemoryStore(clock)
	}
	return New(store, nil, cfg), clock
}

func TestAuthTierScenario(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(t, nil, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.CheckAndIncrement(ctx, "ip:1.2.3.4", TierAuth)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected, want allowed", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, d.Remaining, 5-i)
		}
		clock.Advance(10 * time.Second)
	}

	d, err := l.CheckAndIncrement(ctx, "ip:1.2.3.4", TierAuth)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("6th request allowed, want rejected")
	}
	if d.RetryAfterSeconds() <= 0 {
		t.Errorf("RetryAfterSeconds = %d, want > 0", d.RetryAfterSeconds())
	}
	if want := 15*time.Minute - 50*time.Second; d.RetryAfter != want {
		t.Errorf("RetryAfter = %s, want %s", d.RetryAfter, want)
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}

	// Another identifier is unaffected.
	d, _ = l.CheckAndIncrement(ctx, "ip:5.6.7.8", TierAuth)
	if !d.Allowed {
		t.Error("independent identifier rejected")
	}
}

func TestWindowResetStartsFreshCount(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(t, nil, func(c *Config) {
		c.Policies = map[Tier]Policy{TierWrite: {Limit: 2, Window: time.Minute}}
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = l.CheckAndIncrement(ctx, "user:bob", TierWrite)
	}
	d, _ := l.CheckAndIncrement(ctx, "user:bob", TierWrite)
	if d.Allowed {
		t.Fatal("expected rejection inside window")
	}

	clock.Advance(time.Minute)

	d, err := l.CheckAndIncrement(ctx, "user:bob", TierWrite)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("expected allow after window elapsed")
	}
	if d.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1 (counter reset to 1)", d.Remaining)
	}
	if !d.ResetAt.Equal(testStart.Add(2 * time.Minute)) {
		t.Errorf("ResetAt = %s", d.ResetAt)
	}
}

func TestConcurrentIncrementsDoNotLoseUpdates(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, nil, nil)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndIncrement(ctx, "ip:9.9.9.9", TierWrite)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 30 {
		t.Errorf("allowed = %d, want exactly 30", got)
	}
}

func TestCheckAndIncrementErrors(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, nil, nil)
	ctx := context.Background()

	if _, err := l.CheckAndIncrement(ctx, "", TierAPI); !errors.Is(err, ErrEmptyIdentifier) {
		t.Errorf("empty identifier err = %v", err)
	}
	if _, err := l.CheckAndIncrement(ctx, "ip:1.1.1.1", Tier("bulk")); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("unknown tier err = %v", err)
	}
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func TestStoreErrorFailsOpen(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, brokenStore{}, nil)
	for i := 0; i < 10; i++ {
		d, err := l.CheckAndIncrement(context.Background(), "ip:1.2.3.4", TierAuth)
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
		if !d.Allowed {
			t.Fatal("store failure must allow the request")
		}
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(nil)
	l, _ := newTestLimiter(t, store, func(c *Config) { c.Disabled = true })
	for i := 0; i < 20; i++ {
		d, _ := l.CheckAndIncrement(context.Background(), "ip:1.2.3.4", TierAuth)
		if !d.Allowed {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if store.Len() != 0 {
		t.Errorf("disabled limiter touched the store")
	}
}

func TestPolicyOverrides(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, nil, func(c *Config) {
		c.Policies = map[Tier]Policy{
			TierAI:  {Limit: 7, Window: time.Minute},
			TierAPI: {Limit: 0, Window: time.Minute},
		}
	})

	if p, _ := l.Policy(TierAI); p.Limit != 7 {
		t.Errorf("AI limit = %d, want 7", p.Limit)
	}
	if p, _ := l.Policy(TierAPI); p.Limit != 100 {
		t.Errorf("invalid override replaced default: API limit = %d", p.Limit)
	}
	if p, _ := l.Policy(TierAuth); p.Limit != 5 || p.Window != 15*time.Minute {
		t.Errorf("auth policy = %+v", p)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(testStart)
	s := NewMemoryStore(clock)
	ctx := context.Background()

	_, _, _ = s.Increment(ctx, "short", time.Minute)
	_, _, _ = s.Increment(ctx, "long", time.Hour)

	clock.Advance(2 * time.Minute)
	if n := s.Sweep(ctx); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestViolationThrottle(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(t, nil, nil)

	if !l.shouldReportViolation("ip:1.2.3.4", TierAuth) {
		t.Fatal("first violation should be reported")
	}
	if l.shouldReportViolation("ip:1.2.3.4", TierAuth) {
		t.Error("second violation within a minute should be suppressed")
	}
	if !l.shouldReportViolation("ip:5.6.7.8", TierAuth) {
		t.Error("other identifiers are throttled independently")
	}

	clock.Advance(time.Minute)
	if !l.shouldReportViolation("ip:1.2.3.4", TierAuth) {
		t.Error("violation after refill should be reported")
	}

	clock.Advance(violationIdleTTL)
	l.Sweep(context.Background())
	if n := l.violations.len(); n != 0 {
		t.Errorf("idle throttles not pruned: %d left", n)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
	}
	for _, tt := range tests {
		if got := (Decision{RetryAfter: tt.d}).RetryAfterSeconds(); got != tt.want {
			t.Errorf("RetryAfterSeconds(%s) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Tier{"auth": TierAuth, "LOGIN": TierAuth, "api": TierAPI, "ai": TierAI, " write ": TierWrite} {
		got, err := ParseTier(in)
		if err != nil || got != want {
			t.Errorf("ParseTier(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTier("bulk"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("ParseTier(bulk) err = %v", err)
	}
}

func TestJanitorSweepsOnTick(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(testStart)
	store := NewMemoryStore(clock)
	l := New(store, nil, Config{Clock: clock})
	_, _ = l.CheckAndIncrement(context.Background(), "ip:1.2.3.4", TierWrite)

	j := &Janitor{Limiter: l, Interval: 5 * time.Minute, Clock: clock}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Serve(ctx) }()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d after sweep, want 0", store.Len())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
}
