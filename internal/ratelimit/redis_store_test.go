// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func newMiniredisStore(t *testing.T, clock clockwork.Clock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "gk:", clock), mr
}

func TestRedisStoreFixedWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(testStart)
	store, mr := newMiniredisStore(t, clock)
	l := New(store, nil, Config{Clock: clock})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.CheckAndIncrement(ctx, "ip:1.2.3.4", TierAuth)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
	}

	d, err := l.CheckAndIncrement(ctx, "ip:1.2.3.4", TierAuth)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("6th request allowed")
	}
	if d.RetryAfterSeconds() != 900 {
		t.Errorf("RetryAfterSeconds = %d, want 900", d.RetryAfterSeconds())
	}

	key := "gk:ratelimit:auth:ip:1.2.3.4"
	if !mr.Exists(key) {
		t.Fatalf("key %s missing", key)
	}
	if ttl := mr.TTL(key); ttl != 15*time.Minute {
		t.Errorf("TTL = %s, want 15m", ttl)
	}

	mr.FastForward(15 * time.Minute)
	clock.Advance(15 * time.Minute)

	d, err = l.CheckAndIncrement(ctx, "ip:1.2.3.4", TierAuth)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Remaining != 4 {
		t.Errorf("after expiry: %+v, want allowed with 4 remaining", d)
	}
}

func TestRedisStoreUnavailableFailsOpen(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(testStart)
	store, mr := newMiniredisStore(t, clock)
	l := New(store, nil, Config{Clock: clock})
	mr.Close()

	d, err := l.CheckAndIncrement(context.Background(), "ip:1.2.3.4", TierAuth)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !d.Allowed {
		t.Error("unavailable redis must allow the request")
	}
}

func TestRedisStoreRejectsInvalidWindow(t *testing.T) {
	t.Parallel()

	store, _ := newMiniredisStore(t, nil)
	if _, _, err := store.Increment(context.Background(), "k", 0); err == nil {
		t.Error("expected error for zero window")
	}
}
