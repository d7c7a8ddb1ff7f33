// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/gatekeeper/internal/testinfra"
)

func TestRedisStoreIntegration(t *testing.T) {
	rc := testinfra.StartRedis(t)
	l := New(NewRedisStore(rc.NewClient(t), "it:", nil), nil, Config{})
	ctx := context.Background()

	t.Run("auth tier", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			d, err := l.CheckAndIncrement(ctx, "ip:10.0.0.1", TierAuth)
			if err != nil || !d.Allowed {
				t.Fatalf("request %d: %+v, %v", i, d, err)
			}
		}
		d, err := l.CheckAndIncrement(ctx, "ip:10.0.0.1", TierAuth)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			t.Fatal("6th request allowed")
		}
		if s := d.RetryAfterSeconds(); s < 890 || s > 900 {
			t.Errorf("RetryAfterSeconds = %d, want about 900", s)
		}
	})

	t.Run("concurrent increments", func(t *testing.T) {
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for range 60 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := l.CheckAndIncrement(ctx, "ip:10.0.0.2", TierWrite)
				if err == nil && d.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		if got := allowed.Load(); got != 30 {
			t.Errorf("allowed = %d, want 30", got)
		}
	})
}
