// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

//go:build integration

package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/gatekeeper/internal/testinfra"
)

func TestRedisStoreIntegration(t *testing.T) {
	rc := testinfra.StartRedis(t)
	store := NewRedisStore(rc.NewClient(t), "it:", 30*time.Minute, nil)
	tracker := NewTracker(store, nil, Config{})
	ctx := context.Background()

	var st Status
	var err error
	for i := 0; i < 5; i++ {
		if st, err = tracker.RecordFailedLogin(ctx, "user:alice"); err != nil {
			t.Fatal(err)
		}
	}
	if !st.Locked || st.RemainingMinutes != 30 {
		t.Fatalf("status after 5 failures = %+v", st)
	}

	locked, err := tracker.ListLocked(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(locked) != 1 || locked[0].Identifier != "user:alice" {
		t.Fatalf("ListLocked = %+v", locked)
	}

	if err := tracker.ClearFailedLogins(ctx, "user:alice"); err != nil {
		t.Fatal(err)
	}
	if st, err = tracker.IsAccountLocked(ctx, "user:alice"); err != nil || st.Locked || st.Attempts != 0 {
		t.Errorf("after clear: %+v, %v", st, err)
	}
}
