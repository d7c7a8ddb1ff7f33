// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHistoryStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) HistoryStore{
		"memory": func(*testing.T) HistoryStore { return NewMemoryHistoryStore() },
		"badger": func(t *testing.T) HistoryStore { return NewBadgerHistoryStore(openTestBadger(t)) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := newStore(t)
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

			for i := 0; i < 5; i++ {
				rec := HistoryRecord{UserID: "alice", Hash: fmt.Sprintf("h%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
				if err := s.Append(ctx, rec, 3); err != nil {
					t.Fatal(err)
				}
			}
			// An id that extends "alice" with a separator must not leak into
			// alice's history.
			if err := s.Append(ctx, HistoryRecord{UserID: "alice:x", Hash: "other", CreatedAt: base}, 3); err != nil {
				t.Fatal(err)
			}

			got, err := s.Recent(ctx, "alice", 10)
			if err != nil {
				t.Fatal(err)
			}
			var hashes []string
			for _, r := range got {
				hashes = append(hashes, r.Hash)
			}
			if fmt.Sprint(hashes) != "[h4 h3 h2]" {
				t.Errorf("Recent = %v, want newest three", hashes)
			}

			got, _ = s.Recent(ctx, "alice", 1)
			if len(got) != 1 || got[0].Hash != "h4" || !got[0].CreatedAt.Equal(base.Add(4*time.Minute)) {
				t.Errorf("Recent(1) = %+v", got)
			}

			if got, _ := s.Recent(ctx, "nobody", 5); len(got) != 0 {
				t.Errorf("unknown user: %+v", got)
			}
			if _, err := s.Recent(ctx, "", 5); !errors.Is(err, ErrEmptyUserID) {
				t.Errorf("empty user err = %v", err)
			}
			if err := s.Append(ctx, HistoryRecord{Hash: "x"}, 3); !errors.Is(err, ErrEmptyUserID) {
				t.Errorf("append without user err = %v", err)
			}
		})
	}
}

func TestBadgerHistoryBackedService(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewBadgerHistoryStore(openTestBadger(t)), nil)
	ctx := context.Background()

	if _, _, err := f.svc.ChangePassword(ctx, "alice", strongPassword, nil); err != nil {
		t.Fatal(err)
	}
	if res := f.svc.CheckHistory(ctx, "alice", strongPassword); res.Allowed {
		t.Error("reuse allowed with badger history")
	}
}
