// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/gatekeeper/internal/audit"
)

const strongPassword = "Xk9#mQ2$vL7!pR4"

var errStoreDown = errors.New("store down")

// failingHistory fails every call. With readable set, Recent succeeds
// with an empty history and only Append fails.
type failingHistory struct {
	calls    atomic.Int32
	readable bool
}

func (f *failingHistory) Recent(context.Context, string, int) ([]HistoryRecord, error) {
	f.calls.Add(1)
	if f.readable {
		return nil, nil
	}
	return nil, errStoreDown
}

func (f *failingHistory) Append(context.Context, HistoryRecord, int) error {
	f.calls.Add(1)
	return errStoreDown
}

type fixture struct {
	svc    *Service
	events *audit.MemoryStore
	audit  *audit.Logger
}

func newFixture(t *testing.T, history HistoryStore, mutate func(*Config)) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	events := audit.NewMemoryStore(100)
	auditCfg := audit.DefaultConfig()
	auditCfg.LogEvents = false
	auditCfg.Clock = clock
	auditLogger := audit.NewLogger(events, auditCfg)
	t.Cleanup(func() { _ = auditLogger.Close() })

	cfg := DefaultConfig()
	cfg.Policy.BcryptCost = bcrypt.MinCost
	cfg.Clock = clock
	if mutate != nil {
		mutate(&cfg)
	}
	return &fixture{svc: NewService(history, auditLogger, cfg), events: events, audit: auditLogger}
}

func (f *fixture) eventsOf(t *testing.T, eventType audit.EventType) []audit.Event {
	t.Helper()
	if err := f.audit.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := f.events.Query(context.Background(), audit.Filter{Types: []audit.EventType{eventType}})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestValidateStrengthRepeatedBlockRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res := f.svc.ValidateStrength("Aa1!Aa1!Aa1!", nil)
	if res.Valid {
		t.Fatal("Aa1!Aa1!Aa1! must be rejected")
	}
	if res.StrengthScore >= 3 {
		t.Errorf("StrengthScore = %d, want < 3", res.StrengthScore)
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "Repeated patterns") {
		t.Errorf("Errors = %q", res.Errors)
	}
}

func TestValidateStrengthCollectsAllErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res := f.svc.ValidateStrength("abcdef", nil)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	for _, want := range []string{
		"password must be at least 12 characters",
		"password must contain at least one uppercase letter",
		"password must contain at least one digit",
		"password must contain at least one special character",
		"password must not be a simple ascending or descending sequence",
	} {
		if !slices.Contains(res.Errors, want) {
			t.Errorf("missing %q in %q", want, res.Errors)
		}
	}
	// Estimator feedback follows the rule errors.
	if !slices.ContainsFunc(res.Errors, func(e string) bool { return strings.HasPrefix(e, "Sequences") }) {
		t.Errorf("missing estimator feedback in %q", res.Errors)
	}
}

func TestValidateStrengthAcceptsStrongPassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res := f.svc.ValidateStrength(strongPassword, []string{"alice"})
	if !res.Valid || len(res.Errors) != 0 || res.StrengthScore != 4 {
		t.Errorf("ValidateStrength = %+v", res)
	}
	if res.Errors == nil {
		t.Error("Errors must be an empty slice, not nil")
	}
}

func TestValidateStrengthUsesContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	pw := "Vexqorbinal#7"
	if res := f.svc.ValidateStrength(pw, nil); !res.Valid {
		t.Fatalf("without context: %+v", res)
	}
	if res := f.svc.ValidateStrength(pw, []string{"vexqorbinal"}); res.Valid {
		t.Error("password built from the username must be rejected")
	}
}

func TestCheckHistoryRejectsReuse(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistoryStore()
	f := newFixture(t, store, nil)
	ctx := context.Background()

	hash, err := f.svc.Hash(strongPassword)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RecordPassword(ctx, "alice", hash); err != nil {
		t.Fatal(err)
	}

	res := f.svc.CheckHistory(ctx, "alice", strongPassword)
	if res.Allowed || !strings.Contains(res.Message, "last 12 passwords") {
		t.Errorf("CheckHistory = %+v", res)
	}
	if res := f.svc.CheckHistory(ctx, "bob", strongPassword); !res.Allowed {
		t.Errorf("other user: %+v", res)
	}
	if res := f.svc.CheckHistory(ctx, "alice", strongPassword+"x"); !res.Allowed {
		t.Errorf("different password: %+v", res)
	}
}

func TestCheckHistoryWindow(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistoryStore()
	f := newFixture(t, store, nil)
	ctx := context.Background()

	pw := func(i int) string { return fmt.Sprintf("%s-%02d", strongPassword, i) }
	for i := 0; i < 13; i++ {
		hash, err := f.svc.Hash(pw(i))
		if err != nil {
			t.Fatal(err)
		}
		if err := f.svc.RecordPassword(ctx, "alice", hash); err != nil {
			t.Fatal(err)
		}
	}

	if n := store.Len("alice"); n != 12 {
		t.Errorf("history length = %d, want 12", n)
	}
	if res := f.svc.CheckHistory(ctx, "alice", pw(0)); !res.Allowed {
		t.Errorf("13th oldest password should be reusable: %+v", res)
	}
	if res := f.svc.CheckHistory(ctx, "alice", pw(1)); res.Allowed {
		t.Error("12th oldest password must be rejected")
	}
}

func TestCheckHistoryFailOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &failingHistory{}, nil)
	res := f.svc.CheckHistory(context.Background(), "alice", strongPassword)
	if !res.Allowed {
		t.Errorf("fail-open: %+v", res)
	}

	events := f.eventsOf(t, audit.EventPasswordHistoryUnavailable)
	if len(events) != 1 || events[0].Severity != audit.SeverityMedium {
		t.Errorf("events = %+v", events)
	}
}

func TestCheckHistoryFailClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &failingHistory{}, func(c *Config) { c.Policy.HistoryFailOpen = false })
	res := f.svc.CheckHistory(context.Background(), "alice", strongPassword)
	if res.Allowed || res.Message != msgHistoryUnavailable {
		t.Errorf("fail-closed: %+v", res)
	}

	change := f.svc.ValidatePasswordChange(context.Background(), "alice", strongPassword, nil)
	if change.Valid || !slices.Contains(change.Errors, msgHistoryUnavailable) {
		t.Errorf("ValidatePasswordChange = %+v", change)
	}

	events := f.eventsOf(t, audit.EventPasswordHistoryUnavailable)
	if len(events) != 2 || events[0].Severity != audit.SeverityHigh {
		t.Errorf("events = %+v", events)
	}
}

func TestHistoryBreakerOpens(t *testing.T) {
	t.Parallel()

	store := &failingHistory{}
	f := newFixture(t, store, func(c *Config) {
		c.BreakerFailures = 3
		c.BreakerTimeout = time.Hour
	})

	for i := 0; i < 6; i++ {
		if res := f.svc.CheckHistory(context.Background(), "alice", strongPassword); !res.Allowed {
			t.Fatalf("call %d: %+v", i, res)
		}
	}
	if n := store.calls.Load(); n != 3 {
		t.Errorf("store calls = %d, want 3 before the breaker opened", n)
	}
}

func TestValidatePasswordChangeUnion(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistoryStore()
	f := newFixture(t, store, func(c *Config) { c.Policy.MinLength = 20 })
	ctx := context.Background()

	hash, err := f.svc.Hash(strongPassword)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RecordPassword(ctx, "alice", hash); err != nil {
		t.Fatal(err)
	}

	res := f.svc.ValidatePasswordChange(ctx, "alice", strongPassword, nil)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	want := []string{
		"password must be at least 20 characters",
		"password must not match any of your last 12 passwords",
	}
	if !slices.Equal(res.Errors, want) {
		t.Errorf("Errors = %q, want %q", res.Errors, want)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	store := NewMemoryHistoryStore()
	f := newFixture(t, store, nil)
	ctx := context.Background()

	res, hash, err := f.svc.ChangePassword(ctx, "alice", strongPassword, []string{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || hash == "" {
		t.Fatalf("ChangePassword = %+v, %q", res, hash)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strongPassword)) != nil {
		t.Error("returned hash does not match the password")
	}

	res, hash, err = f.svc.ChangePassword(ctx, "alice", strongPassword, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || hash != "" {
		t.Errorf("reuse accepted: %+v, %q", res, hash)
	}

	if n := len(f.eventsOf(t, audit.EventPasswordChanged)); n != 1 {
		t.Errorf("changed events = %d, want 1", n)
	}
	if n := len(f.eventsOf(t, audit.EventPasswordRejected)); n != 1 {
		t.Errorf("rejected events = %d, want 1", n)
	}
}

func TestRecordPasswordStoreError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &failingHistory{}, nil)
	if err := f.svc.RecordPassword(context.Background(), "alice", "hash"); !errors.Is(err, errStoreDown) {
		t.Errorf("RecordPassword = %v, want wrapped store error", err)
	}
}

func TestChangePasswordHistoryDownFailOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &failingHistory{}, nil)
	res, hash, err := f.svc.ChangePassword(context.Background(), "alice", strongPassword, nil)
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if !res.Valid || hash == "" {
		t.Fatalf("ChangePassword = %+v, %q", res, hash)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strongPassword)) != nil {
		t.Error("returned hash does not match the password")
	}

	unavailable := f.eventsOf(t, audit.EventPasswordHistoryUnavailable)
	actions := make([]string, 0, len(unavailable))
	for _, e := range unavailable {
		actions = append(actions, e.Action)
	}
	slices.Sort(actions)
	if want := []string{"history_append", "history_check"}; !slices.Equal(actions, want) {
		t.Errorf("history_unavailable actions = %q, want %q", actions, want)
	}
	if n := len(f.eventsOf(t, audit.EventPasswordChanged)); n != 1 {
		t.Errorf("changed events = %d, want 1", n)
	}
}

func TestChangePasswordHistoryAppendFailClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &failingHistory{readable: true}, func(c *Config) { c.Policy.HistoryFailOpen = false })
	res, hash, err := f.svc.ChangePassword(context.Background(), "alice", strongPassword, nil)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("ChangePassword err = %v, want wrapped store error", err)
	}
	if hash != "" || !res.Valid {
		t.Errorf("ChangePassword = %+v, %q", res, hash)
	}

	events := f.eventsOf(t, audit.EventPasswordHistoryUnavailable)
	if len(events) != 1 || events[0].Action != "history_append" || events[0].Severity != audit.SeverityHigh {
		t.Errorf("events = %+v", events)
	}
	if n := len(f.eventsOf(t, audit.EventPasswordChanged)); n != 0 {
		t.Errorf("changed events = %d, want 0", n)
	}
}
