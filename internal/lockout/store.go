// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package lockout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrEntryNotFound is returned when an identifier has no entry.
var ErrEntryNotFound = errors.New("lockout entry not found")

// Entry tracks failed login attempts for one identifier.
type Entry struct {
	Identifier        string    `json:"identifier"`
	FailedAttempts    int       `json:"failed_attempts"`
	LastFailedAttempt time.Time `json:"last_failed_attempt"`
	// LockedUntil is zero while the identifier is not locked.
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// HasLock reports whether a lock was ever applied to the entry, expired or
// not.
func (e *Entry) HasLock() bool {
	return !e.LockedUntil.IsZero()
}

// LockedAt reports whether the entry is locked at now.
func (e *Entry) LockedAt(now time.Time) bool {
	return e.HasLock() && now.Before(e.LockedUntil)
}

// expiredAt reports whether the entry can be evicted at now: its lock has
// run out, or it was never locked and the last failure is older than
// staleAfter.
func (e *Entry) expiredAt(now time.Time, staleAfter time.Duration) bool {
	if e.HasLock() {
		return !now.Before(e.LockedUntil)
	}
	return now.Sub(e.LastFailedAttempt) >= staleAfter
}

// Store persists lockout entries.
type Store interface {
	// Get returns the entry for identifier or ErrEntryNotFound.
	Get(ctx context.Context, identifier string) (*Entry, error)

	// Save creates or replaces an entry.
	Save(ctx context.Context, entry *Entry) error

	// Update applies fn to the current entry (nil when absent) and stores
	// the entry fn returns. Concurrent updates of one identifier never
	// interleave, including across processes sharing the store. A nil
	// result leaves the store unchanged. fn may run more than once.
	Update(ctx context.Context, identifier string, fn func(current *Entry) *Entry) error

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, identifier string) error

	// ListLocked returns entries locked at now, ordered by identifier.
	ListLocked(ctx context.Context, now time.Time) ([]*Entry, error)

	// DeleteExpired removes entries whose lock ran out and unlocked
	// entries idle for staleAfter. It returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error)
}

// MemoryStore keeps entries in process memory. Suitable for single
// instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, identifier string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[identifier]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return copyEntry(e), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Identifier] = copyEntry(entry)
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, identifier string, fn func(current *Entry) *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Entry
	if e, ok := s.entries[identifier]; ok {
		current = copyEntry(e)
	}
	if next := fn(current); next != nil {
		s.entries[identifier] = copyEntry(next)
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identifier)
	return nil
}

// ListLocked implements Store.
func (s *MemoryStore) ListLocked(_ context.Context, now time.Time) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var locked []*Entry
	for _, e := range s.entries {
		if e.LockedAt(now) {
			locked = append(locked, copyEntry(e))
		}
	}
	sortEntries(locked)
	return locked, nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, e := range s.entries {
		if e.expiredAt(now, staleAfter) {
			delete(s.entries, id)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func copyEntry(e *Entry) *Entry {
	c := *e
	return &c
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
}
