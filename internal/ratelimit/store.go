// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store holds fixed-window counters.
type Store interface {
	// Increment adds one to the counter for key and returns the new count
	// and the start of its window. A missing or elapsed window is replaced
	// by a fresh one starting now with count 1.
	Increment(ctx context.Context, key string, window time.Duration) (count int, windowStart time.Time, err error)
}

// Sweepable is implemented by stores that need explicit eviction of elapsed
// windows.
type Sweepable interface {
	Sweep(ctx context.Context) int
}

type bucket struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

func (b *bucket) elapsed(now time.Time) bool {
	return now.Sub(b.windowStart) >= b.window
}

// MemoryStore is a process-local Store. Increments are serialized under a
// single mutex, so concurrent checks for one key never lose updates.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	clock   clockwork.Clock
}

// NewMemoryStore creates a MemoryStore. A nil clock selects the real clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		clock:   clock,
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.elapsed(now) {
		b = &bucket{windowStart: now, window: window}
		s.buckets[key] = b
	}
	b.count++
	return b.count, b.windowStart, nil
}

// Sweep removes buckets whose window has elapsed and returns how many were
// removed.
func (s *MemoryStore) Sweep(_ context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if b.elapsed(now) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
