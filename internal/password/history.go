// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmptyUserID is returned when a history operation has no user.
var ErrEmptyUserID = errors.New("password history requires a user id")

// HistoryRecord is one previously used password hash.
type HistoryRecord struct {
	UserID    string    `json:"user_id"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists password hashes per user.
type HistoryStore interface {
	// Recent returns up to n records for userID, newest first.
	Recent(ctx context.Context, userID string, n int) ([]HistoryRecord, error)

	// Append stores rec and drops all but the newest keep records for
	// the user.
	Append(ctx context.Context, rec HistoryRecord, keep int) error
}

// MemoryHistoryStore keeps history in process memory.
type MemoryHistoryStore struct {
	mu      sync.RWMutex
	records map[string][]HistoryRecord // oldest first
}

// NewMemoryHistoryStore creates an empty in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{records: make(map[string][]HistoryRecord)}
}

// Recent implements HistoryStore.
func (s *MemoryHistoryStore) Recent(_ context.Context, userID string, n int) ([]HistoryRecord, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[userID]
	if n <= 0 || len(recs) == 0 {
		return nil, nil
	}
	out := make([]HistoryRecord, 0, min(n, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

// Append implements HistoryStore.
func (s *MemoryHistoryStore) Append(_ context.Context, rec HistoryRecord, keep int) error {
	if rec.UserID == "" {
		return ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := append(s.records[rec.UserID], rec)
	if keep > 0 && len(recs) > keep {
		recs = append([]HistoryRecord(nil), recs[len(recs)-keep:]...)
	}
	s.records[rec.UserID] = recs
	return nil
}

// Len returns the number of records held for userID.
func (s *MemoryHistoryStore) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[userID])
}
