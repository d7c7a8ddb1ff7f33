// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// historyKeyPrefix prefixes every history key. Keys have the form
// pwhist:<user>:<unix nanos, zero padded>:<uuid> so a prefix scan returns
// one user's records in insertion order.
const historyKeyPrefix = "pwhist:"

// BadgerHistoryStore implements HistoryStore on BadgerDB.
type BadgerHistoryStore struct {
	db *badger.DB
}

// NewBadgerHistoryStore creates a history store on db.
func NewBadgerHistoryStore(db *badger.DB) *BadgerHistoryStore {
	return &BadgerHistoryStore{db: db}
}

// userPrefix encodes the user id so ids containing ':' cannot overlap.
func userPrefix(userID string) []byte {
	return []byte(historyKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(userID)) + ":")
}

func historyKey(rec HistoryRecord) []byte {
	key := userPrefix(rec.UserID)
	return fmt.Appendf(key, "%020d:%s", rec.CreatedAt.UnixNano(), uuid.NewString())
}

// Recent implements HistoryStore.
func (s *BadgerHistoryStore) Recent(_ context.Context, userID string, n int) ([]HistoryRecord, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if n <= 0 {
		return nil, nil
	}

	var out []HistoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := userPrefix(userID)
		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < n; it.Next() {
			var rec HistoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode history record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read password history: %w", err)
	}
	return out, nil
}

// Append implements HistoryStore.
func (s *BadgerHistoryStore) Append(_ context.Context, rec HistoryRecord, keep int) error {
	if rec.UserID == "" {
		return ErrEmptyUserID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(historyKey(rec), data); err != nil {
			return fmt.Errorf("set history record: %w", err)
		}
		if keep <= 0 {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		prefix := userPrefix(rec.UserID)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for len(keys) > keep {
			if err := txn.Delete(keys[0]); err != nil {
				return fmt.Errorf("trim history: %w", err)
			}
			keys = keys[1:]
		}
		return nil
	})
}
