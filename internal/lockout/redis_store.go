// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds the optimistic retries of Update when another
// instance modifies the same entry between WATCH and EXEC.
const maxUpdateAttempts = 50

// ErrUpdateConflict is returned when Update keeps losing the race for an
// entry.
var ErrUpdateConflict = errors.New("lockout entry update conflict")

// RedisStore shares lockout entries between instances. Entries are JSON
// documents whose TTL covers the lock plus the stale window, so Redis
// evicts abandoned entries on its own.
type RedisStore struct {
	client     redis.UniversalClient
	keyPrefix  string
	staleAfter time.Duration
	clock      clockwork.Clock
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, staleAfter time.Duration, clock clockwork.Clock) *RedisStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  keyPrefix,
		staleAfter: staleAfter,
		clock:      clock,
	}
}

func (s *RedisStore) buildKey(identifier string) string {
	return s.keyPrefix + "lockout:" + identifier
}

func (s *RedisStore) pattern() string {
	return s.keyPrefix + "lockout:*"
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, identifier string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.buildKey(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get lockout entry: %w", err)
	}

	return decodeEntry(data)
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode lockout entry: %w", err)
	}
	return &e, nil
}

// ttl covers the lock plus the stale window.
func (s *RedisStore) ttl(entry *Entry) time.Duration {
	ttl := s.staleAfter
	if entry.HasLock() {
		ttl = entry.LockedUntil.Sub(s.clock.Now()) + s.staleAfter
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode lockout entry: %w", err)
	}
	if err := s.client.Set(ctx, s.buildKey(entry.Identifier), data, s.ttl(entry)).Err(); err != nil {
		return fmt.Errorf("save lockout entry: %w", err)
	}
	return nil
}

// Update implements Store with WATCH/MULTI: the write only commits when
// no other client changed the key since it was read, otherwise fn runs
// again on the fresh entry.
func (s *RedisStore) Update(ctx context.Context, identifier string, fn func(current *Entry) *Entry) error {
	key := s.buildKey(identifier)

	txf := func(tx *redis.Tx) error {
		var current *Entry
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get lockout entry: %w", err)
		default:
			if current, err = decodeEntry(data); err != nil {
				return err
			}
		}

		next := fn(current)
		if next == nil {
			return nil
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode lockout entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl(next))
			return nil
		})
		return err
	}

	for range maxUpdateAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update lockout entry: %w", err)
		}
		return nil
	}
	return ErrUpdateConflict
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.buildKey(identifier)).Err(); err != nil {
		return fmt.Errorf("delete lockout entry: %w", err)
	}
	return nil
}

// ListLocked implements Store. It scans the key space, so it is meant for
// admin views rather than the request path.
func (s *RedisStore) ListLocked(ctx context.Context, now time.Time) ([]*Entry, error) {
	var locked []*Entry
	err := s.scan(ctx, func(_ string, e *Entry) error {
		if e.LockedAt(now) {
			locked = append(locked, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(locked)
	return locked, nil
}

// DeleteExpired implements Store.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	count := 0
	err := s.scan(ctx, func(key string, e *Entry) error {
		if !e.expiredAt(now, staleAfter) {
			return nil
		}
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("delete expired lockout entry: %w", err)
		}
		count += int(n)
		return nil
	})
	return count, err
}

func (s *RedisStore) scan(ctx context.Context, fn func(key string, e *Entry) error) error {
	iter := s.client.Scan(ctx, 0, s.pattern(), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		e, err := s.Get(ctx, strings.TrimPrefix(key, s.keyPrefix+"lockout:"))
		if errors.Is(err, ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(key, e); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan lockout entries: %w", err)
	}
	return nil
}
