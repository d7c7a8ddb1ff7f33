// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// incrementScript starts the window on the first hit and returns the count
// together with the remaining window in milliseconds. A key that somehow
// lost its expiry is given one again so it cannot live forever.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore is a Store shared by every instance connected to the same
// Redis. Window expiry is delegated to key TTLs.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	clock     clockwork.Clock
}

// NewRedisStore creates a RedisStore. keyPrefix is prepended to every key.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, clock clockwork.Clock) *RedisStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		clock:     clock,
	}
}

func (s *RedisStore) buildKey(key string) string {
	return s.keyPrefix + "ratelimit:" + key
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return 0, time.Time{}, fmt.Errorf("invalid window %s", window)
	}

	res, err := incrementScript.Run(ctx, s.client, []string{s.buildKey(key)}, windowMs).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis increment %s: unexpected reply length %d", key, len(res))
	}

	remaining := time.Duration(res[1]) * time.Millisecond
	windowStart := s.clock.Now().Add(remaining - window)
	return int(res[0]), windowStart, nil
}
