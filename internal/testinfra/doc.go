// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package testinfra starts real backing services in Docker for
// integration tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/ratelimit/... ./internal/lockout/...
//
// Unit tests use miniredis instead; the container tests check that the
// Lua scripts and key expiry behave the same on a real Redis server.
//
//	func TestRedisStore(t *testing.T) {
//	    rc := testinfra.StartRedis(t)
//	    store := ratelimit.NewRedisStore(rc.NewClient(t), "test:", nil)
//	    // ...
//	}
package testinfra
