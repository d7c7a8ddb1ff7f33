// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package lockout tracks failed login attempts and temporarily locks
// identifiers that exceed the allowed number of consecutive failures.
//
// State machine, per identifier:
//
//	Unlocked --RecordFailedLogin (attempts reach max)--> Locked
//	Locked   --IsAccountLocked (now >= lockedUntil)----> Unlocked (entry evicted)
//	any      --ClearFailedLogins----------------------> Unlocked (entry removed)
//
// Identifiers are chosen by the caller, for example "user:alice" or
// "ip:203.0.113.7". The tracker does not interpret them. Failures are
// recorded through Store.Update, which serializes the read-modify-write per
// identifier (a mutex in MemoryStore, WATCH/MULTI in RedisStore), so the
// lock triggers exactly at the threshold even when several instances share
// one Redis.
//
// A Sweeper service removes entries whose lock expired or whose last
// failure has gone stale, bounding memory for identifiers that never come
// back.
package lockout
