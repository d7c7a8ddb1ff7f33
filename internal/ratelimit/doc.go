// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package ratelimit implements tiered fixed-window rate limiting.
//
// Each (identifier, tier) pair owns one counter. The first check in a
// window starts the window with a count of one; later checks increment the
// count and are allowed while it stays at or below the tier limit. Once the
// window has elapsed the next check starts a fresh window, so a partial
// count never carries over.
//
// Tiers:
//
//	auth   5 requests / 15 minutes
//	api    100 requests / minute
//	ai     50 requests / hour
//	write  30 requests / minute
//
// Counters live behind the Store interface. MemoryStore keeps them in
// process; RedisStore shares them between instances using an atomic Lua
// script. A failing store never blocks traffic: the limiter allows the
// request and logs the error.
package ratelimit
