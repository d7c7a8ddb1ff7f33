// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package password enforces the password policy: deterministic rule checks,
// a strength estimate, reuse checks against recent password hashes, and
// bcrypt hashing.
//
// Validation never stops at the first problem. Every rule violation, the
// estimator feedback and the history verdict are collected so the caller
// can show the complete list at once.
//
// The history check reads stored hashes through a circuit breaker. When
// the store is unavailable the check fails open by default (the change is
// allowed and the failure logged); Policy.HistoryFailOpen switches this to
// fail closed.
package password
