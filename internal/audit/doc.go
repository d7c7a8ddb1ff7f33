// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package audit records security events emitted by the request pipeline.
//
// Every decision point (attack detection, rate limiting, lockout, password
// policy, admin authorization) reports through a *Logger:
//
//	auditLog.LogSecurityEventFromRequest(r, audit.EventSQLInjectionAttempt, audit.SeverityMedium,
//	    audit.Fields{Details: map[string]any{"field": "body.user.name"}})
//
// Events are immutable once emitted and stored append-only. The Logger is
// asynchronous: callers never block on persistence and never observe an
// error. A full buffer drops the event, logs a warning and increments
// gatekeeper_audit_events_dropped_total.
//
// # Sinks
//
// Each event is written, in order, to:
//   - the structured application log (zerolog)
//   - the Store (MemoryStore or DuckDBStore) used by the admin query API
//   - any extra Sink (NATS JetStream publisher, live websocket feed)
//
// A failing sink is logged and counted; the remaining sinks still run.
package audit
