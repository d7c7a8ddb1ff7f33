// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package eventbus forwards security events to a Watermill publisher so
// other systems (SIEM collectors, alerting) can consume them.
//
// Sink implements audit.Sink. Each event becomes one message whose UUID is
// the event ID and whose payload is the JSON encoded event; the type and
// severity are copied into message metadata for routing. Publishing is
// guarded by a circuit breaker so a dead broker costs one failed call per
// breaker timeout instead of one per event.
//
// The NATS publisher and the embedded NATS server are compiled only with
// the nats build tag:
//
//	go build -tags nats ./cmd/server
//
// Without the tag NewNATSPublisher and NewEmbeddedServer return
// ErrNATSUnavailable.
package eventbus
