// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

/*
Package websocket streams security events to connected admin clients.

The Hub implements audit.Sink, so registering it with the audit logger
forwards every event at or above the configured severity to all clients.
It uses gorilla/websocket with a hub-client architecture:

	audit.Logger ──Write──▶ Hub ──broadcast──▶ Client ──▶ browser

Each client runs two goroutines:
  - readPump: reads client messages and answers "ping" with "pong"
  - writePump: writes queued messages and sends protocol pings

A client whose send buffer is full is disconnected rather than allowed to
stall the broadcast loop.

Message types:
  - security_event: data is an audit.Event
  - ping / pong: application level keepalive

The hub is a suture service; Serve closes every client when its context is
canceled.
*/
package websocket
