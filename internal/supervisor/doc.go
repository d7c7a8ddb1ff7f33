// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package supervisor runs the long-lived parts of the server under a
// suture supervisor tree.
//
// Every background loop in the process (lockout sweeper, rate limit
// janitor, audit retention, websocket hub, HTTP server) implements
// suture.Service. The tree restarts a service that returns an error or
// panics, backing off after FailureThreshold failures, and logs every
// supervisor event through slog via sutureslog.
//
// Usage:
//
//	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
//	tree.AddMaintenanceService(lockout.NewSweeper(tracker, 5*time.Minute, nil))
//	tree.AddMessagingService(hub)
//	tree.AddAPIService(supervisor.NewHTTPServerService(srv, 10*time.Second))
//	err := tree.Serve(ctx)
package supervisor
