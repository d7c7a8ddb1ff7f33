// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

/*
Package middleware provides the infrastructure middleware that runs ahead of
the security checks.

  - RequestID: accepts a well-formed X-Request-ID from upstream or generates
    one, echoes it, and stores it in the context for logging and audit events
  - PrometheusMetrics: records request counts, durations and in-flight
    requests labeled by chi route pattern

The router installs them first, in that order:

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
