// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

/*
Package api wires the security checks into a chi router.

Every request passes the global stack in this order:

	RequestID → RealIP → Recoverer → PrometheusMetrics → CORS
	  → SecurityHeaders → AttackDetection → route group rate limiter

Security headers are set before any later check can reject the request,
so 400, 423 and 429 responses carry them too.

Route groups and their rate limit tiers:

	/api/v1/auth/*     auth    login, password change, strength check
	/api/v1/ai/*       ai      assist
	/api/v1/content/*  write for mutating methods, api otherwise
	/api/v1/admin/*    api     bearer token + RBAC
	/health, /metrics  none

Error bodies are flat JSON objects with "error" and "code" fields so
clients can switch on the code without unwrapping an envelope.
*/
package api
