// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package authz guards the admin API.
//
// Callers present an HS256 bearer token whose claims carry a subject and a
// role. The Middleware validates the token and asks a Casbin enforcer
// whether the role may perform the action derived from the HTTP method on
// the request path:
//
//	GET, HEAD, OPTIONS -> read
//	POST, PUT, PATCH   -> write
//	DELETE             -> delete
//
// The RBAC model and default policy are embedded. Every denial is written
// to the audit log as authz.denied with high severity.
package authz
