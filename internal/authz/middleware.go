// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// Principal is the authenticated caller of an admin request.
type Principal struct {
	Subject string
	Role    string
}

type principalKey struct{}

// PrincipalFromContext returns the principal set by the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Middleware authenticates bearer tokens and authorizes requests.
type Middleware struct {
	tokens   *TokenManager
	enforcer *Enforcer
	audit    *audit.Logger
}

// NewMiddleware creates the admin guard. auditLogger may be nil.
func NewMiddleware(tokens *TokenManager, enforcer *Enforcer, auditLogger *audit.Logger) *Middleware {
	return &Middleware{tokens: tokens, enforcer: enforcer, audit: auditLogger}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may be gone
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Code: code})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Authorize requires a valid token whose subject or role is allowed the
// method's action on the request path. Missing or invalid tokens get 401;
// denied requests get 403 and an authz.denied event.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}
		claims, err := m.tokens.Validate(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected admin token")
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		action := methodToAction(r.Method)
		allowed, err := m.enforcer.EnforceWithRole(claims.Subject, claims.Role, r.URL.Path, action)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		if !allowed {
			metrics.AuthzDenied.Inc()
			m.audit.LogSecurityEventFromRequest(r, audit.EventAuthzDenied, audit.SeverityHigh, audit.Fields{
				Actor:   claims.Subject,
				Action:  action,
				Details: map[string]any{"role": claims.Role},
			})
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, Principal{Subject: claims.Subject, Role: claims.Role})
		ctx = audit.ContextWithActor(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
