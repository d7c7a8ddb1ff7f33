// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/authz"
	"github.com/tomtom215/gatekeeper/internal/config"
	"github.com/tomtom215/gatekeeper/internal/detection"
	"github.com/tomtom215/gatekeeper/internal/lockout"
	"github.com/tomtom215/gatekeeper/internal/password"
	"github.com/tomtom215/gatekeeper/internal/ratelimit"
	"github.com/tomtom215/gatekeeper/internal/validation"
	"github.com/tomtom215/gatekeeper/internal/websocket"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the components the router wires together. Tokens,
// Enforcer and Hub may be nil; without Tokens and Enforcer the admin
// routes are not mounted.
type Dependencies struct {
	Config      *config.Config
	Audit       *audit.Logger
	Scanner     *detection.Scanner
	Sanitizer   *detection.Sanitizer
	Limiter     *ratelimit.Limiter
	Lockout     *lockout.Tracker
	Passwords   *password.Service
	Credentials CredentialVerifier
	Tokens      *authz.TokenManager
	Enforcer    *authz.Enforcer
	Hub         *websocket.Hub

	// HealthChecks are run by GET /health, keyed by component name.
	HealthChecks map[string]HealthCheck
}

func (d *Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("api: config is required")
	case d.Scanner == nil:
		return errors.New("api: scanner is required")
	case d.Limiter == nil:
		return errors.New("api: rate limiter is required")
	case d.Lockout == nil:
		return errors.New("api: lockout tracker is required")
	case d.Passwords == nil:
		return errors.New("api: password service is required")
	case d.Credentials == nil:
		return errors.New("api: credential verifier is required")
	}
	return nil
}

// Handler serves the API routes.
type Handler struct {
	cfg         *config.Config
	audit       *audit.Logger
	sanitizer   *detection.Sanitizer
	lockout     *lockout.Tracker
	passwords   *password.Service
	credentials CredentialVerifier
	hub         *websocket.Hub
	checks      map[string]HealthCheck
	startTime   time.Time
}

func newHandler(deps *Dependencies) *Handler {
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = detection.NewSanitizer()
	}
	return &Handler{
		cfg:         deps.Config,
		audit:       deps.Audit,
		sanitizer:   sanitizer,
		lockout:     deps.Lockout,
		passwords:   deps.Passwords,
		credentials: deps.Credentials,
		hub:         deps.Hub,
		checks:      deps.HealthChecks,
		startTime:   time.Now(),
	}
}

// decodeAndValidate decodes the JSON body into v and runs the struct
// validator. It writes the error response and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v, h.cfg.Server.MaxBodyBytes); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body too large", nil)
			return false
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", nil)
		return false
	}

	if err := validation.Struct(v); err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			respondValidation(w, r, ErrCodeValidationFailed, verr.Messages())
			return false
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "Invalid request", err)
		return false
	}
	return true
}
