// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"net/http"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// lockoutKey namespaces login identifiers in the lockout store so they
// cannot collide with IP based keys.
func lockoutKey(identifier string) string {
	return "user:" + identifier
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,identifier"`
	Password   string `json:"password" validate:"required,max=1024"`
}

type loginResponse struct {
	Identifier    string `json:"identifier"`
	Authenticated bool   `json:"authenticated"`
}

// Login checks the lockout state, verifies the credentials and updates
// the lockout state with the outcome.
//
//	423 the identifier is locked, or this failure locked it
//	401 wrong credentials
//	503 lockout state could not be read or updated
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if !h.authenticate(w, r, req.Identifier, req.Password, "login") {
		return
	}

	metrics.RecordLoginAttempt("success")
	h.audit.LogSecurityEventFromRequest(r, audit.EventLoginSuccess, audit.SeverityLow, audit.Fields{
		Success: true,
		Actor:   lockoutKey(req.Identifier),
		Action:  "login",
	})
	respondData(w, r, loginResponse{Identifier: req.Identifier, Authenticated: true})
}

// authenticate runs the lockout-guarded credential check shared by login
// and password change. It writes the error response and returns false
// when the caller must stop. A successful check clears the failure count.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, identifier, password, action string) bool {
	ctx := r.Context()
	key := lockoutKey(identifier)

	status, err := h.lockout.IsAccountLocked(ctx, key)
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"Login is temporarily unavailable", err)
		return false
	}
	if status.Locked {
		metrics.RecordLoginAttempt("locked")
		h.audit.LogSecurityEventFromRequest(r, audit.EventLockedLoginDenied, audit.SeverityMedium, audit.Fields{
			Actor:   key,
			Action:  action,
			Details: map[string]any{"remaining_minutes": status.RemainingMinutes},
		})
		respondLocked(w, r, status.Remaining, status.RemainingMinutes)
		return false
	}

	ok, err := h.credentials.Verify(ctx, identifier, password)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Login failed", err)
		return false
	}
	if !ok {
		h.authFailed(w, r, key, action)
		return false
	}

	if err := h.lockout.ClearFailedLogins(ctx, key); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("identifier", logging.RedactIdentifier(key)).
			Msg("Failed to clear lockout state after successful login")
	}
	return true
}

func (h *Handler) authFailed(w http.ResponseWriter, r *http.Request, key, action string) {
	status, err := h.lockout.RecordFailedLogin(r.Context(), key)

	metrics.RecordLoginAttempt("failure")
	h.audit.LogSecurityEventFromRequest(r, audit.EventLoginFailure, audit.SeverityLow, audit.Fields{
		Actor:   key,
		Action:  action,
		Details: map[string]any{"attempts": status.Attempts},
	})

	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"Login is temporarily unavailable", err)
		return
	}
	if status.Locked {
		respondLocked(w, r, status.Remaining, status.RemainingMinutes)
		return
	}
	respondError(w, r, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid identifier or password", nil)
}

type passwordChangeRequest struct {
	UserID          string `json:"user_id" validate:"required,identifier"`
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	Username        string `json:"username" validate:"omitempty,max=256,nocontrol"`
	Email           string `json:"email" validate:"omitempty,email,max=320"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
}

func (req *passwordChangeRequest) userInputs() []string {
	return []string{req.UserID, req.Username, req.Email}
}

type passwordChangeResponse struct {
	Changed       bool `json:"changed"`
	StrengthScore int  `json:"strength_score"`
}

// ChangePassword verifies the current password through the same lockout
// guard as Login, validates the new password against the policy and the
// user's history, then hashes and records it. Every violation is returned
// at once in "errors".
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordChangeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if !h.authenticate(w, r, req.UserID, req.CurrentPassword, "change_password") {
		return
	}

	ctx := r.Context()
	res, hash, err := h.passwords.ChangePassword(ctx, req.UserID, req.NewPassword, req.userInputs())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Password could not be changed", err)
		return
	}
	if !res.Valid {
		respondValidation(w, r, ErrCodePasswordRejected, res.Errors)
		return
	}

	if updater, ok := h.credentials.(PasswordUpdater); ok {
		if err := updater.SetPasswordHash(ctx, req.UserID, hash); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Password could not be changed", err)
			return
		}
	}

	respondData(w, r, passwordChangeResponse{Changed: true, StrengthScore: res.StrengthScore})
}

type strengthRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
	Username string `json:"username" validate:"omitempty,max=256,nocontrol"`
	Email    string `json:"email" validate:"omitempty,max=320,nocontrol"`
}

// PasswordStrength scores a candidate password without checking or
// touching the history.
func (h *Handler) PasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req strengthRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	respondData(w, r, h.passwords.ValidateStrength(req.Password, []string{req.Username, req.Email}))
}
