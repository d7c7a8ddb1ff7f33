// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gatekeeper/internal/logging"
)

// Error codes returned in the "code" field.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeAttackDetected     = "ATTACK_DETECTED"
	ErrCodeInputTooDeep       = "INPUT_TOO_DEEP"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked      = "ACCOUNT_LOCKED"
	ErrCodePasswordRejected   = "PASSWORD_REJECTED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// errorResponse is the body of every error response.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// dataResponse wraps successful payloads.
type dataResponse struct {
	Data any          `json:"data"`
	Meta responseMeta `json:"meta"`
}

type responseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Total     *int64    `json:"total,omitempty"`
}

// respondJSON writes v with status. Security responses are never cached.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData writes a 200 response with the data envelope.
func respondData(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusOK, dataResponse{Data: data, Meta: newMeta(r)})
}

// respondList writes a 200 response carrying the total row count.
func respondList(w http.ResponseWriter, r *http.Request, data any, total int64) {
	meta := newMeta(r)
	meta.Total = &total
	respondJSON(w, r, http.StatusOK, dataResponse{Data: data, Meta: meta})
}

func newMeta(r *http.Request) responseMeta {
	return responseMeta{
		RequestID: logging.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	}
}

// respondError writes the flat error body. err is logged, never returned
// to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("API error")
	}
	respondJSON(w, r, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

// lockedResponse is returned with 423.
type lockedResponse struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	RemainingMinutes int    `json:"remaining_minutes"`
}

func respondLocked(w http.ResponseWriter, r *http.Request, remaining time.Duration, remainingMinutes int) {
	secs := int(remaining.Seconds())
	if time.Duration(secs)*time.Second < remaining {
		secs++
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	respondJSON(w, r, http.StatusLocked, lockedResponse{
		Error:            fmt.Sprintf("Account is locked, try again in %d minutes", remainingMinutes),
		Code:             ErrCodeAccountLocked,
		RemainingMinutes: remainingMinutes,
	})
}

// validationResponse is returned when password or request validation
// fails.
type validationResponse struct {
	Error  string   `json:"error,omitempty"`
	Code   string   `json:"code"`
	Errors []string `json:"errors"`
}

func respondValidation(w http.ResponseWriter, r *http.Request, code string, errs []string) {
	respondJSON(w, r, http.StatusBadRequest, validationResponse{Code: code, Errors: errs})
}

// errBodyTooLarge is returned by decodeJSON when the body exceeds the
// configured limit.
var errBodyTooLarge = errors.New("request body too large")

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any, maxBytes int64) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("request body is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
