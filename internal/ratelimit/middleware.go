// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
)

// KeyFunc derives the rate limit identifier of a request. It has the same
// shape as httprate.KeyFunc so httprate key functions can be reused.
type KeyFunc func(r *http.Request) (string, error)

// KeyByRealIP identifies callers as "ip:<address>", honoring
// True-Client-IP, X-Real-IP and X-Forwarded-For.
func KeyByRealIP(r *http.Request) (string, error) {
	ip, err := httprate.KeyByRealIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// KeyByIP identifies callers as "ip:<remote address>" without trusting
// forwarding headers.
func KeyByIP(r *http.Request) (string, error) {
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// KeyByActor prefers the authenticated actor stored in the request context
// and falls back to fallback.
func KeyByActor(fallback KeyFunc) KeyFunc {
	return func(r *http.Request) (string, error) {
		if actor := audit.ActorFromContext(r.Context()); actor != "" {
			return actor, nil
		}
		return fallback(r)
	}
}

type limitResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware limits requests on tier. A nil keyFunc selects KeyByRealIP.
// Requests whose key cannot be derived are allowed.
func (l *Limiter) Middleware(tier Tier, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = KeyByRealIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, err := keyFunc(r)
			if err != nil || identifier == "" {
				logging.Ctx(r.Context()).Warn().Err(err).Str("tier", string(tier)).
					Msg("Could not derive rate limit key, skipping limit")
				next.ServeHTTP(w, r)
				return
			}

			d, err := l.CheckAndIncrement(r.Context(), identifier, tier)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Str("tier", string(tier)).Msg("Rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := d.RetryAfterSeconds()
			if l.shouldReportViolation(identifier, tier) {
				l.audit.LogSecurityEventFromRequest(r, audit.EventRateLimitViolation, audit.SeverityLow, audit.Fields{
					Actor:  identifier,
					Action: "rate_limit",
					Details: map[string]any{
						"tier":        string(tier),
						"limit":       d.Limit,
						"retry_after": retry,
					},
				})
			}

			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			if err := json.NewEncoder(w).Encode(limitResponse{
				Error:      "Too many requests, please try again later",
				Code:       "RATE_LIMIT_EXCEEDED",
				RetryAfter: retry,
			}); err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode rate limit response")
			}
		})
	}
}
