// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_http_active_requests",
			Help: "Requests currently being served",
		},
	)

	// Attack detection
	AttacksDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_attacks_detected_total",
			Help: "Requests matching an attack heuristic, by detector and action (blocked or logged)",
		},
		[]string{"detector", "action"},
	)

	// Rate limiting
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_rate_limit_decisions_total",
			Help: "Rate limit decisions by tier and outcome (allowed, rejected, error)",
		},
		[]string{"tier", "outcome"},
	)

	// Lockout
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_login_attempts_total",
			Help: "Login attempts by outcome (success, failure, locked)",
		},
		[]string{"outcome"},
	)

	LockoutsTriggered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_lockouts_triggered_total",
			Help: "Identifiers locked after reaching the failed attempt threshold",
		},
	)

	LockoutsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_lockouts_swept_total",
			Help: "Expired lockout entries removed by the background sweep",
		},
	)

	// Password policy
	PasswordValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_password_validations_total",
			Help: "Password validations by outcome (accepted, rejected)",
		},
		[]string{"outcome"},
	)

	PasswordHistoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_password_history_errors_total",
			Help: "History store failures by resolution (fail_open, fail_closed)",
		},
		[]string{"resolution"},
	)

	PasswordHashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_password_hash_duration_seconds",
			Help:    "Time spent hashing or comparing passwords",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	// Audit
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_audit_events_total",
			Help: "Security events written by type and severity",
		},
		[]string{"type", "severity"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_audit_events_dropped_total",
			Help: "Security events dropped because the buffer was full",
		},
	)

	AuditSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_audit_sink_errors_total",
			Help: "Failures writing security events to a sink",
		},
		[]string{"sink"},
	)

	AuditEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_audit_events_published_total",
			Help: "Security events handed to the message bus by outcome",
		},
		[]string{"outcome"},
	)

	// Admin API
	AuthzDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_authz_denied_total",
			Help: "Admin requests denied by the RBAC policy",
		},
	)

	// Live feed
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_websocket_connections",
			Help: "Admin clients connected to the live security event feed",
		},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAttack counts a detector match.
func RecordAttack(detector string, blocked bool) {
	action := "logged"
	if blocked {
		action = "blocked"
	}
	AttacksDetected.WithLabelValues(detector, action).Inc()
}

// RecordRateLimitDecision counts a limiter outcome.
func RecordRateLimitDecision(tier, outcome string) {
	RateLimitDecisions.WithLabelValues(tier, outcome).Inc()
}

// RecordLoginAttempt counts a login outcome.
func RecordLoginAttempt(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordPasswordValidation counts a password policy decision.
func RecordPasswordValidation(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	PasswordValidations.WithLabelValues(outcome).Inc()
}

// RecordPasswordHistoryError counts a history store failure.
func RecordPasswordHistoryError(failOpen bool) {
	resolution := "fail_closed"
	if failOpen {
		resolution = "fail_open"
	}
	PasswordHistoryErrors.WithLabelValues(resolution).Inc()
}

// RecordAuditEvent counts a written security event.
func RecordAuditEvent(eventType, severity string) {
	AuditEventsTotal.WithLabelValues(eventType, severity).Inc()
}
