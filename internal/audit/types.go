// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package audit

import (
	"context"
	"errors"
	"time"
)

// EventType categorizes security events.
type EventType string

const (
	// Attack detection
	EventSQLInjectionAttempt EventType = "attack.sql_injection"
	EventXSSAttempt          EventType = "attack.xss"
	EventExcessiveNesting    EventType = "attack.excessive_nesting"

	// Rate limiting
	EventRateLimitViolation EventType = "rate_limit.violation"

	// Authentication and lockout
	EventLoginSuccess      EventType = "auth.login_success"
	EventLoginFailure      EventType = "auth.login_failure"
	EventLockoutTriggered  EventType = "auth.lockout"
	EventLockoutCleared    EventType = "auth.unlock"
	EventLockedLoginDenied EventType = "auth.locked_denied"

	// Password policy
	EventPasswordChanged            EventType = "password.changed"
	EventPasswordRejected           EventType = "password.rejected"
	EventPasswordHistoryUnavailable EventType = "password.history_unavailable"

	// Admin authorization
	EventAuthzDenied EventType = "authz.denied"
)

// Severity is the severity of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four defined severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity converts a string to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(s)
	return sev, sev.Valid()
}

// Event is a single security event. Events are never modified after they
// are handed to the Logger.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`

	// Actor is the identifier of the caller (user id or "ip:<addr>").
	Actor    string `json:"actor"`
	Resource string `json:"resource,omitempty"`
	Method   string `json:"method,omitempty"`
	Action   string `json:"action,omitempty"`
	Success  bool   `json:"success"`

	// Details holds event-specific data. Never put request values or
	// credentials here, only field paths, counters and identifiers.
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Fields are the caller-supplied parts of an event.
type Fields struct {
	Success      bool
	Actor        string
	Resource     string
	Method       string
	Action       string
	Details      map[string]any
	ErrorMessage string
}

// ErrEventNotFound is returned by Store.Get for unknown IDs.
var ErrEventNotFound = errors.New("audit event not found")

// Store persists events for later query.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	Query(ctx context.Context, filter Filter) ([]Event, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// DeleteBefore removes events older than cutoff and returns how many
	// were removed. Used only by retention.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sink receives every event after it has been stored.
type Sink interface {
	Name() string
	Write(ctx context.Context, event *Event) error
}

// Filter selects events. Zero values match everything.
type Filter struct {
	Types       []EventType `json:"types,omitempty"`
	MinSeverity Severity    `json:"min_severity,omitempty"`
	Actor       string      `json:"actor,omitempty"`
	Success     *bool       `json:"success,omitempty"`
	Start       *time.Time  `json:"start,omitempty"`
	End         *time.Time  `json:"end,omitempty"`
	RequestID   string      `json:"request_id,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	Offset      int         `json:"offset,omitempty"`
}

// DefaultFilter returns the newest 100 events.
func DefaultFilter() Filter {
	return Filter{Limit: 100}
}

// Matches reports whether e satisfies every criterion in f. Limit and
// Offset are ignored.
func (f *Filter) Matches(e *Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinSeverity != "" && e.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	return true
}
