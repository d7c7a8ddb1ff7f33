// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// Messages returned by CheckHistory.
const (
	msgHistoryUnavailable = "password history is temporarily unavailable, please try again later"
	msgStrengthFallback   = "password is too easy to guess"
)

// Config configures a Service.
type Config struct {
	Policy Policy

	// Estimator defaults to NewPatternEstimator.
	Estimator Estimator

	// BreakerFailures is the number of consecutive history store failures
	// that opens the circuit breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open before letting a
	// probe through.
	BreakerTimeout time.Duration

	Clock clockwork.Clock
}

// DefaultConfig returns the default policy with a 5 failure, 30 second
// breaker.
func DefaultConfig() Config {
	return Config{
		Policy:          DefaultPolicy(),
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		Clock:           clockwork.NewRealClock(),
	}
}

// Result is the outcome of a validation. Errors holds every reason the
// password was rejected.
type Result struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors"`
	StrengthScore int      `json:"strength_score"`
}

// HistoryResult is the outcome of a reuse check.
type HistoryResult struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// Service validates, hashes and records passwords.
type Service struct {
	policy    Policy
	estimator Estimator
	history   HistoryStore
	breaker   *gobreaker.CircuitBreaker[[]HistoryRecord]
	audit     *audit.Logger
	clock     clockwork.Clock
}

// NewService creates a Service. history and auditLogger may be nil; a nil
// history disables reuse checks.
//
//nolint:gocritic // Config is copied once at construction
func NewService(history HistoryStore, auditLogger *audit.Logger, cfg Config) *Service {
	def := DefaultConfig()
	cfg.Policy.applyDefaults()
	if cfg.Estimator == nil {
		cfg.Estimator = NewPatternEstimator()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[[]HistoryRecord](gobreaker.Settings{
		Name:        "password-history",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Password history circuit breaker state changed")
		},
	})

	return &Service{
		policy:    cfg.Policy,
		estimator: cfg.Estimator,
		history:   history,
		breaker:   breaker,
		audit:     auditLogger,
		clock:     cfg.Clock,
	}
}

// Policy returns the effective policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// ValidateStrength applies the rules and the strength estimate. inputs
// are user-specific strings (username, email, display name) that make a
// password easier to guess when it contains them. The result depends only
// on the arguments.
func (s *Service) ValidateStrength(password string, inputs []string) Result {
	errs := s.policy.checkRules(password)

	est := s.estimator.Estimate(password, inputs)
	if est.Score < s.policy.MinStrengthScore {
		if len(est.Feedback) == 0 {
			errs = append(errs, msgStrengthFallback)
		}
		errs = append(errs, est.Feedback...)
	}

	if errs == nil {
		errs = []string{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs, StrengthScore: est.Score}
}

// CheckHistory reports whether candidate differs from the user's last
// HistoryCount passwords. When the history store cannot be read the
// outcome follows Policy.HistoryFailOpen; the failure is always logged.
func (s *Service) CheckHistory(ctx context.Context, userID, candidate string) HistoryResult {
	if s.history == nil || s.policy.HistoryCount == 0 || userID == "" {
		return HistoryResult{Allowed: true}
	}

	recs, err := s.breaker.Execute(func() ([]HistoryRecord, error) {
		return s.history.Recent(ctx, userID, s.policy.HistoryCount)
	})
	if err != nil {
		if s.historyUnavailable(ctx, userID, "history_check", err) {
			return HistoryResult{Allowed: true}
		}
		return HistoryResult{Allowed: false, Message: msgHistoryUnavailable}
	}

	for _, rec := range recs {
		if bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(candidate)) == nil {
			return HistoryResult{
				Allowed: false,
				Message: fmt.Sprintf("password must not match any of your last %d passwords", s.policy.HistoryCount),
			}
		}
	}
	return HistoryResult{Allowed: true}
}

// historyUnavailable logs and audits a failed history store call and
// reports whether Policy.HistoryFailOpen lets the change go ahead.
func (s *Service) historyUnavailable(ctx context.Context, userID, action string, err error) bool {
	failOpen := s.policy.HistoryFailOpen
	metrics.RecordPasswordHistoryError(failOpen)

	logging.Ctx(ctx).Error().Err(err).
		Str("user", logging.RedactIdentifier(userID)).
		Str("action", action).
		Bool("fail_open", failOpen).
		Bool("breaker_open", errors.Is(err, gobreaker.ErrOpenState)).
		Msg("Password history store unavailable")

	severity := audit.SeverityMedium
	if !failOpen {
		severity = audit.SeverityHigh
	}
	s.audit.LogSecurityEvent(audit.EventPasswordHistoryUnavailable, severity, audit.Fields{
		Success:      failOpen,
		Actor:        userID,
		Action:       action,
		ErrorMessage: err.Error(),
		Details:      map[string]any{"fail_open": failOpen},
	})
	return failOpen
}

// ValidatePasswordChange combines ValidateStrength and CheckHistory and
// returns the union of their errors.
func (s *Service) ValidatePasswordChange(ctx context.Context, userID, password string, inputs []string) Result {
	res := s.ValidateStrength(password, inputs)

	if hist := s.CheckHistory(ctx, userID, password); !hist.Allowed {
		res.Errors = append(res.Errors, hist.Message)
		res.Valid = false
	}

	metrics.RecordPasswordValidation(res.Valid)
	return res
}

// Hash returns the bcrypt hash of password at the policy cost.
func (s *Service) Hash(password string) (string, error) {
	start := s.clock.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.policy.BcryptCost)
	metrics.PasswordHashDuration.Observe(s.clock.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// RecordPassword appends hash to the user's history.
func (s *Service) RecordPassword(ctx context.Context, userID, hash string) error {
	if s.history == nil || s.policy.HistoryCount == 0 {
		return nil
	}
	_, err := s.breaker.Execute(func() ([]HistoryRecord, error) {
		return nil, s.history.Append(ctx, HistoryRecord{
			UserID:    userID,
			Hash:      hash,
			CreatedAt: s.clock.Now(),
		}, s.policy.HistoryCount)
	})
	if err != nil {
		return fmt.Errorf("record password history: %w", err)
	}
	return nil
}

// ChangePassword validates password for userID and, when valid, hashes it
// and records the hash in the history. The returned hash is empty when
// the password was rejected. A history append failure only fails the
// change when Policy.HistoryFailOpen is false.
func (s *Service) ChangePassword(ctx context.Context, userID, password string, inputs []string) (Result, string, error) {
	res := s.ValidatePasswordChange(ctx, userID, password, inputs)
	if !res.Valid {
		s.audit.LogSecurityEvent(audit.EventPasswordRejected, audit.SeverityLow, audit.Fields{
			Actor:   userID,
			Action:  "change_password",
			Details: map[string]any{"error_count": len(res.Errors), "strength_score": res.StrengthScore},
		})
		return res, "", nil
	}

	hash, err := s.Hash(password)
	if err != nil {
		return res, "", err
	}
	if err := s.RecordPassword(ctx, userID, hash); err != nil {
		if !s.historyUnavailable(ctx, userID, "history_append", err) {
			return res, "", err
		}
	}

	s.audit.LogSecurityEvent(audit.EventPasswordChanged, audit.SeverityLow, audit.Fields{
		Success: true,
		Actor:   userID,
		Action:  "change_password",
	})
	return res, hash, nil
}
