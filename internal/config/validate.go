// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package config

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	validLogLevels = map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// Bcrypt bounds; duplicated here so config does not depend on x/crypto.
const (
	minBcryptCost = 4
	maxBcryptCost = 31
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateSecurity,
		c.validatePassword,
		c.validateLockout,
		c.validateRateLimit,
		c.validateDetection,
		c.validateAudit,
		c.validateNATS,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if (c.Security.AdminUsername == "") != (c.Security.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain the wildcard origin")
		}
	}
	return nil
}

func (c *Config) validatePassword() error {
	p := c.Password
	if p.MinLength < 8 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 8 (got %d)", p.MinLength)
	}
	if p.MinStrengthScore < 0 || p.MinStrengthScore > 4 {
		return fmt.Errorf("PASSWORD_MIN_STRENGTH_SCORE must be between 0 and 4")
	}
	if p.HistoryCount < 0 {
		return fmt.Errorf("PASSWORD_HISTORY_COUNT must not be negative")
	}
	if p.BcryptCost < minBcryptCost || p.BcryptCost > maxBcryptCost {
		return fmt.Errorf("PASSWORD_BCRYPT_COST must be between %d and %d", minBcryptCost, maxBcryptCost)
	}
	return nil
}

func (c *Config) validateLockout() error {
	if c.Lockout.MaxFailedAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Lockout.SweepInterval <= 0 {
		return fmt.Errorf("LOCKOUT_SWEEP_INTERVAL must be positive")
	}
	return validateBackend("LOCKOUT_BACKEND", c.Lockout.Backend, "memory", "redis")
}

func (c *Config) validateRateLimit() error {
	tiers := map[string]TierConfig{
		"auth":  c.RateLimit.Auth,
		"api":   c.RateLimit.API,
		"ai":    c.RateLimit.AI,
		"write": c.RateLimit.Write,
	}
	for name, tier := range tiers {
		if tier.Limit < 1 {
			return fmt.Errorf("rate_limit.%s.limit must be at least 1", name)
		}
		if tier.Window <= 0 {
			return fmt.Errorf("rate_limit.%s.window must be positive", name)
		}
	}
	if c.RateLimit.ViolationLogRate <= 0 || c.RateLimit.ViolationLogBurst < 1 {
		return fmt.Errorf("rate_limit violation log rate and burst must be positive")
	}
	return validateBackend("RATE_LIMIT_BACKEND", c.RateLimit.Backend, "memory", "redis")
}

func (c *Config) validateDetection() error {
	if c.Detection.Mode != "block" && c.Detection.Mode != "log_only" {
		return fmt.Errorf("DETECTION_MODE must be one of: block, log_only")
	}
	var errs []error
	for _, p := range append(append([]string{}, c.Detection.SQLPatterns...), c.Detection.XSSPatterns...) {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("invalid detection pattern %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateAudit() error {
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	if c.Audit.Backend == "duckdb" && c.Audit.DuckDBPath == "" {
		return fmt.Errorf("AUDIT_DUCKDB_PATH is required when AUDIT_BACKEND=duckdb")
	}
	switch c.Audit.StreamMinSeverity {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("AUDIT_STREAM_MIN_SEVERITY must be low, medium, high or critical")
	}
	return validateBackend("AUDIT_BACKEND", c.Audit.Backend, "memory", "duckdb")
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func validateBackend(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %v", name, allowed)
}
