// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package config loads Gatekeeper configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Password  PasswordConfig  `koanf:"password"`
	Lockout   LockoutConfig   `koanf:"lockout"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Detection DetectionConfig `koanf:"detection"`
	Headers   HeadersConfig   `koanf:"headers"`
	Audit     AuditConfig     `koanf:"audit"`
	Redis     RedisConfig     `koanf:"redis"`
	Badger    BadgerConfig    `koanf:"badger"`
	NATS      NATSConfig      `koanf:"nats"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes bounds the body read by attack detection.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// SecurityConfig holds admin API credentials and CORS settings.
type SecurityConfig struct {
	// JWTSecret signs admin bearer tokens. Empty disables the admin API.
	JWTSecret      string        `koanf:"jwt_secret"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	CORSOrigins    []string      `koanf:"cors_origins"`
	TrustedProxies bool          `koanf:"trusted_proxies"`
	// AdminUsername and AdminPassword seed the built-in credential store
	// with one login account. Both empty leaves it empty.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
}

// PasswordConfig mirrors the password policy thresholds.
type PasswordConfig struct {
	MinLength        int  `koanf:"min_length"`
	MinStrengthScore int  `koanf:"min_strength_score"`
	HistoryCount     int  `koanf:"history_count"`
	BcryptCost       int  `koanf:"bcrypt_cost"`
	RequireUpper     bool `koanf:"require_upper"`
	RequireLower     bool `koanf:"require_lower"`
	RequireDigit     bool `koanf:"require_digit"`
	RequireSpecial   bool `koanf:"require_special"`
	// HistoryFailOpen allows a password change when the history store is
	// unavailable. Set false to reject instead.
	HistoryFailOpen bool `koanf:"history_fail_open"`
}

// LockoutConfig controls the failed-login lockout tracker.
type LockoutConfig struct {
	MaxFailedAttempts int           `koanf:"max_failed_attempts"`
	Duration          time.Duration `koanf:"duration"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	// Backend is memory or redis.
	Backend string `koanf:"backend"`
}

// TierConfig is one rate-limit tier.
type TierConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

// RateLimitConfig holds the four rate-limit tiers.
type RateLimitConfig struct {
	Disabled bool `koanf:"disabled"`
	// Backend is memory or redis.
	Backend string     `koanf:"backend"`
	Auth    TierConfig `koanf:"auth"`
	API     TierConfig `koanf:"api"`
	AI      TierConfig `koanf:"ai"`
	Write   TierConfig `koanf:"write"`
	// ViolationLogRate is the number of violation events per second logged
	// per identifier; excess violations are only counted in metrics.
	ViolationLogRate  float64 `koanf:"violation_log_rate"`
	ViolationLogBurst int     `koanf:"violation_log_burst"`
}

// DetectionConfig controls request attack detection.
type DetectionConfig struct {
	Enabled bool `koanf:"enabled"`
	// Mode is block or log_only.
	Mode string `koanf:"mode"`
	// SQLPatterns and XSSPatterns replace the built-in sets when non-empty.
	SQLPatterns []string `koanf:"sql_patterns"`
	XSSPatterns []string `koanf:"xss_patterns"`
	// SkipPaths are request paths exempt from scanning (exact match).
	SkipPaths []string `koanf:"skip_paths"`
}

// HeadersConfig lists the Content-Security-Policy source allow-lists.
type HeadersConfig struct {
	DefaultSrc []string `koanf:"default_src"`
	ScriptSrc  []string `koanf:"script_src"`
	StyleSrc   []string `koanf:"style_src"`
	ConnectSrc []string `koanf:"connect_src"`
	ImgSrc     []string `koanf:"img_src"`
	FontSrc    []string `koanf:"font_src"`
	HSTSMaxAge int      `koanf:"hsts_max_age"`
}

// AuditConfig controls the security event pipeline.
type AuditConfig struct {
	// Backend is memory or duckdb.
	Backend    string        `koanf:"backend"`
	DuckDBPath string        `koanf:"duckdb_path"`
	BufferSize int           `koanf:"buffer_size"`
	MaxEvents  int           `koanf:"max_events"`
	Retention  time.Duration `koanf:"retention"`
	// StreamMinSeverity is the lowest severity pushed to websocket
	// subscribers.
	StreamMinSeverity string `koanf:"stream_min_severity"`
}

// RedisConfig is used by the redis rate-limit and lockout backends.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// BadgerConfig locates the password history database. An empty Path keeps
// history in memory.
type BadgerConfig struct {
	Path string `koanf:"path"`
}

// NATSConfig controls publishing of security events to NATS JetStream.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	Subject        string        `koanf:"subject"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
