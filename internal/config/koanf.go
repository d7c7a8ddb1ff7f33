// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gatekeeper/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Security: SecurityConfig{
			TokenTTL:    time.Hour,
			CORSOrigins: []string{},
		},
		Password: PasswordConfig{
			MinLength:        12,
			MinStrengthScore: 3,
			HistoryCount:     12,
			BcryptCost:       12,
			RequireUpper:     true,
			RequireLower:     true,
			RequireDigit:     true,
			RequireSpecial:   true,
			HistoryFailOpen:  true,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			Duration:          30 * time.Minute,
			SweepInterval:     5 * time.Minute,
			Backend:           "memory",
		},
		RateLimit: RateLimitConfig{
			Backend:           "memory",
			Auth:              TierConfig{Limit: 5, Window: 15 * time.Minute},
			API:               TierConfig{Limit: 100, Window: time.Minute},
			AI:                TierConfig{Limit: 50, Window: time.Hour},
			Write:             TierConfig{Limit: 30, Window: time.Minute},
			ViolationLogRate:  0.2,
			ViolationLogBurst: 3,
		},
		Detection: DetectionConfig{
			Enabled:   true,
			Mode:      "block",
			SkipPaths: []string{},
		},
		Headers: HeadersConfig{
			DefaultSrc: []string{"'self'"},
			ScriptSrc:  []string{"'self'"},
			StyleSrc:   []string{"'self'"},
			ConnectSrc: []string{"'self'"},
			ImgSrc:     []string{"'self'", "data:", "https:"},
			FontSrc:    []string{"'self'", "data:"},
			HSTSMaxAge: 31536000,
		},
		Audit: AuditConfig{
			Backend:           "memory",
			DuckDBPath:        "data/audit.duckdb",
			BufferSize:        1000,
			MaxEvents:         10000,
			Retention:         90 * 24 * time.Hour,
			StreamMinSeverity: "medium",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "gatekeeper:",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			StoreDir:      "data/nats",
			Subject:       "security.events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with the layered sources:
//  1. Default()
//  2. YAML file from CONFIG_PATH or DefaultConfigPaths (optional)
//  3. Environment variables listed in envMappings
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"detection.sql_patterns",
	"detection.xss_patterns",
	"detection.skip_paths",
	"headers.default_src",
	"headers.script_src",
	"headers.style_src",
	"headers.connect_src",
	"headers.img_src",
	"headers.font_src",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}

		// Regex patterns may legitimately contain commas, so they are
		// separated by ";;" instead.
		sep := ","
		if strings.HasSuffix(path, "_patterns") {
			sep = ";;"
		}

		var parts []string
		for _, p := range strings.Split(raw, sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_max_body_bytes":   "server.max_body_bytes",

	// Security
	"jwt_secret":      "security.jwt_secret",
	"token_ttl":       "security.token_ttl",
	"cors_origins":    "security.cors_origins",
	"trusted_proxies": "security.trusted_proxies",
	"admin_username":  "security.admin_username",
	"admin_password":  "security.admin_password",

	// Password policy
	"password_min_length":         "password.min_length",
	"password_min_strength_score": "password.min_strength_score",
	"password_history_count":      "password.history_count",
	"password_bcrypt_cost":        "password.bcrypt_cost",
	"password_history_fail_open":  "password.history_fail_open",

	// Lockout
	"lockout_max_failed_attempts": "lockout.max_failed_attempts",
	"lockout_duration":            "lockout.duration",
	"lockout_sweep_interval":      "lockout.sweep_interval",
	"lockout_backend":             "lockout.backend",

	// Rate limiting
	"disable_rate_limit":      "rate_limit.disabled",
	"rate_limit_backend":      "rate_limit.backend",
	"rate_limit_auth_limit":   "rate_limit.auth.limit",
	"rate_limit_auth_window":  "rate_limit.auth.window",
	"rate_limit_api_limit":    "rate_limit.api.limit",
	"rate_limit_api_window":   "rate_limit.api.window",
	"rate_limit_ai_limit":     "rate_limit.ai.limit",
	"rate_limit_ai_window":    "rate_limit.ai.window",
	"rate_limit_write_limit":  "rate_limit.write.limit",
	"rate_limit_write_window": "rate_limit.write.window",

	// Detection
	"detection_enabled":      "detection.enabled",
	"detection_mode":         "detection.mode",
	"detection_sql_patterns": "detection.sql_patterns",
	"detection_xss_patterns": "detection.xss_patterns",
	"detection_skip_paths":   "detection.skip_paths",

	// Headers
	"csp_script_src":  "headers.script_src",
	"csp_style_src":   "headers.style_src",
	"csp_connect_src": "headers.connect_src",
	"csp_img_src":     "headers.img_src",
	"hsts_max_age":    "headers.hsts_max_age",

	// Audit
	"audit_backend":             "audit.backend",
	"audit_duckdb_path":         "audit.duckdb_path",
	"audit_buffer_size":         "audit.buffer_size",
	"audit_max_events":          "audit.max_events",
	"audit_retention":           "audit.retention",
	"audit_stream_min_severity": "audit.stream_min_severity",

	// Stores
	"redis_addr":       "redis.addr",
	"redis_password":   "redis.password",
	"redis_db":         "redis.db",
	"redis_key_prefix": "redis.key_prefix",
	"badger_path":      "badger.path",

	// NATS
	"nats_enabled":   "nats.enabled",
	"nats_url":       "nats.url",
	"nats_embedded":  "nats.embedded_server",
	"nats_store_dir": "nats.store_dir",
	"nats_subject":   "nats.subject",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path, or ""
// to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
