// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/tomtom215/gatekeeper/internal/api"
	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/authz"
	"github.com/tomtom215/gatekeeper/internal/config"
	"github.com/tomtom215/gatekeeper/internal/detection"
	"github.com/tomtom215/gatekeeper/internal/lockout"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/password"
	"github.com/tomtom215/gatekeeper/internal/ratelimit"
	"github.com/tomtom215/gatekeeper/internal/supervisor"
	"github.com/tomtom215/gatekeeper/internal/websocket"
)

const (
	backendRedis  = "redis"
	backendDuckDB = "duckdb"
)

// app owns every component built from the configuration. Close releases
// them in reverse construction order.
type app struct {
	cfg        *config.Config
	handler    http.Handler
	audit      *audit.Logger
	auditStore audit.Store
	limiter    *ratelimit.Limiter
	tracker    *lockout.Tracker
	hub        *websocket.Hub

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	checks := make(map[string]api.HealthCheck)

	var rdb *redis.Client
	if cfg.RateLimit.Backend == backendRedis || cfg.Lockout.Backend == backendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	// Audit trail
	if cfg.Audit.Backend == backendDuckDB {
		store, err := audit.OpenDuckDBStore(ctx, cfg.Audit.DuckDBPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.auditStore = store
		logging.Info().Str("path", cfg.Audit.DuckDBPath).Msg("Audit events stored in DuckDB")
	} else {
		a.auditStore = audit.NewMemoryStore(cfg.Audit.MaxEvents)
	}
	checks["audit_store"] = func(ctx context.Context) error {
		_, err := a.auditStore.Count(ctx, audit.Filter{})
		return err
	}

	minSeverity, _ := audit.ParseSeverity(cfg.Audit.StreamMinSeverity)
	a.hub = websocket.NewHub(minSeverity)

	sinks := []audit.Sink{a.hub}
	sink, closeBus, err := newEventSink(cfg.NATS)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		sinks = append(sinks, sink)
		a.closers = append(a.closers, closeBus)
	}

	a.audit = audit.NewLogger(a.auditStore, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: 5 * time.Second,
		LogEvents:    true,
	}, sinks...)
	a.closers = append(a.closers, a.audit.Close)

	// Rate limiting
	var rlStore ratelimit.Store = ratelimit.NewMemoryStore(nil)
	if cfg.RateLimit.Backend == backendRedis {
		rlStore = ratelimit.NewRedisStore(rdb, cfg.Redis.KeyPrefix, nil)
	}
	a.limiter = ratelimit.New(rlStore, a.audit, ratelimit.Config{
		Policies:          ratePolicies(cfg.RateLimit),
		Disabled:          cfg.RateLimit.Disabled,
		ViolationLogRate:  rate.Limit(cfg.RateLimit.ViolationLogRate),
		ViolationLogBurst: cfg.RateLimit.ViolationLogBurst,
	})

	// Account lockout
	var lockStore lockout.Store = lockout.NewMemoryStore()
	if cfg.Lockout.Backend == backendRedis {
		lockStore = lockout.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.Lockout.Duration, nil)
	}
	a.tracker = lockout.NewTracker(lockStore, a.audit, lockout.Config{
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		Duration:          cfg.Lockout.Duration,
	})

	// Password policy and history
	var history password.HistoryStore = password.NewMemoryHistoryStore()
	if cfg.Badger.Path != "" {
		db, err := badger.Open(badger.DefaultOptions(cfg.Badger.Path).WithLogger(nil))
		if err != nil {
			return nil, fmt.Errorf("open password history at %s: %w", cfg.Badger.Path, err)
		}
		a.closers = append(a.closers, db.Close)
		history = password.NewBadgerHistoryStore(db)
	}
	pwCfg := password.DefaultConfig()
	pwCfg.Policy = passwordPolicy(cfg.Password)
	passwords := password.NewService(history, a.audit, pwCfg)

	scanner, err := detection.NewDefaultScanner(cfg.Detection.SQLPatterns, cfg.Detection.XSSPatterns)
	if err != nil {
		return nil, err
	}

	creds := api.NewMemoryCredentials()
	if cfg.Security.AdminUsername != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Security.AdminPassword), cfg.Password.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		if err := creds.SetPasswordHash(ctx, cfg.Security.AdminUsername, string(hash)); err != nil {
			return nil, err
		}
	}

	deps := api.Dependencies{
		Config:       cfg,
		Audit:        a.audit,
		Scanner:      scanner,
		Sanitizer:    detection.NewSanitizer(),
		Limiter:      a.limiter,
		Lockout:      a.tracker,
		Passwords:    passwords,
		Credentials:  creds,
		Hub:          a.hub,
		HealthChecks: checks,
	}
	if cfg.Security.JWTSecret != "" {
		if deps.Tokens, err = authz.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL, nil); err != nil {
			return nil, err
		}
		if deps.Enforcer, err = authz.NewEnforcer(""); err != nil {
			return nil, err
		}
	} else {
		logging.Warn().Msg("JWT_SECRET is not set, admin API disabled")
	}

	if a.handler, err = api.NewRouter(deps); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// addServices registers the long-running parts of the app with tree.
func (a *app) addServices(tree *supervisor.Tree) {
	tree.AddMaintenanceService(lockout.NewSweeper(a.tracker, a.cfg.Lockout.SweepInterval, nil))
	tree.AddMaintenanceService(&ratelimit.Janitor{Limiter: a.limiter})
	tree.AddMaintenanceService(&audit.Retention{Store: a.auditStore, MaxAge: a.cfg.Audit.Retention})

	tree.AddMessagingService(a.hub)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.handler,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, a.cfg.Server.ShutdownTimeout))
}

// Close releases every resource. The audit logger is drained before the
// stores it writes to are closed.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}

func ratePolicies(c config.RateLimitConfig) map[ratelimit.Tier]ratelimit.Policy {
	return map[ratelimit.Tier]ratelimit.Policy{
		ratelimit.TierAuth:  {Limit: c.Auth.Limit, Window: c.Auth.Window},
		ratelimit.TierAPI:   {Limit: c.API.Limit, Window: c.API.Window},
		ratelimit.TierAI:    {Limit: c.AI.Limit, Window: c.AI.Window},
		ratelimit.TierWrite: {Limit: c.Write.Limit, Window: c.Write.Window},
	}
}

func passwordPolicy(c config.PasswordConfig) password.Policy {
	return password.Policy{
		MinLength:        c.MinLength,
		RequireUpper:     c.RequireUpper,
		RequireLower:     c.RequireLower,
		RequireDigit:     c.RequireDigit,
		RequireSpecial:   c.RequireSpecial,
		MinStrengthScore: c.MinStrengthScore,
		HistoryCount:     c.HistoryCount,
		BcryptCost:       c.BcryptCost,
		HistoryFailOpen:  c.HistoryFailOpen,
	}
}
