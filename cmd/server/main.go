// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package main runs the Gatekeeper HTTP server.
//
// Startup order:
//
//  1. Configuration: defaults, optional YAML file, environment (koanf)
//  2. Logging: zerolog with the configured level and format
//  3. Stores: Redis for rate limits and lockouts when selected, BadgerDB
//     for password history when BADGER_PATH is set, DuckDB or memory for
//     the audit trail
//  4. Event sinks: the websocket hub and, with NATS_ENABLED, a NATS
//     publisher (build with -tags nats)
//  5. Router: security headers, attack detection, tiered rate limits
//  6. Supervisor tree: HTTP server, hub and the cleanup loops
//
// SIGINT and SIGTERM cancel the root context; the supervisor stops the
// HTTP server gracefully and the stores are closed afterwards.
//
// Admin bearer tokens are minted offline with the same JWT_SECRET:
//
//	JWT_SECRET=... ./gatekeeper -issue-token security-admin
//	JWT_SECRET=... ./gatekeeper -issue-token carol -role auditor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/gatekeeper/internal/authz"
	"github.com/tomtom215/gatekeeper/internal/config"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/supervisor"
)

func main() {
	issueToken := flag.String("issue-token", "", "print an admin API bearer token for `subject` and exit")
	role := flag.String("role", "", "role claim of the issued token (admin or auditor)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if *issueToken != "" {
		if err := printToken(os.Stdout, cfg, *issueToken, *role); err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		return
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Gatekeeper stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("detection_mode", cfg.Detection.Mode).
		Str("rate_limit_backend", cfg.RateLimit.Backend).
		Str("lockout_backend", cfg.Lockout.Backend).
		Str("audit_backend", cfg.Audit.Backend).
		Msg("Starting Gatekeeper")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	a.addServices(tree)

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return nil
}

// printToken writes a signed bearer token followed by a newline.
func printToken(w io.Writer, cfg *config.Config, subject, role string) error {
	if cfg.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	switch role {
	case "", authz.RoleAdmin, authz.RoleAuditor:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	tokens, err := authz.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL, nil)
	if err != nil {
		return err
	}
	tok, err := tokens.Issue(subject, role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, tok)
	return err
}
