// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/gatekeeper/internal/authz"
	"github.com/tomtom215/gatekeeper/internal/detection"
	"github.com/tomtom215/gatekeeper/internal/middleware"
	"github.com/tomtom215/gatekeeper/internal/ratelimit"
)

// NewRouter builds the HTTP handler. The global middleware order is fixed:
// headers are hardened before attack detection, and detection runs before
// any route group rate limiter.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	mode, err := detection.ParseMode(cfg.Detection.Mode)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	h := newHandler(&deps)
	attacks := NewAttackDetection(deps.Scanner, mode, deps.Audit, cfg.Server.MaxBodyBytes, cfg.Detection.SkipPaths)

	keyFunc := ratelimit.KeyByIP
	if cfg.Security.TrustedProxies {
		keyFunc = ratelimit.KeyByRealIP
	}
	limit := func(tier ratelimit.Tier) func(http.Handler) http.Handler {
		return deps.Limiter.Middleware(tier, keyFunc)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.Security.TrustedProxies {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	// cors treats an empty origin list as "*", so it is only installed
	// when origins are configured.
	if len(cfg.Security.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Security.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}
	r.Use(SecurityHeaders(cfg.Headers))
	if cfg.Detection.Enabled {
		r.Use(attacks.Middleware)
	}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(limit(ratelimit.TierAuth))
		r.Post("/login", h.Login)
		r.Post("/password", h.ChangePassword)
		r.Post("/password/strength", h.PasswordStrength)
	})

	r.Route("/api/v1/ai", func(r chi.Router) {
		r.Use(limit(ratelimit.TierAI))
		r.Post("/assist", h.Assist)
	})

	r.Route("/api/v1/content", func(r chi.Router) {
		r.Use(byMethod(limit(ratelimit.TierWrite), limit(ratelimit.TierAPI)))
		r.Post("/sanitize", h.SanitizeContent)
		r.Get("/elements", h.AllowedElements)
	})

	if deps.Tokens != nil && deps.Enforcer != nil {
		guard := authz.NewMiddleware(deps.Tokens, deps.Enforcer, deps.Audit)
		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Use(limit(ratelimit.TierAPI))
			r.Use(guard.Authorize)
			r.Get("/lockouts", h.ListLockouts)
			r.Delete("/lockouts/{identifier}", h.ClearLockout)
			r.Get("/audit/events", h.ListAuditEvents)
			r.Get("/audit/stream", h.StreamAuditEvents)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})

	return r, nil
}

// byMethod applies write to mutating requests and read to everything
// else.
func byMethod(write, read func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		w, rd := write(next), read(next)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				w.ServeHTTP(rw, r)
			default:
				rd.ServeHTTP(rw, r)
			}
		})
	}
}
