// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/gatekeeper/internal/authz"
	"github.com/tomtom215/gatekeeper/internal/config"
	"github.com/tomtom215/gatekeeper/internal/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef-main"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Security.JWTSecret = testSecret
	cfg.Security.AdminUsername = "root"
	cfg.Security.AdminPassword = "Vq8#nW3$zR6!tY1"
	cfg.Password.BcryptCost = bcrypt.MinCost
	return cfg
}

func TestRatePolicies(t *testing.T) {
	t.Parallel()

	got := ratePolicies(config.Default().RateLimit)
	want := ratelimit.DefaultPolicies()
	if len(got) != len(want) {
		t.Fatalf("got %d tiers, want %d", len(got), len(want))
	}
	for tier, p := range want {
		if got[tier] != p {
			t.Errorf("tier %s = %+v, want %+v", tier, got[tier], p)
		}
	}
}

func TestPasswordPolicy(t *testing.T) {
	t.Parallel()

	c := config.Default().Password
	c.HistoryFailOpen = false
	p := passwordPolicy(c)
	if p.MinLength != 12 || p.HistoryCount != 12 || p.MinStrengthScore != 3 || p.BcryptCost != 12 {
		t.Errorf("thresholds not copied: %+v", p)
	}
	if !p.RequireUpper || !p.RequireLower || !p.RequireDigit || !p.RequireSpecial {
		t.Errorf("character classes not copied: %+v", p)
	}
	if p.HistoryFailOpen {
		t.Error("HistoryFailOpen should follow config")
	}
}

func TestNewAppServesRequests(t *testing.T) {
	t.Parallel()

	a, err := newApp(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"audit_store"`) {
		t.Errorf("health body missing audit_store component: %s", rec.Body)
	}

	body := `{"identifier":"root","password":"Vq8#nW3$zR6!tY1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("seeded admin login = %d, body %s", rec.Code, rec.Body)
	}
}

func TestNewAppWithoutSecretDisablesAdmin(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Security.JWTSecret = ""
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/lockouts", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("admin route without secret = %d, want 404", rec.Code)
	}
}

func TestNewAppRedisKeyLayout(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateLimit.Backend = backendRedis
	cfg.Lockout.Backend = backendRedis
	cfg.Redis.Addr = mr.Addr()

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		bytes.NewBufferString(`{"identifier":"root","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login = %d, body %s", rec.Code, rec.Body)
	}

	want := []string{
		"gatekeeper:lockout:user:root",
		"gatekeeper:ratelimit:auth:ip:192.0.2.1",
	}
	for _, key := range want {
		if !mr.Exists(key) {
			t.Errorf("key %q missing; keys = %q", key, mr.Keys())
		}
	}
	if n := len(mr.Keys()); n != len(want) {
		t.Errorf("keys = %q, want exactly %q", mr.Keys(), want)
	}
}

func TestNewAppRedisUnreachable(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.RateLimit.Backend = backendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := newApp(ctx, cfg); err == nil {
		t.Fatal("expected an error for an unreachable redis")
	}
}

func TestPrintToken(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	var out bytes.Buffer
	if err := printToken(&out, cfg, "carol", authz.RoleAuditor); err != nil {
		t.Fatalf("printToken: %v", err)
	}

	tokens, err := authz.NewTokenManager(testSecret, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Validate(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Subject != "carol" || claims.Role != authz.RoleAuditor {
		t.Errorf("claims = %s/%s", claims.Subject, claims.Role)
	}

	if err := printToken(&out, cfg, "carol", "root"); err == nil {
		t.Error("expected an error for an unknown role")
	}
	cfg.Security.JWTSecret = ""
	if err := printToken(&out, cfg, "carol", ""); err == nil {
		t.Error("expected an error without a secret")
	}
}
