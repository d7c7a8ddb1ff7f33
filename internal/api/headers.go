// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/gatekeeper/internal/config"
	"github.com/tomtom215/gatekeeper/internal/logging"
)

// BuildCSP assembles the Content-Security-Policy from the configured
// source lists. Sources containing ';', ',' or whitespace are dropped so
// configuration cannot inject directives. An empty list falls back to
// 'self'.
func BuildCSP(cfg config.HeadersConfig) string {
	directives := []struct {
		name    string
		sources []string
	}{
		{"default-src", cfg.DefaultSrc},
		{"script-src", cfg.ScriptSrc},
		{"style-src", cfg.StyleSrc},
		{"connect-src", cfg.ConnectSrc},
		{"img-src", cfg.ImgSrc},
		{"font-src", cfg.FontSrc},
	}

	var b strings.Builder
	for _, d := range directives {
		b.WriteString(d.name)
		n := 0
		for _, src := range d.sources {
			if src == "" || strings.ContainsAny(src, ";, \t\r\n") {
				logging.Warn().Str("directive", d.name).Str("source", logging.Truncate(src, 100)).
					Msg("Ignoring invalid CSP source")
				continue
			}
			b.WriteByte(' ')
			b.WriteString(src)
			n++
		}
		if n == 0 {
			b.WriteString(" 'self'")
		}
		b.WriteString("; ")
	}
	b.WriteString("frame-ancestors 'self'; object-src 'none'; base-uri 'self'; form-action 'self'")
	return b.String()
}

// SecurityHeaders sets the hardening headers on every response before
// calling next. The values are computed once from cfg.
func SecurityHeaders(cfg config.HeadersConfig) func(http.Handler) http.Handler {
	csp := BuildCSP(cfg)
	hsts := ""
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if hsts != "" && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
				h.Set("Strict-Transport-Security", hsts)
			}

			next.ServeHTTP(w, r)
		})
	}
}
