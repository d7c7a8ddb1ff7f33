// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"net/url"
	"strings"
	"testing"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/config"
)

func TestBuildCSP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.HeadersConfig
		want    []string
		notWant []string
	}{
		{
			name: "defaults",
			cfg:  config.Default().Headers,
			want: []string{
				"default-src 'self';",
				"img-src 'self' data: https:;",
				"frame-ancestors 'self'",
				"object-src 'none'",
			},
		},
		{
			name: "empty lists fall back to self",
			cfg:  config.HeadersConfig{},
			want: []string{"default-src 'self';", "script-src 'self';", "font-src 'self';"},
		},
		{
			name: "injected directives are dropped",
			cfg: config.HeadersConfig{
				ScriptSrc:  []string{"'self'", "https://cdn.example.com; script-src *"},
				ConnectSrc: []string{"wss://feed.example.com", "a,b"},
			},
			want:    []string{"script-src 'self';", "connect-src wss://feed.example.com;"},
			notWant: []string{"cdn.example.com", "script-src *", "a,b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			csp := BuildCSP(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(csp, w) {
					t.Errorf("CSP %q missing %q", csp, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(csp, nw) {
					t.Errorf("CSP %q contains %q", csp, nw)
				}
			}
		})
	}
}

func TestParseEventFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		wantErr bool
		check   func(t *testing.T, f audit.Filter)
	}{
		{
			name:  "defaults",
			query: "",
			check: func(t *testing.T, f audit.Filter) {
				if f.Limit != 100 || f.Offset != 0 || len(f.Types) != 0 || f.Success != nil {
					t.Errorf("filter = %+v", f)
				}
			},
		},
		{
			name:  "types and severity",
			query: "type=attack.sql_injection,%20attack.xss,&min_severity=high",
			check: func(t *testing.T, f audit.Filter) {
				if len(f.Types) != 2 || f.Types[1] != "attack.xss" {
					t.Errorf("types = %q", f.Types)
				}
				if f.MinSeverity != audit.SeverityHigh {
					t.Errorf("min severity = %q", f.MinSeverity)
				}
			},
		},
		{
			name:  "time range and paging",
			query: "start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z&limit=1000&offset=20&success=false",
			check: func(t *testing.T, f audit.Filter) {
				if f.Start == nil || f.End == nil || !f.Start.Before(*f.End) {
					t.Errorf("range = %v..%v", f.Start, f.End)
				}
				if f.Limit != 1000 || f.Offset != 20 {
					t.Errorf("limit = %d offset = %d", f.Limit, f.Offset)
				}
				if f.Success == nil || *f.Success {
					t.Errorf("success = %v", f.Success)
				}
			},
		},
		{name: "bad severity", query: "min_severity=urgent", wantErr: true},
		{name: "limit too large", query: "limit=1001", wantErr: true},
		{name: "negative offset", query: "offset=-1", wantErr: true},
		{name: "bad start", query: "start=yesterday", wantErr: true},
		{name: "bad success", query: "success=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			f, err := parseEventFilter(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}
