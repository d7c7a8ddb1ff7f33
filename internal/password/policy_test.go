// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"slices"
	"strings"
	"testing"
)

func TestCheckRules(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	tests := []struct {
		name     string
		password string
		want     []string
	}{
		{
			name:     "all rules pass",
			password: "Xk9#mQ2$vL7!pR4",
		},
		{
			name:     "repeated block passes rules",
			password: "Aa1!Aa1!Aa1!",
		},
		{
			name:     "too short",
			password: "Xk9#mQ2$",
			want:     []string{"password must be at least 12 characters"},
		},
		{
			name:     "missing classes collected together",
			password: "xk9mqzvlprtw",
			want: []string{
				"password must contain at least one uppercase letter",
				"password must contain at least one special character",
			},
		},
		{
			name:     "single repeated character",
			password: "############",
			want: []string{
				"password must contain at least one uppercase letter",
				"password must contain at least one lowercase letter",
				"password must contain at least one digit",
				"password must not be a single repeated character",
			},
		},
		{
			name:     "ascending letters",
			password: "abcdefghijklm",
			want: []string{
				"password must contain at least one uppercase letter",
				"password must contain at least one digit",
				"password must contain at least one special character",
				"password must not be a simple ascending or descending sequence",
			},
		},
		{
			name:     "descending digits wrapping through zero",
			password: "3210987654321",
			want: []string{
				"password must contain at least one uppercase letter",
				"password must contain at least one lowercase letter",
				"password must contain at least one special character",
				"password must not be a simple ascending or descending sequence",
			},
		},
		{
			name:     "longer than bcrypt accepts",
			password: "Xk9#mQ2$vL7!pR4" + strings.Repeat("z", 70),
			want:     []string{"password must be at most 72 bytes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := p.checkRules(tt.password)
			if !slices.Equal(got, tt.want) {
				t.Errorf("checkRules(%q) =\n  %q\nwant\n  %q", tt.password, got, tt.want)
			}
		})
	}
}

func TestIsSimpleSequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"abc", true},
		{"ZYXWV", true},
		{"1234567890", true},
		{"ab", false},
		{"abcabc", false},
		{"abd", false},
		{"a1b2", false},
		{"aaa", false},
	}
	for _, tt := range tests {
		if got := isSimpleSequence(tt.in); got != tt.want {
			t.Errorf("isSimpleSequence(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	p := Policy{MinStrengthScore: 9, BcryptCost: 1, HistoryCount: -1}
	p.applyDefaults()
	def := DefaultPolicy()
	if p.MinLength != def.MinLength || p.MinStrengthScore != def.MinStrengthScore ||
		p.BcryptCost != def.BcryptCost || p.HistoryCount != def.HistoryCount {
		t.Errorf("applyDefaults = %+v", p)
	}
}
