// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package validation

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,identifier"`
	Password   string `json:"password" validate:"required,max=1024"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Note       string `json:"note" validate:"nocontrol,max=8"`
	Tier       string `json:"tier" validate:"omitempty,oneof=auth api"`
}

func TestGetIsShared(t *testing.T) {
	t.Parallel()
	if Get() != Get() {
		t.Error("Get must return the shared validator")
	}
}

func TestStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  loginRequest
		want []string
	}{
		{
			name: "valid",
			req:  loginRequest{Identifier: "user:alice", Password: "secret", Email: "a@example.com", Tier: "auth"},
		},
		{
			name: "missing fields use json names",
			req:  loginRequest{},
			want: []string{"identifier is required", "password is required"},
		},
		{
			name: "identifier with whitespace",
			req:  loginRequest{Identifier: "user alice", Password: "x"},
			want: []string{"identifier must be 1 to 256 printable characters without spaces"},
		},
		{
			name: "control characters and length",
			req:  loginRequest{Identifier: "bob", Password: "x", Note: "a\x00b"},
			want: []string{"note must not contain control characters"},
		},
		{
			name: "string max",
			req:  loginRequest{Identifier: "bob", Password: "x", Note: "123456789"},
			want: []string{"note must be at most 8 characters"},
		},
		{
			name: "email and oneof",
			req:  loginRequest{Identifier: "bob", Password: "x", Email: "nope", Tier: "ai"},
			want: []string{"email must be a valid email address", "tier must be one of: auth api"},
		},
		{
			name: "identifier too long",
			req:  loginRequest{Identifier: strings.Repeat("a", 257), Password: "x"},
			want: []string{"identifier must be 1 to 256 printable characters without spaces"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Struct(&tt.req)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Struct = %v", err)
				}
				return
			}
			var verr *RequestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Struct = %v, want *RequestValidationError", err)
			}
			if got := verr.Messages(); !slices.Equal(got, tt.want) {
				t.Errorf("Messages = %q, want %q", got, tt.want)
			}
			if verr.Error() != strings.Join(tt.want, "; ") {
				t.Errorf("Error = %q", verr.Error())
			}
		})
	}
}

func TestStructNonStruct(t *testing.T) {
	t.Parallel()

	var verr *RequestValidationError
	if err := Struct("not a struct"); !errors.As(err, &verr) || verr.Fields[0].Field != "request" {
		t.Errorf("Struct(string) = %v", err)
	}
}
