// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Tier names a class of endpoints sharing one limit.
type Tier string

const (
	TierAuth  Tier = "auth"
	TierAPI   Tier = "api"
	TierAI    Tier = "ai"
	TierWrite Tier = "write"
)

// Tiers lists the built-in tiers.
var Tiers = []Tier{TierAuth, TierAPI, TierAI, TierWrite}

// ParseTier converts a name to a Tier. "login" is accepted for TierAuth.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auth", "login":
		return TierAuth, nil
	case "api":
		return TierAPI, nil
	case "ai":
		return TierAI, nil
	case "write":
		return TierWrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// Policy is the (limit, window) pair of a tier.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Valid reports whether the policy can be enforced.
func (p Policy) Valid() bool {
	return p.Limit > 0 && p.Window > 0
}

// DefaultPolicies returns the built-in tier policies.
func DefaultPolicies() map[Tier]Policy {
	return map[Tier]Policy{
		TierAuth:  {Limit: 5, Window: 15 * time.Minute},
		TierAPI:   {Limit: 100, Window: time.Minute},
		TierAI:    {Limit: 50, Window: time.Hour},
		TierWrite: {Limit: 30, Window: time.Minute},
	}
}
