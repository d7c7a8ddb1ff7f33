// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// Policy defines the password requirements.
type Policy struct {
	// MinLength is the minimum number of characters.
	MinLength int

	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool

	// MinStrengthScore is the minimum estimator score (0 to 4).
	MinStrengthScore int

	// HistoryCount is how many previous passwords may not be reused.
	HistoryCount int

	// BcryptCost is the bcrypt work factor.
	BcryptCost int

	// HistoryFailOpen allows a change when the history store cannot be
	// read.
	HistoryFailOpen bool
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        12,
		RequireUpper:     true,
		RequireLower:     true,
		RequireDigit:     true,
		RequireSpecial:   true,
		MinStrengthScore: 3,
		HistoryCount:     12,
		BcryptCost:       12,
		HistoryFailOpen:  true,
	}
}

func (p *Policy) applyDefaults() {
	def := DefaultPolicy()
	if p.MinLength <= 0 {
		p.MinLength = def.MinLength
	}
	if p.MinStrengthScore < 0 || p.MinStrengthScore > 4 {
		p.MinStrengthScore = def.MinStrengthScore
	}
	if p.HistoryCount < 0 {
		p.HistoryCount = def.HistoryCount
	}
	if p.BcryptCost < bcrypt.MinCost || p.BcryptCost > bcrypt.MaxCost {
		p.BcryptCost = def.BcryptCost
	}
}

// charClasses holds the results of character class analysis.
type charClasses struct {
	hasUpper   bool
	hasLower   bool
	hasDigit   bool
	hasSpecial bool
}

func analyzeCharClasses(password string) charClasses {
	var cc charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			cc.hasUpper = true
		case unicode.IsLower(r):
			cc.hasLower = true
		case unicode.IsDigit(r):
			cc.hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			cc.hasSpecial = true
		}
	}
	return cc
}

// checkRules runs every deterministic rule and returns all violations.
func (p *Policy) checkRules(password string) []string {
	var errs []string

	if n := utf8.RuneCountInString(password); n < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if len(password) > maxPasswordBytes {
		errs = append(errs, fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}

	cc := analyzeCharClasses(password)
	if p.RequireUpper && !cc.hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	}
	if p.RequireLower && !cc.hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !cc.hasDigit {
		errs = append(errs, "password must contain at least one digit")
	}
	if p.RequireSpecial && !cc.hasSpecial {
		errs = append(errs, "password must contain at least one special character")
	}

	if isSingleRepeatedChar(password) {
		errs = append(errs, "password must not be a single repeated character")
	}
	if isSimpleSequence(password) {
		errs = append(errs, "password must not be a simple ascending or descending sequence")
	}

	return errs
}

func isSingleRepeatedChar(password string) bool {
	if password == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(password)
	for _, r := range password {
		if r != first {
			return false
		}
	}
	return true
}

// isSimpleSequence reports whether the whole password is an ascending or
// descending run of letters or digits, such as "abcdef" or "9876543210".
// Digit runs may wrap between 9 and 0.
func isSimpleSequence(password string) bool {
	runes := []rune(strings.ToLower(password))
	if len(runes) < 3 {
		return false
	}

	step := 0
	for i := 1; i < len(runes); i++ {
		d := seqDelta(runes[i-1], runes[i])
		if d == 0 || (step != 0 && d != step) {
			return false
		}
		step = d
	}
	return true
}

// seqDelta returns +1 or -1 when b directly follows or precedes a within
// the same character class, else 0.
func seqDelta(a, b rune) int {
	switch {
	case isDigit(a) && isDigit(b):
		switch {
		case b == a+1 || (a == '9' && b == '0'):
			return 1
		case b == a-1 || (a == '0' && b == '9'):
			return -1
		}
	case isLetter(a) && isLetter(b):
		switch b - a {
		case 1:
			return 1
		case -1:
			return -1
		}
	}
	return 0
}

func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isLetter(r rune) bool { return r >= 'a' && r <= 'z' }
