// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package logging

import (
	"strings"
)

// maxLoggedLen caps free-form strings written to logs.
const maxLoggedLen = 200

// sensitiveKeys never have their values written verbatim.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"new_password":  true,
	"old_password":  true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"secret":        true,
	"api_key":       true,
	"authorization": true,
	"cookie":        true,
}

// RedactToken keeps the first and last four characters of a token.
// Example: "eyJhbGciOiJIUzI1NiJ9.abc" -> "eyJh....abc"
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactIdentifier masks the value part of a "kind:value" rate-limit or
// lockout identifier. IP identifiers are left intact because they are
// needed for incident response.
//
//	RedactIdentifier("user:alice@example.com") -> "user:al***@example.com"
//	RedactIdentifier("ip:1.2.3.4")             -> "ip:1.2.3.4"
func RedactIdentifier(id string) string {
	kind, value, found := strings.Cut(id, ":")
	if !found {
		return RedactUsername(id)
	}
	if kind == "ip" {
		return id
	}
	if strings.Contains(value, "@") {
		return kind + ":" + RedactEmail(value)
	}
	return kind + ":" + RedactUsername(value)
}

// RedactUsername keeps the first two characters.
func RedactUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

// RedactEmail masks the local part of an address.
func RedactEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:2] + "***" + domain
}

// RedactValue redacts a value according to its key name.
func RedactValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return "[REDACTED]"
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return RedactEmail(value)
	}
	return Truncate(value, maxLoggedLen)
}

// Truncate shortens s to maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
