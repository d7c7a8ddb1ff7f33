// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package detection

import (
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/tomtom215/gatekeeper/internal/audit"
)

// Detector names used in findings and metrics.
const (
	DetectorSQLInjection = "sql_injection"
	DetectorXSS          = "xss"
)

// Detector inspects a single string value for an attack pattern.
type Detector interface {
	// Name identifies the detector in findings and metrics.
	Name() string

	// EventType is the audit event emitted when the detector matches.
	EventType() audit.EventType

	// Detect reports whether value contains the attack pattern.
	Detect(value string) bool

	// Enabled returns whether the detector is active.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// DefaultSQLPatterns is the built-in SQL injection pattern set.
var DefaultSQLPatterns = []string{
	`(?i)\bunion\b(\s+all|\s+distinct)?\s+select\b`,
	`(?i)'\s*(or|and)\s+['"]?\w+['"]?\s*(=|<|>|\blike\b)\s*['"]?\w+`,
	`(?i)\b(or|and)\s+(\d+)\s*=\s*(\d+)\b`,
	`(?i)'\s*(--|#|/\*)`,
	`(?i);\s*(drop\s+(table|database)|delete\s+from|insert\s+into|update\s+\w+\s+set|truncate\s+table|alter\s+table|exec(ute)?\s*\(|shutdown\b)`,
	`(?i)(\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b)`,
	`(?i)\b(information_schema|xp_cmdshell|sp_executesql)\b`,
}

// DefaultXSSPatterns is the built-in XSS pattern set.
var DefaultXSSPatterns = []string{
	`(?i)<\s*/?\s*script\b`,
	`(?i)<[^>]*\son[a-z]+\s*=`,
	`(?i)["'\s/]on(error|load|click|mouseover|mouseenter|focus|blur|submit|change|input|keydown|keyup|toggle|animationstart)\s*=`,
	`(?i)\b(javascript|vbscript)\s*:`,
	`(?i)\bdata\s*:\s*text/html`,
	`(?i)<\s*(iframe|object|embed|applet|base|meta)\b`,
	`(?i)<\s*svg\b[^>]*\bonload\b`,
	`(?i)<\s*form\b[^>]*\bname\s*=`,
	`(?i)\bsrcdoc\s*=`,
	`(?i)\bdocument\s*\.\s*(cookie|domain|write)\b`,
	`(?i)\bexpression\s*\(`,
}

// PatternDetector matches values against a compiled regular expression set.
type PatternDetector struct {
	name      string
	eventType audit.EventType
	patterns  []*regexp.Regexp
	enabled   atomic.Bool
}

// NewPatternDetector compiles patterns into an enabled detector. All
// compilation errors are reported together.
func NewPatternDetector(name string, eventType audit.EventType, patterns []string) (*PatternDetector, error) {
	if name == "" {
		return nil, errors.New("detector name is required")
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("detector %s: at least one pattern is required", name)
	}

	d := &PatternDetector{
		name:      name,
		eventType: eventType,
		patterns:  make([]*regexp.Regexp, 0, len(patterns)),
	}

	var errs []error
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("detector %s pattern %d: %w", name, i, err))
			continue
		}
		d.patterns = append(d.patterns, re)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	d.enabled.Store(true)
	return d, nil
}

// NewSQLInjectionDetector returns the SQL injection detector. Empty
// patterns select DefaultSQLPatterns.
func NewSQLInjectionDetector(patterns []string) (*PatternDetector, error) {
	if len(patterns) == 0 {
		patterns = DefaultSQLPatterns
	}
	return NewPatternDetector(DetectorSQLInjection, audit.EventSQLInjectionAttempt, patterns)
}

// NewXSSDetector returns the cross-site scripting detector. Empty patterns
// select DefaultXSSPatterns.
func NewXSSDetector(patterns []string) (*PatternDetector, error) {
	if len(patterns) == 0 {
		patterns = DefaultXSSPatterns
	}
	return NewPatternDetector(DetectorXSS, audit.EventXSSAttempt, patterns)
}

// Name implements Detector.
func (d *PatternDetector) Name() string { return d.name }

// EventType implements Detector.
func (d *PatternDetector) EventType() audit.EventType { return d.eventType }

// Detect implements Detector.
func (d *PatternDetector) Detect(value string) bool {
	if value == "" {
		return false
	}
	for _, re := range d.patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// Enabled implements Detector.
func (d *PatternDetector) Enabled() bool { return d.enabled.Load() }

// SetEnabled implements Detector.
func (d *PatternDetector) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// PatternCount returns the number of compiled patterns.
func (d *PatternDetector) PatternCount() int { return len(d.patterns) }
