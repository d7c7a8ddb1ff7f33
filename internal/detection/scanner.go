// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package detection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tomtom215/gatekeeper/internal/audit"
)

// Mode selects what happens when a detector matches.
type Mode string

const (
	// ModeBlock rejects the request.
	ModeBlock Mode = "block"

	// ModeLogOnly records the event and lets the request proceed.
	ModeLogOnly Mode = "log_only"
)

// ParseMode converts a configuration string to a Mode. Empty selects
// ModeBlock.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBlock:
		return ModeBlock, nil
	case ModeLogOnly:
		return ModeLogOnly, nil
	default:
		return "", fmt.Errorf("unknown detection mode %q", s)
	}
}

// Finding describes the first match of a scan. It intentionally carries
// no copy of the matched value.
type Finding struct {
	Detector  string
	EventType audit.EventType
	Path      string
}

// maxDepth bounds recursion into nested input. Input nested deeper is
// reported as a finding of DetectorNesting so it cannot hide a payload.
const maxDepth = 32

// DetectorNesting names findings for input nested beyond maxDepth.
const DetectorNesting = "nesting_depth"

// Scanner runs registered detectors over decoded request input.
type Scanner struct {
	mu        sync.RWMutex
	detectors []Detector
}

// NewScanner creates a scanner with the given detectors, evaluated in order.
func NewScanner(detectors ...Detector) *Scanner {
	s := &Scanner{}
	for _, d := range detectors {
		s.RegisterDetector(d)
	}
	return s
}

// NewDefaultScanner creates a scanner with the SQL injection and XSS
// detectors. Empty pattern lists select the built-in sets.
func NewDefaultScanner(sqlPatterns, xssPatterns []string) (*Scanner, error) {
	sqli, err := NewSQLInjectionDetector(sqlPatterns)
	if err != nil {
		return nil, err
	}
	xss, err := NewXSSDetector(xssPatterns)
	if err != nil {
		return nil, err
	}
	return NewScanner(sqli, xss), nil
}

// RegisterDetector appends a detector.
func (s *Scanner) RegisterDetector(d Detector) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectors = append(s.detectors, d)
}

// Detector returns the registered detector with the given name.
func (s *Scanner) Detector(name string) (Detector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.detectors {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// ListDetectors returns the registered detectors.
func (s *Scanner) ListDetectors() []Detector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Detector, len(s.detectors))
	copy(out, s.detectors)
	return out
}

func (s *Scanner) enabledDetectors() []Detector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Detector, 0, len(s.detectors))
	for _, d := range s.detectors {
		if d.Enabled() {
			out = append(out, d)
		}
	}
	return out
}

// Scan walks input, typically {"body": ..., "query": ..., "params": ...},
// and returns the first finding or nil. Map keys are visited in sorted
// order so the same input always yields the same finding.
func (s *Scanner) Scan(input map[string]any) *Finding {
	detectors := s.enabledDetectors()
	if len(detectors) == 0 || len(input) == 0 {
		return nil
	}
	return walk(detectors, "", input, 0)
}

// ScanValue walks a single value rooted at path.
func (s *Scanner) ScanValue(path string, value any) *Finding {
	detectors := s.enabledDetectors()
	if len(detectors) == 0 {
		return nil
	}
	return walk(detectors, path, value, 0)
}

func walk(detectors []Detector, path string, value any, depth int) *Finding {
	if depth > maxDepth {
		return &Finding{Detector: DetectorNesting, EventType: audit.EventExcessiveNesting, Path: path}
	}

	switch v := value.(type) {
	case string:
		for _, d := range detectors {
			if d.Detect(v) {
				return &Finding{Detector: d.Name(), EventType: d.EventType(), Path: path}
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if f := walk(detectors, joinPath(path, k), v[k], depth+1); f != nil {
				return f
			}
		}
	case []any:
		for i, item := range v {
			if f := walk(detectors, joinPath(path, strconv.Itoa(i)), item, depth+1); f != nil {
				return f
			}
		}
	case []string:
		for i, item := range v {
			if f := walk(detectors, joinPath(path, strconv.Itoa(i)), item, depth+1); f != nil {
				return f
			}
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if f := walk(detectors, joinPath(path, k), v[k], depth+1); f != nil {
				return f
			}
		}
	}
	return nil
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
