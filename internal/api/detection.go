// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/detection"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// AttackDetection scans request body, query and path parameters before
// any route handler runs.
type AttackDetection struct {
	scanner *detection.Scanner
	mode    detection.Mode
	audit   *audit.Logger
	maxBody int64
	skip    map[string]struct{}
}

// NewAttackDetection creates the middleware. maxBody bounds the body that
// is buffered for scanning; larger bodies are rejected with 413.
func NewAttackDetection(scanner *detection.Scanner, mode detection.Mode, auditLogger *audit.Logger, maxBody int64, skipPaths []string) *AttackDetection {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &AttackDetection{
		scanner: scanner,
		mode:    mode,
		audit:   auditLogger,
		maxBody: maxBody,
		skip:    skip,
	}
}

// Middleware returns the chi middleware.
func (d *AttackDetection) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := d.skip[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		input := make(map[string]any, 3)

		if r.Body != nil && r.Body != http.NoBody {
			data, err := io.ReadAll(io.LimitReader(r.Body, d.maxBody+1))
			_ = r.Body.Close()
			if err != nil {
				respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Could not read request body", err)
				return
			}
			if int64(len(data)) > d.maxBody {
				respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body too large", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(data))
			if len(data) > 0 {
				input["body"] = d.decodeBody(r, data)
			}
		}

		if q := r.URL.Query(); len(q) > 0 {
			input["query"] = valuesToMap(q)
		}
		if params := routeParams(r); len(params) > 0 {
			input["params"] = params
		}

		finding := d.scanner.Scan(input)
		if finding == nil {
			next.ServeHTTP(w, r)
			return
		}

		blocked := d.mode != detection.ModeLogOnly
		if finding.Detector == detection.DetectorNesting {
			d.rejectNesting(w, r, next, finding, blocked)
			return
		}
		metrics.RecordAttack(finding.Detector, blocked)

		logging.Ctx(r.Context()).Warn().
			Str("detector", finding.Detector).
			Str("field", finding.Path).
			Str("path", r.URL.Path).
			Bool("blocked", blocked).
			Msg("Potential attack detected")

		d.audit.LogSecurityEventFromRequest(r, finding.EventType, audit.SeverityMedium, audit.Fields{
			Success: false,
			Action:  "attack_detection",
			Details: map[string]any{
				"field":    finding.Path,
				"detector": finding.Detector,
				"mode":     string(d.mode),
			},
		})

		if !blocked {
			next.ServeHTTP(w, r)
			return
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeAttackDetected,
			"Request contains potentially malicious content", nil)
	})
}

// decodeBody turns the buffered body into a scannable value. JSON and form
// bodies are decoded so findings carry field paths; anything else, and
// bodies that fail to decode, are scanned as one string.
func (d *AttackDetection) decodeBody(r *http.Request, data []byte) any {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	case mediaType == "application/x-www-form-urlencoded":
		if vals, err := url.ParseQuery(string(data)); err == nil {
			return valuesToMap(vals)
		}
	case mediaType == "multipart/form-data":
		clone := r.Clone(r.Context())
		clone.Body = io.NopCloser(bytes.NewReader(data))
		if err := clone.ParseMultipartForm(d.maxBody); err == nil {
			defer func() { _ = clone.MultipartForm.RemoveAll() }()
			return valuesToMap(clone.MultipartForm.Value)
		}
	}
	return string(data)
}

// valuesToMap converts url.Values so single values are addressed as
// query.name and repeated values as query.name.0, query.name.1.
func valuesToMap(vals map[string][]string) map[string]any {
	out := make(map[string]any, len(vals))
	for k, vs := range vals {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		out[k] = items
	}
	return out
}

// routeParams resolves the path parameters of the route r will reach.
// The middleware runs before chi has routed the request, so the route is
// matched on a scratch context.
func routeParams(r *http.Request) map[string]any {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	scratch := chi.NewRouteContext()
	if !rctx.Routes.Match(scratch, r.Method, r.URL.Path) {
		return nil
	}

	params := make(map[string]any, len(scratch.URLParams.Keys))
	for i, key := range scratch.URLParams.Keys {
		if key == "*" || i >= len(scratch.URLParams.Values) {
			continue
		}
		params[key] = scratch.URLParams.Values[i]
	}
	return params
}

// rejectNesting handles input nested beyond the scan depth: low severity
// audit, no attack metric, and INPUT_TOO_DEEP instead of ATTACK_DETECTED.
func (d *AttackDetection) rejectNesting(w http.ResponseWriter, r *http.Request, next http.Handler, finding *detection.Finding, blocked bool) {
	logging.Ctx(r.Context()).Info().
		Str("field", finding.Path).
		Str("path", r.URL.Path).
		Bool("blocked", blocked).
		Msg("Request input nested too deeply to scan")

	d.audit.LogSecurityEventFromRequest(r, finding.EventType, audit.SeverityLow, audit.Fields{
		Success: false,
		Action:  "input_validation",
		Details: map[string]any{
			"field":    finding.Path,
			"detector": finding.Detector,
			"mode":     string(d.mode),
		},
	})

	if !blocked {
		next.ServeHTTP(w, r)
		return
	}
	respondError(w, r, http.StatusBadRequest, ErrCodeInputTooDeep,
		"Request input is nested too deeply", nil)
}
