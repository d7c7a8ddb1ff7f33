// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

// Package detection recognizes injection payloads in request input and
// sanitizes rich-text fields before they are stored.
//
// Detection Architecture:
//
//	request body/query/params -> Scanner -> Detectors -> *Finding
//	                                                       |
//	                                                       v
//	                                  middleware: 400 + audit event (block)
//	                                              audit event only (log_only)
//
// A Scanner walks the decoded request input recursively and asks every
// enabled Detector about each string leaf. The first match stops the walk
// and is reported as a Finding carrying the detector name, the audit event
// type and the dot-joined path of the offending field (for example
// body.user.name or body.tags.2). The matched value is never part of a
// Finding.
//
// Built-in detectors:
//   - SQL injection: UNION SELECT, boolean tautologies, comment
//     terminators after a quote, stacked statements and time-based probes
//   - XSS: script tags, inline event handlers, javascript: URIs and
//     DOM-clobbering constructs such as <iframe>, <svg onload> and
//     <form name=...>
//
// Both detectors are regular-expression sets and can be replaced through
// configuration.
//
// The Sanitizer is not a request gate. It applies a bluemonday allow-list
// policy to fields that legitimately carry markup.
package detection
