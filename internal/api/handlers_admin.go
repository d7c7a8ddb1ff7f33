// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/authz"
	"github.com/tomtom215/gatekeeper/internal/lockout"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/websocket"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// ListLockouts returns every currently locked identifier.
func (h *Handler) ListLockouts(w http.ResponseWriter, r *http.Request) {
	locked, err := h.lockout.ListLocked(r.Context())
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Lockout state unavailable", err)
		return
	}
	respondList(w, r, locked, int64(len(locked)))
}

// ClearLockout removes the lockout state of the identifier in the path.
// Clearing an identifier without state succeeds.
func (h *Handler) ClearLockout(w http.ResponseWriter, r *http.Request) {
	identifier, err := url.PathUnescape(chi.URLParam(r, "identifier"))
	if err != nil || identifier == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid identifier", nil)
		return
	}

	if err := h.lockout.ClearFailedLogins(r.Context(), identifier); err != nil {
		if errors.Is(err, lockout.ErrEmptyIdentifier) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid identifier", nil)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Lockout state unavailable", err)
		return
	}

	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		logging.Ctx(r.Context()).Info().
			Str("admin", logging.RedactIdentifier(p.Subject)).
			Str("identifier", logging.RedactIdentifier(identifier)).
			Msg("Lockout cleared by admin")
	}
	respondData(w, r, map[string]any{"identifier": identifier, "cleared": true})
}

// ListAuditEvents queries stored security events. Query parameters:
// type (comma list), min_severity, actor, success, request_id, start and
// end (RFC 3339), limit (default 100, max 1000) and offset.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	ctx := r.Context()
	events, err := h.audit.Query(ctx, filter)
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Audit store unavailable", err)
		return
	}
	total, err := h.audit.Count(ctx, filter)
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Audit store unavailable", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondList(w, r, events, total)
}

func parseEventFilter(q url.Values) (audit.Filter, error) {
	f := audit.DefaultFilter()

	if v := q.Get("type"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, audit.EventType(t))
			}
		}
	}
	if v := q.Get("min_severity"); v != "" {
		sev, ok := audit.ParseSeverity(v)
		if !ok {
			return f, fmt.Errorf("invalid min_severity %q", v)
		}
		f.MinSeverity = sev
	}
	f.Actor = q.Get("actor")
	f.RequestID = q.Get("request_id")

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("success must be true or false")
		}
		f.Success = &b
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &f.Start}, {"end", &f.End}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = &t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", maxEventLimit)
		}
		f.Limit = n
	} else {
		f.Limit = defaultEventLimit
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

// StreamAuditEvents upgrades to a websocket that receives security events
// as they are logged.
func (h *Handler) StreamAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Live event feed unavailable", nil)
		return
	}

	upgrader := websocket.Upgrader(h.cfg.Security.CORSOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	subject := ""
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		subject = p.Subject
	}
	client := websocket.NewClient(h.hub, conn, subject)
	h.hub.Register <- client
	client.Start()
}
