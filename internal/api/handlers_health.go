// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/gatekeeper/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

type componentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	DetectionMode string            `json:"detection_mode"`
	Components    []componentHealth `json:"components"`
}

// Health runs the registered health checks. Any failing check turns the
// status to degraded and the response code to 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		DetectionMode: h.cfg.Detection.Mode,
		Components:    make([]componentHealth, 0, len(names)),
	}

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := h.checks[name](ctx)
		cancel()

		c := componentHealth{Name: name, Healthy: err == nil}
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("component", name).Msg("Health check failed")
			c.Error = "unavailable"
			resp.Status = "degraded"
		}
		resp.Components = append(resp.Components, c)
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, r, status, resp)
}
