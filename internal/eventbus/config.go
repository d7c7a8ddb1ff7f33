// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package eventbus

import (
	"errors"
	"time"
)

// ErrNATSUnavailable is returned when the binary was built without the
// nats tag.
var ErrNATSUnavailable = errors.New("nats support not compiled in: build with -tags nats")

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL           string
	JetStream     bool
	MaxReconnects int
	ReconnectWait time.Duration
}

func (c *NATSConfig) applyDefaults() {
	if c.URL == "" {
		c.URL = "nats://127.0.0.1:4222"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
}
