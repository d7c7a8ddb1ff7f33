// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

//go:build !nats

package eventbus

import "github.com/ThreeDotsLabs/watermill/message"

// Available reports whether NATS support is compiled in.
const Available = false

// NewNATSPublisher returns ErrNATSUnavailable. Build with -tags nats.
func NewNATSPublisher(NATSConfig) (message.Publisher, error) {
	return nil, ErrNATSUnavailable
}

// EmbeddedServer is unavailable without the nats build tag.
type EmbeddedServer struct{}

// NewEmbeddedServer returns ErrNATSUnavailable. Build with -tags nats.
func NewEmbeddedServer(string, int, string) (*EmbeddedServer, error) {
	return nil, ErrNATSUnavailable
}

// ClientURL returns "".
func (s *EmbeddedServer) ClientURL() string { return "" }

// Shutdown is a no-op.
func (s *EmbeddedServer) Shutdown() {}
