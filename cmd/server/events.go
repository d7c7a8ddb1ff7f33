// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package main

import (
	"errors"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/config"
	"github.com/tomtom215/gatekeeper/internal/eventbus"
	"github.com/tomtom215/gatekeeper/internal/logging"
)

// newEventSink builds the NATS audit sink. It returns a nil sink when
// publishing is disabled or NATS support is not compiled in; the returned
// close function shuts down the publisher and any embedded server.
func newEventSink(cfg config.NATSConfig) (audit.Sink, func() error, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	url := cfg.URL
	var embedded *eventbus.EmbeddedServer
	if cfg.EmbeddedServer {
		srv, err := eventbus.NewEmbeddedServer("127.0.0.1", -1, cfg.StoreDir)
		if errors.Is(err, eventbus.ErrNATSUnavailable) {
			logging.Warn().Msg("NATS_ENABLED is set but this build has no NATS support (build with -tags nats)")
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		embedded = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Started embedded NATS server")
	}

	pub, err := eventbus.NewNATSPublisher(eventbus.NATSConfig{
		URL:           url,
		JetStream:     !cfg.EmbeddedServer || cfg.StoreDir != "",
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
	})
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		if errors.Is(err, eventbus.ErrNATSUnavailable) {
			logging.Warn().Msg("NATS_ENABLED is set but this build has no NATS support (build with -tags nats)")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	sinkCfg := eventbus.DefaultSinkConfig()
	sinkCfg.Topic = cfg.Subject
	sink := eventbus.NewSink(pub, sinkCfg)
	logging.Info().Str("url", url).Str("topic", sink.Topic()).Msg("Publishing security events to NATS")

	closeFn := func() error {
		err := sink.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return err
	}
	return sink, closeFn, nil
}
