// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// DefaultTopic is used when SinkConfig.Topic is empty.
const DefaultTopic = "security.events"

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("event bus sink is closed")

// Message metadata keys.
const (
	MetadataType     = "event_type"
	MetadataSeverity = "severity"
	MetadataActor    = "actor"
)

// SinkConfig configures a Sink.
type SinkConfig struct {
	Topic string

	// FailureThreshold is the number of consecutive publish failures that
	// opens the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
}

// DefaultSinkConfig returns the default topic with a 5 failure, 30 second
// breaker.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Topic:            DefaultTopic,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Sink publishes audit events.
type Sink struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewSink wraps publisher. The sink owns the publisher and closes it.
func NewSink(publisher message.Publisher, cfg SinkConfig) *Sink {
	def := DefaultSinkConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "eventbus-publish",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event bus circuit breaker state changed")
		},
	})

	return &Sink{publisher: publisher, topic: cfg.Topic, breaker: breaker}
}

// Name implements audit.Sink.
func (s *Sink) Name() string { return "eventbus" }

// Topic returns the publish topic.
func (s *Sink) Topic() string { return s.topic }

// Write implements audit.Sink.
func (s *Sink) Write(ctx context.Context, event *audit.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataType, string(event.Type))
	msg.Metadata.Set(MetadataSeverity, string(event.Severity))
	msg.Metadata.Set(MetadataActor, event.Actor)

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.publisher.Publish(s.topic, msg)
	})
	if err != nil {
		metrics.AuditEventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	metrics.AuditEventsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Close closes the publisher. Further writes fail with ErrSinkClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.publisher.Close()
}

// DecodeEvent decodes a message produced by Sink.
func DecodeEvent(msg *message.Message) (*audit.Event, error) {
	var event audit.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &event, nil
}
