// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/gatekeeper/internal/audit"
)

func testEvent() *audit.Event {
	return &audit.Event{
		ID:        "evt-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:      audit.EventSQLInjectionAttempt,
		Severity:  audit.SeverityMedium,
		Actor:     "ip:1.2.3.4",
		Details:   map[string]any{"field": "user.name"},
	}
}

func TestSinkPublishes(t *testing.T) {
	t.Parallel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := pubsub.Subscribe(ctx, DefaultTopic)
	if err != nil {
		t.Fatal(err)
	}

	sink := NewSink(pubsub, SinkConfig{})
	defer sink.Close()

	if sink.Name() != "eventbus" || sink.Topic() != DefaultTopic {
		t.Errorf("Name/Topic = %q/%q", sink.Name(), sink.Topic())
	}
	if err := sink.Write(ctx, testEvent()); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.UUID != "evt-1" {
			t.Errorf("UUID = %q", msg.UUID)
		}
		if msg.Metadata.Get(MetadataType) != string(audit.EventSQLInjectionAttempt) ||
			msg.Metadata.Get(MetadataSeverity) != "medium" ||
			msg.Metadata.Get(MetadataActor) != "ip:1.2.3.4" {
			t.Errorf("metadata = %v", msg.Metadata)
		}
		got, err := DecodeEvent(msg)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != "evt-1" || got.Details["field"] != "user.name" {
			t.Errorf("decoded = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

type failingPublisher struct {
	calls atomic.Int32
}

var errBroker = errors.New("broker down")

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls.Add(1)
	return errBroker
}

func (p *failingPublisher) Close() error { return nil }

func TestSinkBreakerOpens(t *testing.T) {
	t.Parallel()

	pub := &failingPublisher{}
	sink := NewSink(pub, SinkConfig{FailureThreshold: 2, OpenTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		if err := sink.Write(context.Background(), testEvent()); err == nil {
			t.Fatalf("write %d succeeded", i)
		}
	}
	if n := pub.calls.Load(); n != 2 {
		t.Errorf("publisher calls = %d, want 2", n)
	}
}

func TestSinkClosed(t *testing.T) {
	t.Parallel()

	sink := NewSink(&failingPublisher{}, SinkConfig{})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := sink.Write(context.Background(), testEvent()); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write after Close = %v", err)
	}
}

func TestSinkAsAuditSink(t *testing.T) {
	t.Parallel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := pubsub.Subscribe(ctx, "alerts")
	if err != nil {
		t.Fatal(err)
	}

	cfg := audit.DefaultConfig()
	cfg.LogEvents = false
	logger := audit.NewLogger(audit.NewMemoryStore(10), cfg, NewSink(pubsub, SinkConfig{Topic: "alerts"}))
	logger.LogSecurityEvent(audit.EventLockoutTriggered, audit.SeverityHigh, audit.Fields{Actor: "user:alice"})

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.Metadata.Get(MetadataType) != string(audit.EventLockoutTriggered) {
			t.Errorf("metadata = %v", msg.Metadata)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit logger did not forward the event")
	}
	_ = logger.Close()
}

func TestNATSAvailabilityStub(t *testing.T) {
	t.Parallel()
	if Available {
		t.Skip("nats support compiled in")
	}
	if _, err := NewNATSPublisher(NATSConfig{}); !errors.Is(err, ErrNATSUnavailable) {
		t.Errorf("NewNATSPublisher = %v", err)
	}
}
