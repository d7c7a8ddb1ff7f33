// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package audit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// BufferSize is the capacity of the async write buffer.
	BufferSize int

	// WriteTimeout bounds each store and sink write.
	WriteTimeout time.Duration

	// LogEvents also writes every event to the application log.
	LogEvents bool

	// Clock stamps events. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WriteTimeout: 5 * time.Second,
		LogEvents:    true,
		Clock:        clockwork.NewRealClock(),
	}
}

// Logger is the asynchronous security event logger. All methods are safe
// on a nil *Logger, which discards events.
type Logger struct {
	cfg   Config
	store Store

	mu    sync.RWMutex
	sinks []Sink

	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// NewLogger creates a logger writing to store and the given sinks and
// starts its writer goroutine. store may be nil.
//
//nolint:gocritic // Config is small and copied once
func NewLogger(store Store, cfg Config, sinks ...Sink) *Logger {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	l := &Logger{
		cfg:       cfg,
		store:     store,
		sinks:     sinks,
		eventChan: make(chan *Event, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// AddSink registers an extra sink. Sinks added after events were logged
// only see later events.
func (l *Logger) AddSink(s Sink) {
	if l == nil || s == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// LogSecurityEvent records an event that is not tied to an HTTP request.
func (l *Logger) LogSecurityEvent(eventType EventType, severity Severity, fields Fields) {
	if l == nil {
		return
	}
	l.Log(l.newEvent(eventType, severity, &fields))
}

// LogSecurityEventFromRequest records an event, filling actor, resource,
// method, request ID and source from r. Values in fields take precedence.
func (l *Logger) LogSecurityEventFromRequest(r *http.Request, eventType EventType, severity Severity, fields Fields) {
	if l == nil || r == nil {
		return
	}

	ip := ClientIP(r)
	if fields.Actor == "" {
		fields.Actor = ActorFromContext(r.Context())
	}
	if fields.Actor == "" {
		fields.Actor = "ip:" + ip
	}
	if fields.Resource == "" {
		fields.Resource = r.URL.Path
	}
	if fields.Method == "" {
		fields.Method = r.Method
	}

	event := l.newEvent(eventType, severity, &fields)
	event.RequestID = logging.RequestIDFromContext(r.Context())
	event.SourceIP = ip
	event.UserAgent = logging.Truncate(r.UserAgent(), 256)
	l.Log(event)
}

func (l *Logger) newEvent(eventType EventType, severity Severity, f *Fields) *Event {
	if !severity.Valid() {
		logging.Warn().Str("severity", string(severity)).Str("type", string(eventType)).
			Msg("Unknown audit severity, recording as medium")
		severity = SeverityMedium
	}
	var details map[string]any
	if len(f.Details) > 0 {
		details = make(map[string]any, len(f.Details))
		for k, v := range f.Details {
			details[k] = v
		}
	}
	return &Event{
		Type:         eventType,
		Severity:     severity,
		Actor:        f.Actor,
		Resource:     f.Resource,
		Method:       f.Method,
		Action:       f.Action,
		Success:      f.Success,
		Details:      details,
		ErrorMessage: f.ErrorMessage,
	}
}

// Log enqueues a prepared event. It never blocks and never panics.
func (l *Logger) Log(event *Event) {
	if l == nil || event == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().Interface("panic", rec).Msg("Recovered panic while logging audit event")
		}
	}()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.cfg.Clock.Now().UTC()
	}

	if l.closed.Load() {
		metrics.AuditEventsDropped.Inc()
		return
	}

	select {
	case l.eventChan <- event:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).
			Msg("Audit event buffer full, dropping event")
	}
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().Interface("panic", rec).Str("event_id", event.ID).Msg("Recovered panic in audit sink")
		}
	}()

	metrics.RecordAuditEvent(string(event.Type), string(event.Severity))

	if l.cfg.LogEvents {
		logEvent(event)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()

	if l.store != nil {
		if err := l.store.Save(ctx, event); err != nil {
			metrics.AuditSinkErrors.WithLabelValues("store").Inc()
			logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
		}
	}

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Write(ctx, event); err != nil {
			metrics.AuditSinkErrors.WithLabelValues(s.Name()).Inc()
			logging.Error().Err(err).Str("sink", s.Name()).Str("event_id", event.ID).
				Msg("Failed to write audit event to sink")
		}
	}
}

func logEvent(event *Event) {
	var e *zerolog.Event
	if event.Severity.Rank() >= SeverityHigh.Rank() {
		e = logging.Warn()
	} else {
		e = logging.Info()
	}

	e = e.Str("component", "audit").
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("severity", string(event.Severity)).
		Str("actor", logging.RedactIdentifier(event.Actor)).
		Bool("success", event.Success)

	if event.Resource != "" {
		e = e.Str("resource", event.Resource)
	}
	if event.Method != "" {
		e = e.Str("method", event.Method)
	}
	if event.RequestID != "" {
		e = e.Str("request_id", event.RequestID)
	}
	if event.ErrorMessage != "" {
		e = e.Str("error_message", logging.Truncate(event.ErrorMessage, 200))
	}
	for k, v := range event.Details {
		if s, ok := v.(string); ok {
			e = e.Str("detail."+k, logging.RedactValue(k, s))
			continue
		}
		e = e.Interface("detail."+k, v)
	}
	e.Msg("Security event")
}

// Close drains buffered events and stops the writer. Events logged after
// Close are dropped.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.stopOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopChan)
	})
	l.wg.Wait()
	return nil
}

// Store returns the backing store, or nil.
func (l *Logger) Store() Store {
	if l == nil {
		return nil
	}
	return l.store
}

// Query retrieves events matching filter from the store.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	return l.store.Query(ctx, filter)
}

// Count returns the number of stored events matching filter.
func (l *Logger) Count(ctx context.Context, filter Filter) (int64, error) {
	if l == nil || l.store == nil {
		return 0, nil
	}
	return l.store.Count(ctx, filter)
}

type contextKey string

const actorKey contextKey = "audit_actor"

// ContextWithActor attaches the authenticated actor identifier to ctx.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor stored by ContextWithActor, or "".
func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey).(string); ok {
		return a
	}
	return ""
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// not consulted here; the router's RealIP middleware rewrites RemoteAddr
// when the deployment trusts its proxies.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
