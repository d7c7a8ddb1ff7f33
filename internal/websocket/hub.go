// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package websocket

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/gatekeeper/internal/audit"
	"github.com/tomtom215/gatekeeper/internal/logging"
	"github.com/tomtom215/gatekeeper/internal/metrics"
)

// Message types.
const (
	MessageTypeSecurityEvent = "security_event"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is the envelope for everything sent over the feed.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks connected clients and broadcasts security events to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	minSeverity audit.Severity
}

// NewHub creates a hub that forwards events at or above minSeverity. An
// invalid severity forwards everything.
func NewHub(minSeverity audit.Severity) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		broadcast:   make(chan Message, 256),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		minSeverity: minSeverity,
	}
}

// Serve runs the hub until ctx is canceled, then closes every client.
// Lifecycle events are handled before broadcasts so a client registered
// before an event was logged receives it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// String implements fmt.Stringer for suture.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	logging.Info().Uint64("client_id", client.id).
		Str("subject", logging.RedactIdentifier(client.subject)).
		Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WebSocketConnections.Dec()
		logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b *Client) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return clients
}

// broadcastToClients delivers message in client ID order. Clients whose
// buffer is full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			metrics.WebSocketConnections.Dec()
			logging.Warn().Uint64("client_id", client.id).Msg("websocket client too slow, disconnecting")
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WebSocketConnections.Sub(float64(len(clients)))

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Name implements audit.Sink.
func (h *Hub) Name() string { return "websocket" }

// Write implements audit.Sink. It never blocks; when the broadcast buffer
// is full the event is dropped for live clients only.
func (h *Hub) Write(_ context.Context, event *audit.Event) error {
	if h.minSeverity.Valid() && event.Severity.Rank() < h.minSeverity.Rank() {
		return nil
	}
	h.BroadcastJSON(MessageTypeSecurityEvent, event)
	return nil
}

// BroadcastJSON queues a message for every client.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// Upgrader returns an upgrader accepting the given origins. "*" accepts
// any origin; requests without an Origin header are rejected.
func Upgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				logging.Warn().Msg("websocket connection rejected: missing Origin header")
				return false
			}
			if slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin) {
				return true
			}
			logging.Warn().Str("origin", logging.Truncate(origin, 100)).Msg("websocket connection rejected from unauthorized origin")
			return false
		},
	}
}
