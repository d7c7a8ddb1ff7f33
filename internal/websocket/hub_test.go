// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/gatekeeper/internal/audit"
)

func startHub(t *testing.T, minSeverity audit.Severity) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub(minSeverity)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, done
}

func fakeClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHubForwardsEventsBySeverity(t *testing.T) {
	t.Parallel()

	hub, _, _ := startHub(t, audit.SeverityMedium)
	client := fakeClient(hub, 8)
	hub.Register <- client

	_ = hub.Write(context.Background(), &audit.Event{ID: "low", Severity: audit.SeverityLow})
	_ = hub.Write(context.Background(), &audit.Event{ID: "high", Severity: audit.SeverityHigh})

	msg := receive(t, client)
	if msg.Type != MessageTypeSecurityEvent {
		t.Fatalf("Type = %q", msg.Type)
	}
	if ev, ok := msg.Data.(*audit.Event); !ok || ev.ID != "high" {
		t.Errorf("Data = %#v, want event high", msg.Data)
	}
	if hub.Name() != "websocket" {
		t.Errorf("Name = %q", hub.Name())
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	t.Parallel()

	hub, _, _ := startHub(t, "")
	slow := fakeClient(hub, 1)
	fast := fakeClient(hub, 8)
	hub.Register <- slow
	hub.Register <- fast

	for i := 0; i < 3; i++ {
		hub.BroadcastJSON(MessageTypeSecurityEvent, i)
	}
	for i := 0; i < 3; i++ {
		receive(t, fast)
	}

	// slow got one message, then its channel was closed.
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("slow client channel still open")
	}
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}
}

func TestHubUnregisterAndShutdown(t *testing.T) {
	t.Parallel()

	hub, cancel, done := startHub(t, "")
	a := fakeClient(hub, 1)
	b := fakeClient(hub, 1)
	hub.Register <- a
	hub.Register <- b
	hub.Unregister <- a
	hub.Unregister <- a

	if _, ok := <-a.send; ok {
		t.Error("unregistered client channel still open")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-b.send; ok {
		t.Error("client channel still open after shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d", hub.ClientCount())
	}
}

func TestUpgraderOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"missing origin", []string{"*"}, "", false},
		{"wildcard", []string{"*"}, "https://any.example", true},
		{"listed", []string{"https://admin.example"}, "https://admin.example", true},
		{"unlisted", []string{"https://admin.example"}, "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			up := Upgrader(tt.allowed)
			if got := up.CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientEndToEnd(t *testing.T) {
	t.Parallel()

	hub, _, _ := startHub(t, "")
	up := Upgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, "alice")
		hub.Register <- client
		client.Start()
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://admin.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong Message
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatal(err)
	}
	if pong.Type != MessageTypePong {
		t.Fatalf("Type = %q, want pong", pong.Type)
	}

	// The pong proves the client is registered.
	_ = hub.Write(context.Background(), &audit.Event{ID: "evt-9", Type: audit.EventXSSAttempt, Severity: audit.SeverityMedium})

	var got struct {
		Type string      `json:"type"`
		Data audit.Event `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != MessageTypeSecurityEvent || got.Data.ID != "evt-9" || got.Data.Type != audit.EventXSSAttempt {
		t.Errorf("received %+v", got)
	}
}
