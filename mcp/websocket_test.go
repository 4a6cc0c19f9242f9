// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestWebSocketServer(t *testing.T) *WebSocketServerTransport {
	t.Helper()
	d := NewDispatcher(DispatcherOptions{})
	d.RegisterRequestHandler("ping", nil, HandlerFunc(func(ctx *RequestContext, params any) (any, error) {
		return map[string]any{"ok": true}, nil
	}), PeerLocal)
	return NewWebSocketServerTransport(d, WebSocketServerOptions{})
}

func TestWebSocketClientServerRoundTrip(t *testing.T) {
	transport := newTestWebSocketServer(t)
	srv := httptest.NewServer(transport)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := NewWebSocketClientTransport(ctx, WebSocketClientOptions{URL: wsURL})
	if err != nil {
		t.Fatalf("NewWebSocketClientTransport: %v", err)
	}
	defer client.Close()

	received := make(chan Message, 1)
	client.OnMessage(func(m Message) { received <- m })
	client.Start(ctx)

	req := &Request{ID: NewNumberID(1), Method: "ping"}
	if err := client.Send(ctx, req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-received:
		result, ok := msg.(*Result)
		if !ok {
			t.Fatalf("received message type %T, want *Result", msg)
		}
		if result.IsError() {
			t.Fatalf("result carried an error: %v", result.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the response over the websocket")
	}
}

func TestWebSocketClientDialFailsAgainstNonWebSocketServer(t *testing.T) {
	// A bare httptest.Server answering plain HTTP never upgrades, so the
	// dial itself fails before the subprotocol check is even reached;
	// this exercises the dial-error path of NewWebSocketClientTransport.
	srv := httptest.NewServer(http.NewServeMux())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := NewWebSocketClientTransport(ctx, WebSocketClientOptions{URL: wsURL}); err == nil {
		t.Fatal("NewWebSocketClientTransport: want an error dialing a non-websocket server")
	}
}
