// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLegacySSEServer(t *testing.T, baseURL string) *LegacySSEServerTransport {
	t.Helper()
	d := NewDispatcher(DispatcherOptions{})
	d.RegisterRequestHandler("ping", nil, HandlerFunc(func(ctx *RequestContext, params any) (any, error) {
		return map[string]any{"ok": true}, nil
	}), PeerLocal)
	return NewLegacySSEServerTransport(d, LegacySSEServerOptions{BaseURL: baseURL, KeepAlive: time.Hour})
}

func TestLegacySSEClientServerRoundTrip(t *testing.T) {
	var transport *LegacySSEServerTransport
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	transport = newTestLegacySSEServer(t, srv.URL)
	transport.RegisterRoutes(mux)

	client := NewLegacySSEClientTransport(LegacySSEClientOptions{BaseURL: srv.URL})
	received := make(chan Message, 1)
	client.OnMessage(func(m Message) { received <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Close()

	req := &Request{ID: NewNumberID(1), Method: "ping"}
	if err := client.Send(context.Background(), req); err != nil {
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
		t.Fatal("timed out waiting for the response over the SSE stream")
	}
}

func TestLegacySSEMessageEndpointRejectsUnknownSession(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	transport := newTestLegacySSEServer(t, srv.URL)
	transport.RegisterRoutes(mux)

	resp, err := http.Post(srv.URL+"/messages?sessionId=nonexistent", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLegacySSEMessageEndpointRequiresSessionID(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	transport := newTestLegacySSEServer(t, srv.URL)
	transport.RegisterRoutes(mux)

	resp, err := http.Post(srv.URL+"/messages", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLegacySSEClientSendBeforeReadyBlocksUntilContextDone(t *testing.T) {
	client := NewLegacySSEClientTransport(LegacySSEClientOptions{BaseURL: "http://unused.invalid"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Send(ctx, &Request{ID: NewNumberID(1), Method: "ping"})
	if err == nil {
		t.Fatal("Send before Start/ready: want an error once the context deadline passes")
	}
}
