// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// wsSubprotocol is the WebSocket subprotocol MCP connections negotiate,
// per _examples/original_source/crates/mcp-server/src/websocket/axum_handler.rs
// and _examples/original_source/client/src/websocket/transport.rs.
const wsSubprotocol = "mcp"

// WebSocketServerOptions configures WebSocketServerTransport.
type WebSocketServerOptions struct {
	// OutboundCapacity bounds the per-connection outbound queue. When
	// the queue is full, the goroutine answering a request waits for room
	// until the connection ends; the connection is not closed and no
	// error is reported for a client that cannot keep up.
	OutboundCapacity int
	HandshakeTimeout time.Duration
	Sessions         SessionManagerOptions
	Logger           *slog.Logger
}

func (o WebSocketServerOptions) withDefaults() WebSocketServerOptions {
	if o.OutboundCapacity <= 0 {
		o.OutboundCapacity = 64
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// WebSocketServerTransport serves MCP over a single long-lived WebSocket
// connection per client, as an alternative to the streamable HTTP
// transport for peers that prefer a persistent full-duplex socket.
// Grounded on _examples/original_source/crates/mcp-server/src/websocket/axum_handler.rs.
type WebSocketServerTransport struct {
	opts       WebSocketServerOptions
	dispatcher *Dispatcher
	sessions   *SessionManager
	upgrader   websocket.Upgrader
}

// NewWebSocketServerTransport wires a Dispatcher to the WebSocket surface.
func NewWebSocketServerTransport(d *Dispatcher, opts WebSocketServerOptions) *WebSocketServerTransport {
	opts = opts.withDefaults()
	return &WebSocketServerTransport{
		opts:       opts,
		dispatcher: d,
		sessions:   NewSessionManager(opts.Sessions),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: opts.HandshakeTimeout,
			Subprotocols:     []string{wsSubprotocol},
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and serves
// MCP over it until the connection closes or the request context ends.
func (t *WebSocketServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := t.sessions.CreateSession()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer t.sessions.RemoveSession(session.SessionID)

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.opts.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan []byte, t.opts.OutboundCapacity)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.readPump(ctx, conn, session, outbound) })
	g.Go(func() error { return t.writePump(ctx, conn, outbound) })
	if err := g.Wait(); err != nil {
		t.opts.Logger.Debug("websocket session ended", "session", session.SessionID, "error", err)
	}
	conn.Close()
}

func (t *WebSocketServerTransport) readPump(ctx context.Context, conn *websocket.Conn, session *SessionState, outbound chan<- []byte) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			t.opts.Logger.Warn("dropping unparseable websocket frame", "error", err)
			continue
		}
		switch m := msg.(type) {
		case *Request:
			go func() {
				result := t.dispatcher.DispatchRequest(ctx, session.SessionID, m, DispatchOptions{Cancel: ctx.Done()})
				body, err := EncodeMessage(result)
				if err != nil {
					return
				}
				select {
				case outbound <- body:
				case <-ctx.Done():
				}
			}()
		case *Notification:
			t.dispatcher.DispatchNotification(ctx, session.SessionID, m)
		case *Result:
			// Server-initiated requests are not yet issued by this
			// transport; an unsolicited Result frame is ignored.
		}
	}
}

func (t *WebSocketServerTransport) writePump(ctx context.Context, conn *websocket.Conn, outbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body, ok := <-outbound:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, body); err != nil {
				return err
			}
		}
	}
}

// WebSocketClientOptions configures WebSocketClientTransport.
type WebSocketClientOptions struct {
	URL              string
	Headers          http.Header
	OutboundCapacity int
	Logger           *slog.Logger
}

func (o WebSocketClientOptions) withDefaults() WebSocketClientOptions {
	if o.OutboundCapacity <= 0 {
		o.OutboundCapacity = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// WebSocketClientTransport drives the client side of the WebSocket
// transport: one background read pump delivering decoded messages via
// OnMessage, plus a bounded outbound queue drained by a write pump.
// Grounded on _examples/original_source/client/src/websocket/transport.rs.
type WebSocketClientTransport struct {
	opts WebSocketClientOptions
	conn *websocket.Conn

	outbound  chan []byte
	onMessage func(Message)
	onError   func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebSocketClientTransport dials url and negotiates the "mcp"
// subprotocol. The background pumps are not started until Start is
// called.
func NewWebSocketClientTransport(ctx context.Context, opts WebSocketClientOptions) (*WebSocketClientTransport, error) {
	opts = opts.withDefaults()
	dialer := websocket.Dialer{Subprotocols: []string{wsSubprotocol}}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, opts.Headers)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.URL, err)
	}
	if resp != nil && resp.Header.Get("Sec-WebSocket-Protocol") != wsSubprotocol {
		conn.Close()
		return nil, fmt.Errorf("server did not accept %q subprotocol", wsSubprotocol)
	}
	return &WebSocketClientTransport{
		opts:     opts,
		conn:     conn,
		outbound: make(chan []byte, opts.OutboundCapacity),
	}, nil
}

// OnMessage registers the callback invoked for every message received.
func (t *WebSocketClientTransport) OnMessage(f func(Message)) { t.onMessage = f }

// OnError registers the callback invoked when a pump exits on error.
func (t *WebSocketClientTransport) OnError(f func(error)) { t.onError = f }

// Start launches the background read and write pumps.
func (t *WebSocketClientTransport) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return t.readPump(ctx) })
		g.Go(func() error { return t.writePump(ctx) })
		if err := g.Wait(); err != nil && t.onError != nil {
			t.onError(err)
		}
	}()
}

func (t *WebSocketClientTransport) readPump(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			t.opts.Logger.Warn("dropping unparseable websocket frame", "error", err)
			continue
		}
		if t.onMessage != nil {
			t.onMessage(msg)
		}
	}
}

func (t *WebSocketClientTransport) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-t.outbound:
			if err := t.conn.WriteMessage(websocket.BinaryMessage, body); err != nil {
				return err
			}
		}
	}
}

// Send enqueues msg for the write pump. It returns once the frame is
// queued, not once it is written; WebSocket is full-duplex so responses
// to requests arrive via OnMessage rather than as a direct return value.
func (t *WebSocketClientTransport) Send(ctx context.Context, msg Message) error {
	body, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	select {
	case t.outbound <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying connection and stops the background pumps.
func (t *WebSocketClientTransport) Close() error {
	err := t.conn.Close()
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return err
}
