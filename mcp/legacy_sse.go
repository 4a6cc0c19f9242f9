// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Legacy SSE (protocol version 2024-11-05) predates the streamable HTTP
// transport: the server holds a GET /sse stream open and tells the
// client, via an "endpoint" event, the separate POST URL to send
// messages to; responses and server-initiated messages then arrive over
// the same SSE stream. Grounded on
// _examples/original_source/client/src/http/legacy_sse.rs.
//
// This transport is deprecated; new code should prefer
// StreamableServerTransport / StreamableClientTransport.

// LegacySSEServerOptions configures LegacySSEServerTransport.
type LegacySSEServerOptions struct {
	SSEPath     string
	MessagePath string
	BaseURL     string
	KeepAlive   time.Duration
	Broadcaster BroadcasterOptions
	Sessions    SessionManagerOptions
	Logger      *slog.Logger
}

func (o LegacySSEServerOptions) withDefaults() LegacySSEServerOptions {
	if o.SSEPath == "" {
		o.SSEPath = "/sse"
	}
	if o.MessagePath == "" {
		o.MessagePath = "/messages"
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// LegacySSEServerTransport serves the deprecated two-URL SSE transport
// for clients that predate the streamable HTTP transport.
type LegacySSEServerTransport struct {
	opts         LegacySSEServerOptions
	dispatcher   *Dispatcher
	sessions     *SessionManager
	broadcasters *BroadcasterRegistry
}

// NewLegacySSEServerTransport wires a Dispatcher to the legacy SSE
// surface.
func NewLegacySSEServerTransport(d *Dispatcher, opts LegacySSEServerOptions) *LegacySSEServerTransport {
	opts = opts.withDefaults()
	return &LegacySSEServerTransport{
		opts:         opts,
		dispatcher:   d,
		sessions:     NewSessionManager(opts.Sessions),
		broadcasters: NewBroadcasterRegistry(),
	}
}

// RegisterRoutes mounts the SSE and message endpoints on mux.
func (t *LegacySSEServerTransport) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(t.opts.SSEPath, t.handleSSE)
	mux.HandleFunc(t.opts.MessagePath, t.handleMessage)
}

func (t *LegacySSEServerTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	session, err := t.sessions.CreateSession()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer t.sessions.RemoveSession(session.SessionID)
	defer t.broadcasters.Remove(session.SessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	endpointURL := fmt.Sprintf("%s%s?sessionId=%s", t.opts.BaseURL, t.opts.MessagePath, session.SessionID)
	writeEvent(w, flusher, SseEvent{Kind: SseEndpoint, EndpointURL: endpointURL}, "")

	b := t.broadcasters.GetOrCreate(session.SessionID, func() *Broadcaster {
		return NewBroadcaster(session, t.sessions, t.opts.Broadcaster, t.opts.Logger)
	})
	live, unsubscribe := b.Subscribe(t.opts.Broadcaster.withDefaults().BroadcastCapacity)
	defer unsubscribe()

	keepAlive := time.NewTicker(t.opts.KeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case be, ok := <-live:
			if !ok {
				return
			}
			writeEvent(w, flusher, be.Event, be.ID)
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (t *LegacySSEServerTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := t.sessions.ValidateSession(sessionID); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b, ok := t.broadcasters.Get(sessionID)
	switch m := msg.(type) {
	case *Request:
		result := t.dispatcher.DispatchRequest(r.Context(), sessionID, m, DispatchOptions{Cancel: r.Context().Done()})
		if ok {
			b.SendMessage(result)
		}
		w.WriteHeader(http.StatusAccepted)
	case *Notification:
		t.dispatcher.DispatchNotification(r.Context(), sessionID, m)
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

// LegacySSEClientOptions configures LegacySSEClientTransport.
type LegacySSEClientOptions struct {
	BaseURL string
	SSEPath string
	Headers http.Header
	Logger  *slog.Logger
}

func (o LegacySSEClientOptions) withDefaults() LegacySSEClientOptions {
	if o.SSEPath == "" {
		o.SSEPath = "/sse"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// LegacySSEClientTransport is the client side of the deprecated two-URL
// SSE transport. Unlike StreamableClientTransport it learns its POST
// endpoint from the server rather than knowing it up front, so Send
// blocks until the "endpoint" event has arrived.
type LegacySSEClientTransport struct {
	opts   LegacySSEClientOptions
	client *http.Client

	mu           sync.RWMutex
	postEndpoint string
	ready        chan struct{}
	readyClosed  bool

	onMessage func(Message)
	onError   func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLegacySSEClientTransport constructs a transport for server. Start
// must be called before Send will succeed.
func NewLegacySSEClientTransport(opts LegacySSEClientOptions) *LegacySSEClientTransport {
	return &LegacySSEClientTransport{
		opts:   opts.withDefaults(),
		client: &http.Client{},
		ready:  make(chan struct{}),
	}
}

// OnMessage registers the callback invoked for every message received
// over the SSE stream.
func (t *LegacySSEClientTransport) OnMessage(f func(Message)) { t.onMessage = f }

// OnError registers the callback invoked when the SSE stream ends with
// an error.
func (t *LegacySSEClientTransport) OnError(f func(error)) { t.onError = f }

// Start connects to the SSE endpoint and begins processing events in
// the background.
func (t *LegacySSEClientTransport) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		if err := t.runSSELoop(ctx); err != nil && ctx.Err() == nil && t.onError != nil {
			t.onError(err)
		}
	}()
}

func (t *LegacySSEClientTransport) runSSELoop(ctx context.Context) error {
	url := strings.TrimRight(t.opts.BaseURL, "/") + t.opts.SSEPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, vs := range t.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &HTTPStatusError{Status: resp.StatusCode}
	}

	parser := NewSSEParser()
	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			events, err := parser.Feed([]byte(line))
			if err != nil {
				return err
			}
			for _, ev := range events {
				t.handleEvent(ev)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

func (t *LegacySSEClientTransport) handleEvent(ev ParsedSseEvent) {
	switch ev.Event {
	case "endpoint":
		endpoint := strings.TrimSpace(ev.Data)
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = strings.TrimRight(t.opts.BaseURL, "/") + endpoint
		}
		t.mu.Lock()
		t.postEndpoint = endpoint
		if !t.readyClosed {
			close(t.ready)
			t.readyClosed = true
		}
		t.mu.Unlock()
	case "message", "":
		typed, err := ev.ToTyped()
		if err != nil {
			t.opts.Logger.Warn("dropping unparseable legacy sse event", "error", err)
			return
		}
		if typed.Kind == SseMessage && t.onMessage != nil {
			t.onMessage(typed.Message)
		}
	}
}

// Send posts msg to the endpoint the server announced. It blocks until
// that endpoint is known or ctx is done.
func (t *LegacySSEClientTransport) Send(ctx context.Context, msg Message) error {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.mu.RLock()
	endpoint := t.postEndpoint
	t.mu.RUnlock()

	body, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range t.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &HTTPStatusError{Status: resp.StatusCode}
	}
	return nil
}

// Close cancels the background SSE loop and waits for it to exit.
func (t *LegacySSEClientTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}
