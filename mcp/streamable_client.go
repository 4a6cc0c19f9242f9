// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HTTPStatusError is returned by StreamableClientTransport.Send when the
// server answers with a status >= 400.
type HTTPStatusError struct {
	Status int
	Body   []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, string(e.Body))
}

// StreamableClientOptions configures StreamableClientTransport.
type StreamableClientOptions struct {
	BaseURL       string
	EndpointPath  string
	Headers       http.Header
	AutoReconnect bool
	Reconnect     ReconnectOptions
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

func (o StreamableClientOptions) withDefaults() StreamableClientOptions {
	if o.EndpointPath == "" {
		o.EndpointPath = defaultEndpointPath
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StreamableClientTransport drives the client side of the streamable HTTP
// transport: one background SSE reader plus POST-based sends. The
// reconnect loop follows the shape of
// _examples/original_source/client/src/http/legacy_sse.rs.
type StreamableClientTransport struct {
	opts StreamableClientOptions

	mu        sync.RWMutex
	sessionID string
	lastEvent string

	onMessage func(Message)
	onError   func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamableClientTransport returns a transport that has not yet
// started its background driver; call Start to begin.
func NewStreamableClientTransport(opts StreamableClientOptions) *StreamableClientTransport {
	return &StreamableClientTransport{opts: opts.withDefaults()}
}

// OnMessage registers the callback invoked for every Message event
// received over SSE.
func (t *StreamableClientTransport) OnMessage(f func(Message)) { t.onMessage = f }

// OnError registers the callback invoked when the SSE driver hits an
// unrecoverable error (after reconnection is disabled or exhausted).
func (t *StreamableClientTransport) OnError(f func(error)) { t.onError = f }

// Start launches the background SSE driver.
func (t *StreamableClientTransport) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx)
}

func (t *StreamableClientTransport) run(ctx context.Context) {
	defer close(t.done)
	backoff := NewBackoff(t.opts.Reconnect)
	for {
		err := t.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if !t.opts.AutoReconnect {
			if t.onError != nil {
				t.onError(err)
			}
			return
		}
		delay, berr := backoff.NextDelay()
		if berr != nil {
			if t.onError != nil {
				t.onError(berr)
			}
			return
		}
		t.opts.Logger.Warn("sse connection lost, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (t *StreamableClientTransport) connectOnce(ctx context.Context) error {
	url := t.opts.BaseURL + t.opts.EndpointPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	t.mu.RLock()
	if t.sessionID != "" {
		req.Header.Set(headerSessionID, t.sessionID)
	}
	if t.lastEvent != "" {
		req.Header.Set(headerLastEventID, t.lastEvent)
	}
	t.mu.RUnlock()
	for k, vs := range t.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &HTTPStatusError{Status: resp.StatusCode, Body: body}
	}
	if sid := resp.Header.Get(headerSessionID); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	parser := NewSSEParser()
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			events, perr := parser.Feed(append(line, '\n'))
			if perr != nil {
				return perr
			}
			for _, pe := range events {
				t.handleParsed(pe)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (t *StreamableClientTransport) handleParsed(pe ParsedSseEvent) {
	ev, err := pe.ToTyped()
	if err != nil {
		t.opts.Logger.Warn("dropping unparseable sse event", "error", err)
		return
	}
	if pe.ID != "" {
		t.mu.Lock()
		t.lastEvent = pe.ID
		t.mu.Unlock()
	}
	switch ev.Kind {
	case SseSessionReady:
		t.mu.Lock()
		t.sessionID = ev.SessionID
		t.mu.Unlock()
	case SseMessage:
		if t.onMessage != nil {
			t.onMessage(ev.Message)
		}
	case SsePing, SseEndpoint:
		// Endpoint URL is informational for the streamable transport,
		// since the client already knows its POST URL; ping is a
		// keep-alive only, never surfaced as a Message.
	}
}

// Send POSTs msg to the endpoint, attaching the current session id and
// any configured headers.
func (t *StreamableClientTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	body, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	url := t.opts.BaseURL + t.opts.EndpointPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	t.mu.RLock()
	if t.sessionID != "" {
		req.Header.Set(headerSessionID, t.sessionID)
	}
	t.mu.RUnlock()
	for k, vs := range t.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: respBody}
	}
	if sid := resp.Header.Get(headerSessionID); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
	if resp.StatusCode == http.StatusAccepted || len(respBody) == 0 {
		return nil, nil
	}
	decoded, err := DecodeMessage(respBody)
	if err != nil {
		return nil, err
	}
	result, ok := decoded.(*Result)
	if !ok {
		return nil, fmt.Errorf("expected a result frame, got %T", decoded)
	}
	return result, nil
}

// Close requests a DELETE teardown (best-effort) and stops the
// background driver.
func (t *StreamableClientTransport) Close(ctx context.Context) error {
	t.mu.RLock()
	sid := t.sessionID
	t.mu.RUnlock()
	var closeErr error
	if sid != "" {
		url := t.opts.BaseURL + t.opts.EndpointPath
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err == nil {
			req.Header.Set(headerSessionID, sid)
			resp, err := t.opts.HTTPClient.Do(req)
			if err != nil {
				closeErr = err
			} else {
				resp.Body.Close()
			}
		}
	}
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return closeErr
}
