// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProtocolVersion is the protocol version this client negotiates
// at initialize time.
const DefaultProtocolVersion = "2025-06-18"

// listChangedDebounce coalesces bursts of list-changed notifications
// (a server replacing many tools in quick succession) into a single
// cache invalidation instead of one refetch per notification.
const listChangedDebounce = 50 * time.Millisecond

// ClientTransport is the surface a high-level Client drives. It is
// satisfied, via the adapters below, by StreamableClientTransport,
// WebSocketClientTransport, and LegacySSEClientTransport: transports
// that answer a request synchronously (streamable HTTP) return the
// Result directly from Send; transports that are purely asynchronous
// (WebSocket, legacy SSE) return a nil Result and deliver it later
// through the OnMessage callback, where Client correlates it by id.
type ClientTransport interface {
	Start(ctx context.Context)
	OnMessage(func(Message))
	OnError(func(error))
	Send(ctx context.Context, msg Message) (*Result, error)
	Close() error
}

type streamableClientAdapter struct{ t *StreamableClientTransport }

// NewStreamableClientAdapter adapts a StreamableClientTransport to
// ClientTransport.
func NewStreamableClientAdapter(t *StreamableClientTransport) ClientTransport {
	return streamableClientAdapter{t}
}
func (a streamableClientAdapter) Start(ctx context.Context)               { a.t.Start(ctx) }
func (a streamableClientAdapter) OnMessage(f func(Message))               { a.t.OnMessage(f) }
func (a streamableClientAdapter) OnError(f func(error))                   { a.t.OnError(f) }
func (a streamableClientAdapter) Send(ctx context.Context, msg Message) (*Result, error) {
	return a.t.Send(ctx, msg)
}
func (a streamableClientAdapter) Close() error { return a.t.Close(context.Background()) }

type webSocketClientAdapter struct{ t *WebSocketClientTransport }

// NewWebSocketClientAdapter adapts a WebSocketClientTransport to
// ClientTransport.
func NewWebSocketClientAdapter(t *WebSocketClientTransport) ClientTransport {
	return webSocketClientAdapter{t}
}
func (a webSocketClientAdapter) Start(ctx context.Context) { a.t.Start(ctx) }
func (a webSocketClientAdapter) OnMessage(f func(Message)) { a.t.OnMessage(f) }
func (a webSocketClientAdapter) OnError(f func(error))     { a.t.OnError(f) }
func (a webSocketClientAdapter) Send(ctx context.Context, msg Message) (*Result, error) {
	return nil, a.t.Send(ctx, msg)
}
func (a webSocketClientAdapter) Close() error { return a.t.Close() }

type legacySSEClientAdapter struct{ t *LegacySSEClientTransport }

// NewLegacySSEClientAdapter adapts a LegacySSEClientTransport to
// ClientTransport.
func NewLegacySSEClientAdapter(t *LegacySSEClientTransport) ClientTransport {
	return legacySSEClientAdapter{t}
}
func (a legacySSEClientAdapter) Start(ctx context.Context) { a.t.Start(ctx) }
func (a legacySSEClientAdapter) OnMessage(f func(Message)) { a.t.OnMessage(f) }
func (a legacySSEClientAdapter) OnError(f func(error))     { a.t.OnError(f) }
func (a legacySSEClientAdapter) Send(ctx context.Context, msg Message) (*Result, error) {
	return nil, a.t.Send(ctx, msg)
}
func (a legacySSEClientAdapter) Close() error { return a.t.Close() }

// Root is a filesystem or URI root the client exposes to the server via
// roots/list.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Capabilities ClientCapabilities
	Roots        []Root
	Logger       *slog.Logger
}

// Client is the high-level MCP client: it drives the initialize
// handshake, correlates outbound requests with their responses, serves
// any server-initiated requests the caller registers handlers for (via
// Dispatcher), and caches the tool list until invalidated by a
// notifications/tools/list_changed notification; resource and prompt
// lists are not cached. Grounded conceptually on the
// teacher SDK's session.go/requests.go/tool.go request-correlation and
// capability-negotiation shape, rebuilt against this package's own
// Message/Dispatcher/Handler primitives and its own transport types.
type Client struct {
	name, version string
	opts          ClientOptions
	log           *slog.Logger

	transport  ClientTransport
	dispatcher *Dispatcher
	checker    *CapabilityChecker
	schemas    *schemaCache

	nextID int64

	mu      sync.Mutex
	pending map[string]chan *Result

	capsMu     sync.RWMutex
	serverCaps *ServerCapabilities

	toolsMu    sync.Mutex
	toolsCache map[string]*Tool
	toolsValid bool
	toolsTimer *time.Timer
}

// NewClient returns a Client with no transport attached; call Connect to
// establish one and perform the initialize handshake.
func NewClient(name, version string, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		name:    name,
		version: version,
		opts:    *opts,
		log:     log,
		pending: make(map[string]chan *Result),
		schemas: newSchemaCache(),
	}
	c.checker = NewCapabilityChecker(&c.opts.Capabilities, nil)
	c.dispatcher = NewDispatcher(DispatcherOptions{Checker: c.checker, Logger: log})
	c.registerBuiltins()
	return c
}

// Dispatcher exposes the Client's Dispatcher so callers can register
// handlers for server-initiated requests (sampling/createMessage,
// elicitation/create) beyond the defaults this Client wires in.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// ServerCapabilities returns the capabilities the server advertised at
// initialize, or nil if Connect has not completed.
func (c *Client) ServerCapabilities() *ServerCapabilities {
	c.capsMu.RLock()
	defer c.capsMu.RUnlock()
	return c.serverCaps
}

func (c *Client) registerBuiltins() {
	if c.opts.Capabilities.Roots != nil {
		c.dispatcher.RegisterRequestHandler("roots/list", nil, HandlerFunc(func(*RequestContext, any) (any, error) {
			return struct {
				Roots []Root `json:"roots"`
			}{Roots: c.opts.Roots}, nil
		}), PeerLocal)
	}
	c.dispatcher.RegisterNotificationHandler("notifications/tools/list_changed", nil, HandlerFunc(func(*RequestContext, any) (any, error) {
		c.invalidateTools()
		return nil, nil
	}))
	c.dispatcher.RegisterNotificationHandler("notifications/resources/list_changed", nil, HandlerFunc(func(*RequestContext, any) (any, error) {
		return nil, nil
	}))
	c.dispatcher.RegisterNotificationHandler("notifications/prompts/list_changed", nil, HandlerFunc(func(*RequestContext, any) (any, error) {
		return nil, nil
	}))
}

// invalidateTools debounces a burst of list_changed notifications into a
// single cache invalidation.
func (c *Client) invalidateTools() {
	c.toolsMu.Lock()
	defer c.toolsMu.Unlock()
	if c.toolsTimer != nil {
		c.toolsTimer.Stop()
	}
	c.toolsTimer = time.AfterFunc(listChangedDebounce, func() {
		c.toolsMu.Lock()
		c.toolsValid = false
		c.toolsMu.Unlock()
	})
}

// Connect starts transport's background driver, performs the initialize
// handshake, and sends notifications/initialized.
func (c *Client) Connect(ctx context.Context, transport ClientTransport) (*InitializeResult, error) {
	c.transport = transport
	transport.OnMessage(c.handleMessage)
	transport.OnError(func(err error) { c.log.Warn("client transport error", "error", err) })
	transport.Start(ctx)

	raw, err := c.Call(ctx, "initialize", &InitializeParams{
		ProtocolVersion: DefaultProtocolVersion,
		Capabilities:    c.opts.Capabilities,
		ClientInfo:      Implementation{Name: c.name, Version: c.version},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding initialize result: %w", err)
	}
	c.capsMu.Lock()
	c.serverCaps = &result.Capabilities
	c.checker.SetServerCapabilities(c.serverCaps)
	c.capsMu.Unlock()
	c.dispatcher.MarkInitialized()

	if err := c.Notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, fmt.Errorf("notifications/initialized: %w", err)
	}
	return &result, nil
}

// Close tears down the underlying transport.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

func (c *Client) nextRequestID() MessageID {
	return NewNumberID(atomic.AddInt64(&c.nextID, 1))
}

// Call issues method with params and waits for the matching response,
// decoded into an any-typed value (typically map[string]any) ready for
// decodeArgs into a concrete result type.
func (c *Client) Call(ctx context.Context, method string, params any) (any, error) {
	if err := c.checker.Check(method, PeerRemote); err != nil {
		return nil, err
	}
	id := c.nextRequestID()
	ch := make(chan *Result, 1)
	c.mu.Lock()
	c.pending[id.String()] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id.String())
		c.mu.Unlock()
	}()

	result, err := c.transport.Send(ctx, &Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	if result == nil {
		select {
		case result = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if result.IsError() {
		return nil, result.Error
	}
	return result.Value, nil
}

// Notify sends a one-way notification; no response is expected.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	_, err := c.transport.Send(ctx, &Notification{Method: method, Params: params})
	return err
}

func (c *Client) handleMessage(msg Message) {
	switch m := msg.(type) {
	case *Result:
		c.mu.Lock()
		ch, ok := c.pending[m.ID.String()]
		c.mu.Unlock()
		if ok {
			ch <- m
		}
	case *Request:
		ctx := context.Background()
		result := c.dispatcher.DispatchRequest(ctx, "", m, DispatchOptions{})
		if _, err := c.transport.Send(ctx, result); err != nil {
			c.log.Warn("sending response to server-initiated request failed", "method", m.Method, "error", err)
		}
	case *Notification:
		c.dispatcher.DispatchNotification(context.Background(), "", m)
	}
}

// ListTools returns the server's tool list, served from cache unless a
// notifications/tools/list_changed notification has invalidated it.
func (c *Client) ListTools(ctx context.Context) ([]*Tool, error) {
	c.toolsMu.Lock()
	if c.toolsValid {
		out := make([]*Tool, 0, len(c.toolsCache))
		for _, t := range c.toolsCache {
			out = append(out, t)
		}
		c.toolsMu.Unlock()
		return out, nil
	}
	c.toolsMu.Unlock()

	raw, err := c.Call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding tools/list result: %w", err)
	}

	c.toolsMu.Lock()
	c.toolsCache = make(map[string]*Tool, len(result.Tools))
	for _, t := range result.Tools {
		c.toolsCache[t.Name] = t
	}
	c.toolsValid = true
	c.toolsMu.Unlock()
	return result.Tools, nil
}

// CallTool invokes a tool by name and, if the cached tool definition
// (from the most recent ListTools) declares an OutputSchema, validates
// the result's StructuredContent against it before returning: a server
// that claims an output schema but returns content violating it is a
// protocol error the caller should see, not silently accept.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	raw, err := c.Call(ctx, "tools/call", struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding tools/call result: %w", err)
	}

	c.toolsMu.Lock()
	tool, ok := c.toolsCache[name]
	c.toolsMu.Unlock()
	if ok && tool.OutputSchema != nil && !result.IsError {
		resolved, err := c.schemas.resolve("tools/call:"+name, tool.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("resolving output schema for %q: %w", name, err)
		}
		if err := resolved.Validate(result.StructuredContent); err != nil {
			return nil, fmt.Errorf("tool %q returned output violating its declared schema: %w", name, err)
		}
	}
	return &result, nil
}

// ListResources returns the server's fixed-URI resource list.
func (c *Client) ListResources(ctx context.Context) ([]*Resource, error) {
	raw, err := c.Call(ctx, "resources/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result ListResourcesResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding resources/list result: %w", err)
	}
	return result.Resources, nil
}

// ReadResource fetches the contents of uri.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	raw, err := c.Call(ctx, "resources/read", &ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	var result ReadResourceResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding resources/read result: %w", err)
	}
	return &result, nil
}

// ListPrompts returns the server's prompt list.
func (c *Client) ListPrompts(ctx context.Context) ([]*Prompt, error) {
	raw, err := c.Call(ctx, "prompts/list", struct{}{})
	if err != nil {
		return nil, err
	}
	var result ListPromptsResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding prompts/list result: %w", err)
	}
	return result.Prompts, nil
}

// GetPrompt renders the named prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*GetPromptResult, error) {
	raw, err := c.Call(ctx, "prompts/get", &GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result GetPromptResult
	if err := decodeArgs(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding prompts/get result: %w", err)
	}
	return &result, nil
}
