// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "context"

// RequestContext carries the per-call context a Handler needs: session
// id, cancellation, timeout, `_meta`, and task metadata, as an explicit
// struct rather than ambient/thread-local context.
type RequestContext struct {
	context.Context

	// SessionID is the HTTP/WebSocket session this request arrived on,
	// empty for transports without a session concept (e.g. stdio).
	SessionID string
	// Meta holds the `_meta` object promoted from params, if present.
	Meta Meta
	// Task is non-nil when params carried a `task` field, routing this
	// call through task execution.
	Task map[string]any
}

// Handler implements a single method's server-side or client-side logic.
// Concrete handlers implement it directly rather than through a deeply
// nested polymorphic object graph.
type Handler interface {
	Handle(ctx *RequestContext, params any) (result any, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx *RequestContext, params any) (any, error)

func (f HandlerFunc) Handle(ctx *RequestContext, params any) (any, error) { return f(ctx, params) }

// taskEligible is implemented by handlers that support being routed
// through task execution when params carries a `task` field. Handlers
// that don't implement it are never task-routed, even if the request
// asks for it.
type taskEligible interface {
	TaskEligible() bool
}

// TaskEligibleHandler wraps a Handler to mark it eligible for task
// routing.
type TaskEligibleHandler struct {
	Handler
}

func (TaskEligibleHandler) TaskEligible() bool { return true }
