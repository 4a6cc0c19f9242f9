// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
	"github.com/relaymcp/relaymcp/internal/metrics"
)

// methodEntry pairs a registered handler with its params schema, mirroring
// the teacher's Rust Protocol<V>::register_request_handler entry shape
// (_examples/original_source/crates/mcp-core/src/protocol/protocol.rs).
type methodEntry struct {
	schema  *jsonschema.Schema
	handler Handler
}

// Dispatcher validates, capability-gates, and routes JSON-RPC requests
// and notifications to registered handlers. It is safe for concurrent
// use.
type Dispatcher struct {
	checker *CapabilityChecker
	tasks   TaskStore
	schemas *schemaCache
	log     *slog.Logger
	metrics *metrics.Registry

	mu                   sync.RWMutex
	requestHandlers      map[string]methodEntry
	notificationHandlers map[string]methodEntry

	// afterInitialize is set once the initialize handshake completes;
	// registrations after that point may still occur but must not alter
	// already-advertised capabilities.
	afterInitialize bool
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Checker *CapabilityChecker
	Tasks   TaskStore
	Logger  *slog.Logger
	// Metrics, if set, records per-method request counts and latencies.
	// Nil is a valid, no-op value.
	Metrics *metrics.Registry
}

// NewDispatcher returns a Dispatcher with no registered methods.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	checker := opts.Checker
	if checker == nil {
		checker = NewCapabilityChecker(nil, nil)
	}
	return &Dispatcher{
		checker:              checker,
		tasks:                opts.Tasks,
		schemas:              newSchemaCache(),
		log:                  log,
		metrics:              opts.Metrics,
		requestHandlers:      make(map[string]methodEntry),
		notificationHandlers: make(map[string]methodEntry),
	}
}

// MarkInitialized locks in the currently advertised capabilities: later
// registrations may still be added (idempotent, last-writer-wins per
// method name) but must not retroactively alter what was advertised at
// handshake time.
func (d *Dispatcher) MarkInitialized() {
	d.mu.Lock()
	d.afterInitialize = true
	d.mu.Unlock()
}

// RegisterRequestHandler registers a handler for method, gated by peer's
// capability. Registration is idempotent per method name (last writer
// wins). It panics if the method requires a capability absent from the
// checker's record for peer — a programming error, not a runtime
// condition.
func (d *Dispatcher) RegisterRequestHandler(method string, schema *jsonschema.Schema, h Handler, peer Peer) {
	if err := d.checker.Check(method, peer); err != nil {
		panic(fmt.Sprintf("mcp: cannot register handler for %q: %v", method, err))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestHandlers[method] = methodEntry{schema: schema, handler: h}
}

// RegisterNotificationHandler registers a notification handler for method.
func (d *Dispatcher) RegisterNotificationHandler(method string, schema *jsonschema.Schema, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notificationHandlers[method] = methodEntry{schema: schema, handler: h}
}

// DispatchOptions configures one call to DispatchRequest: the timeout and
// cancellation signal armed around handler invocation.
type DispatchOptions struct {
	Timeout time.Duration
	Cancel  <-chan struct{}
}

// DispatchRequest looks up the handler, checks capability, validates
// params against the registered schema, extracts `_meta` and any task
// routing info, and invokes the handler (directly or as a task). It
// always returns a non-nil *Result (never an error): failures are
// converted to a Result carrying an ErrorObject so a failing handler
// never crashes the dispatcher.
func (d *Dispatcher) DispatchRequest(ctx context.Context, sessionID string, req *Request, opts DispatchOptions) *Result {
	start := time.Now()
	result := d.dispatchRequest(ctx, sessionID, req, opts)
	outcome := "ok"
	if result.Error != nil {
		outcome = "error"
	}
	d.metrics.ObserveRequest(req.Method, outcome, time.Since(start))
	return result
}

func (d *Dispatcher) dispatchRequest(ctx context.Context, sessionID string, req *Request, opts DispatchOptions) *Result {
	d.mu.RLock()
	entry, ok := d.requestHandlers[req.Method]
	d.mu.RUnlock()
	if !ok {
		return NewErrorResult(req.ID, NewError(ErrMethodNotFound, "method %q not found", req.Method))
	}

	if err := d.checker.Check(req.Method, PeerLocal); err != nil {
		return NewErrorResult(req.ID, NewError(ErrInvalidRequest, "%v", err))
	}

	raw, err := paramsToRaw(req.Params)
	if err != nil {
		return NewErrorResult(req.ID, NewError(ErrInvalidParams, "%v", err))
	}
	params, err := d.schemas.validateParams(req.Method, entry.schema, raw)
	if err != nil {
		return NewErrorResult(req.ID, NewError(ErrInvalidParams, "%v", err))
	}

	reqCtx := &RequestContext{Context: ctx, SessionID: sessionID}
	paramsMap, _ := params.(map[string]any)
	if paramsMap != nil {
		if m, ok := paramsMap["_meta"].(map[string]any); ok {
			reqCtx.Meta = Meta(m)
		}
		if task, ok := paramsMap["task"].(map[string]any); ok {
			reqCtx.Task = task
		}
	}

	if reqCtx.Task != nil && d.tasks != nil {
		if te, ok := entry.handler.(taskEligible); ok && te.TaskEligible() {
			return d.dispatchAsTask(reqCtx, req, entry.handler, params)
		}
	}

	return d.invokeWithTimeout(reqCtx, req, entry.handler, params, opts)
}

// dispatchAsTask creates a task record, runs the handler in the
// background, and regardless of outcome persists the terminal state; the
// synchronous return value is a CreateTaskResult, not the handler's own
// result.
func (d *Dispatcher) dispatchAsTask(reqCtx *RequestContext, req *Request, h Handler, params any) *Result {
	taskCtx, cancel := context.WithCancel(reqCtx.Context)
	task, err := d.tasks.Create(reqCtx.Context, cancel)
	if err != nil {
		cancel()
		return NewErrorResult(req.ID, NewError(ErrInternalError, "creating task: %v", err))
	}
	childCtx := &RequestContext{Context: taskCtx, SessionID: reqCtx.SessionID, Meta: reqCtx.Meta, Task: reqCtx.Task}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				if cerr := d.tasks.Fail(context.Background(), task.TaskID, NewError(ErrInternalError, "handler for %q panicked: %v", req.Method, p)); cerr != nil {
					d.log.Error("recording task failure", "task", task.TaskID, "error", cerr)
				}
			}
		}()
		result, err := h.Handle(childCtx, params)
		if err != nil {
			errObj := toErrorObject(err)
			if cerr := d.tasks.Fail(context.Background(), task.TaskID, errObj); cerr != nil {
				d.log.Error("recording task failure", "task", task.TaskID, "error", cerr)
			}
			return
		}
		if cerr := d.tasks.Complete(context.Background(), task.TaskID, result); cerr != nil {
			d.log.Error("recording task completion", "task", task.TaskID, "error", cerr)
		}
	}()
	return NewResult(req.ID, &CreateTaskResult{Task: task})
}

// invokeWithTimeout checks the cancellation signal once before the
// handler starts, then races the handler's completion against an
// optional timeout timer and that same cancellation signal.
func (d *Dispatcher) invokeWithTimeout(reqCtx *RequestContext, req *Request, h Handler, params any, opts DispatchOptions) *Result {
	select {
	case <-opts.Cancel:
		return NewErrorResult(req.ID, NewError(ErrConnectionClosed, "request cancelled before dispatch"))
	default:
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: NewError(ErrInternalError, "handler for %q panicked: %v", req.Method, p)}
			}
		}()
		result, err := h.Handle(reqCtx, params)
		done <- outcome{result, err}
	}()

	var timeoutC <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case out := <-done:
		if out.err != nil {
			return NewErrorResult(req.ID, toErrorObject(out.err))
		}
		return NewResult(req.ID, out.result)
	case <-timeoutC:
		return NewErrorResult(req.ID, NewError(ErrRequestTimeout, "handler for %q timed out", req.Method))
	case <-opts.Cancel:
		return NewErrorResult(req.ID, NewError(ErrConnectionClosed, "request cancelled"))
	}
}

// DispatchNotification looks up the handler, validates params, extracts
// `_meta`, and invokes; handler errors are logged only, never returned.
func (d *Dispatcher) DispatchNotification(ctx context.Context, sessionID string, n *Notification) {
	d.mu.RLock()
	entry, ok := d.notificationHandlers[n.Method]
	d.mu.RUnlock()
	if !ok {
		return
	}
	raw, err := paramsToRaw(n.Params)
	if err != nil {
		d.log.Warn("invalid notification params", "method", n.Method, "error", err)
		return
	}
	params, err := d.schemas.validateParams(n.Method, entry.schema, raw)
	if err != nil {
		d.log.Warn("notification schema validation failed", "method", n.Method, "error", err)
		return
	}
	reqCtx := &RequestContext{Context: ctx, SessionID: sessionID}
	if m, ok := params.(map[string]any); ok {
		if meta, ok := m["_meta"].(map[string]any); ok {
			reqCtx.Meta = Meta(meta)
		}
	}
	if _, err := entry.handler.Handle(reqCtx, params); err != nil {
		d.log.Warn("notification handler failed", "method", n.Method, "error", err)
	}
}

func paramsToRaw(params any) (internaljson.RawMessage, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case internaljson.RawMessage:
		return v, nil
	default:
		return internaljson.Marshal(v)
	}
}

func toErrorObject(err error) *ErrorObject {
	if eo, ok := err.(*ErrorObject); ok {
		return eo
	}
	return NewError(ErrInternalError, "%v", err)
}
