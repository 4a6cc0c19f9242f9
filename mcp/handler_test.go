// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"testing"
)

func TestHandlerFuncDelegates(t *testing.T) {
	var gotParams any
	h := HandlerFunc(func(ctx *RequestContext, params any) (any, error) {
		gotParams = params
		return "ok", nil
	})

	rc := &RequestContext{Context: context.Background(), SessionID: "sess-1"}
	result, err := h.Handle(rc, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
	if gotParams == nil {
		t.Error("Handle did not forward params")
	}
}

func TestHandlerFuncPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	h := HandlerFunc(func(ctx *RequestContext, params any) (any, error) {
		return nil, wantErr
	})
	_, err := h.Handle(&RequestContext{Context: context.Background()}, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestTaskEligibleHandlerReportsEligible(t *testing.T) {
	inner := HandlerFunc(func(ctx *RequestContext, params any) (any, error) { return nil, nil })
	wrapped := TaskEligibleHandler{Handler: inner}

	var te taskEligible = wrapped
	if !te.TaskEligible() {
		t.Error("TaskEligibleHandler.TaskEligible() = false, want true")
	}

	if _, ok := any(inner).(taskEligible); ok {
		t.Error("a plain HandlerFunc should not satisfy taskEligible")
	}

	if _, err := wrapped.Handle(&RequestContext{Context: context.Background()}, nil); err != nil {
		t.Errorf("wrapped.Handle: %v", err)
	}
}
