// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

func TestSchemaCacheValidateParamsAppliesDefaults(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":  {Type: "string"},
			"limit": {Type: "integer", Default: json.RawMessage(`10`)},
		},
		Required: []string{"name"},
	}
	c := newSchemaCache()

	got, err := c.validateParams("tools/call:search", schema, internaljson.RawMessage(`{"name":"x"}`))
	if err != nil {
		t.Fatalf("validateParams: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("validateParams result = %T, want map[string]any", got)
	}
	if limit, ok := m["limit"].(float64); !ok || limit != 10 {
		t.Errorf("limit = %v, want default 10", m["limit"])
	}
}

func TestSchemaCacheValidateParamsRejectsMissingRequired(t *testing.T) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"name": {Type: "string"}},
		Required:   []string{"name"},
	}
	c := newSchemaCache()
	if _, err := c.validateParams("tools/call:search", schema, internaljson.RawMessage(`{}`)); err == nil {
		t.Fatal("validateParams: want error for missing required field, got nil")
	}
}

func TestSchemaCacheResolveIsCachedPerMethod(t *testing.T) {
	schema := &jsonschema.Schema{Type: "object"}
	c := newSchemaCache()
	first, err := c.resolve("tools/call:x", schema)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := c.resolve("tools/call:x", schema)
	if err != nil {
		t.Fatalf("resolve (cached): %v", err)
	}
	if first != second {
		t.Error("resolve: expected the same cached *jsonschema.Resolved pointer on the second call")
	}
}

// TestOutputSchemaValidationLaw exercises the same check Client.CallTool
// performs: a tool's declared OutputSchema validates its own
// StructuredContent, the way the high-level client enforces it before
// handing a result back to the caller.
func TestOutputSchemaValidationLaw(t *testing.T) {
	outputSchema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"count": {Type: "integer"}},
		Required:   []string{"count"},
	}
	c := newSchemaCache()
	resolved, err := c.resolve("tools/call:counter", outputSchema)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if err := resolved.Validate(map[string]any{"count": 3}); err != nil {
		t.Errorf("Validate(conforming result) = %v, want nil", err)
	}
	if err := resolved.Validate(map[string]any{"wrong": "shape"}); err == nil {
		t.Error("Validate(non-conforming result) = nil, want an error")
	}
}
