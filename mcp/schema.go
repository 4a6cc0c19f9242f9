// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

// schemaCache resolves and caches per-method param schemas, so that a
// method invoked repeatedly does not re-resolve $refs on every dispatch.
//
// Grounded on the teacher SDK's schema_cache.go, which caches resolved
// schemas in a sync.Map keyed by schema identity; here the key is the
// method name instead, since each method has exactly one params schema.
type schemaCache struct {
	resolved sync.Map // method string -> *jsonschema.Resolved
}

func newSchemaCache() *schemaCache {
	return &schemaCache{}
}

// resolve resolves and caches schema for method, or returns the cached
// resolution from a previous call.
func (c *schemaCache) resolve(method string, schema *jsonschema.Schema) (*jsonschema.Resolved, error) {
	if schema == nil {
		return nil, nil
	}
	if v, ok := c.resolved.Load(method); ok {
		return v.(*jsonschema.Resolved), nil
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %q: %w", method, err)
	}
	c.resolved.Store(method, resolved)
	return resolved, nil
}

// validateParams applies schema defaults to raw and validates the result
// against schema. A null params value is treated as an empty object
// wherever the schema allows one.
//
// It returns the (possibly defaulted) params value decoded into an
// any-typed map, ready for a handler to remarshal into its concrete
// params type.
func (c *schemaCache) validateParams(method string, schema *jsonschema.Schema, raw internaljson.RawMessage) (any, error) {
	resolved, err := c.resolve(method, schema)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		// No schema declared: pass params through unvalidated.
		var v any
		if len(raw) > 0 {
			if err := internaljson.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decoding params: %w", err)
			}
		}
		return v, nil
	}
	var v any
	if len(raw) == 0 || string(raw) == "null" {
		v = map[string]any{}
	} else if err := internaljson.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	resolved.ApplyDefaults(&v)
	if err := resolved.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return v, nil
}
