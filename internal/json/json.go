// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package json centralizes JSON encoding for the mcp and auth packages.
//
// It delegates to github.com/segmentio/encoding/json, a drop-in
// encoding/json replacement with a faster reflection-free fast path, so
// that the hot path of message encode/decode (every request, response,
// and SSE event) isn't paying the standard library's allocation cost.
package json

import (
	"bytes"
	"fmt"
	"strings"

	segjson "github.com/segmentio/encoding/json"
)

// RawMessage is a raw encoded JSON value, re-exported so callers don't need
// to import the underlying codec package directly.
type RawMessage = segjson.RawMessage

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return segjson.Marshal(v)
}

// MarshalIndent is like Marshal but applies indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return segjson.MarshalIndent(v, prefix, indent)
}

// Unmarshal parses JSON-encoded data into v.
func Unmarshal(data []byte, v any) error {
	return segjson.Unmarshal(data, v)
}

// StrictUnmarshal parses data into v with stricter rules than Unmarshal:
//
//   - rejects objects that contain the same key twice under different case
//     (e.g. both "name" and "Name"), which would otherwise let a crafted
//     frame smuggle a field past case-sensitive schema validation;
//   - rejects unknown fields not present in v's JSON tags.
//
// It is used for decoding JSON-RPC envelopes, where the wire format is
// defined to be case-sensitive but Go's json package is not.
func StrictUnmarshal(data []byte, v any) error {
	if err := checkNoCaseVariantDuplicates(data); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	dec := segjson.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("strict unmarshal: %w", err)
	}
	return nil
}

// checkNoCaseVariantDuplicates recursively verifies that no JSON object in
// data contains two keys that are equal up to case.
func checkNoCaseVariantDuplicates(data []byte) error {
	var raw map[string]segjson.RawMessage
	if err := segjson.Unmarshal(data, &raw); err != nil {
		// Not an object: arrays and scalars can't have duplicate keys.
		return nil
	}
	seen := make(map[string]string, len(raw))
	for key := range raw {
		lower := strings.ToLower(key)
		if orig, ok := seen[lower]; ok && orig != key {
			return fmt.Errorf("duplicate key with different case: %q and %q", orig, key)
		}
		seen[lower] = key
	}
	for key, val := range raw {
		if err := checkNoCaseVariantDuplicatesInValue(val); err != nil {
			return fmt.Errorf("in field %q: %w", key, err)
		}
	}
	return nil
}

func checkNoCaseVariantDuplicatesInValue(data segjson.RawMessage) error {
	if err := checkNoCaseVariantDuplicates(data); err == nil {
		// Either it validated cleanly as an object, or it wasn't an object
		// at all (checkNoCaseVariantDuplicates is silent in that case).
		// Try as an array too, since objects may nest inside one.
	} else {
		return err
	}
	var arr []segjson.RawMessage
	if err := segjson.Unmarshal(data, &arr); err != nil {
		return nil
	}
	for _, elem := range arr {
		if err := checkNoCaseVariantDuplicatesInValue(elem); err != nil {
			return err
		}
	}
	return nil
}
