// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"fmt"
	"strconv"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

// Reserved JSON-RPC 2.0 error codes, plus the MCP-specific extensions used
// throughout this package.
const (
	ErrParseError     int32 = -32700
	ErrInvalidRequest int32 = -32600
	ErrMethodNotFound int32 = -32601
	ErrInvalidParams  int32 = -32602
	ErrInternalError  int32 = -32603

	// ErrRequestTimeout is returned when a handler does not complete before
	// the dispatch timeout (DispatchOptions.Timeout).
	ErrRequestTimeout int32 = -32001
	// ErrConnectionClosed is returned when a request's cancellation token
	// fires, or the underlying connection is torn down, before the handler
	// completes.
	ErrConnectionClosed int32 = -32002
)

// MessageID is a tagged union of a signed integer or a string, unique per
// sender for the lifetime of a connection.
type MessageID struct {
	s    string
	n    int64
	kind idKind
}

type idKind uint8

const (
	idInvalid idKind = iota
	idString
	idNumber
)

// NewStringID returns a string-valued MessageID.
func NewStringID(s string) MessageID { return MessageID{s: s, kind: idString} }

// NewNumberID returns an integer-valued MessageID.
func NewNumberID(n int64) MessageID { return MessageID{n: n, kind: idNumber} }

// IsValid reports whether the id was ever assigned a value.
func (id MessageID) IsValid() bool { return id.kind != idInvalid }

// String renders the id for logging and for use as a map key.
func (id MessageID) String() string {
	switch id.kind {
	case idString:
		return id.s
	case idNumber:
		return strconv.FormatInt(id.n, 10)
	default:
		return "<invalid>"
	}
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idString:
		return internaljson.Marshal(id.s)
	case idNumber:
		return internaljson.Marshal(id.n)
	default:
		return []byte("null"), nil
	}
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = MessageID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := internaljson.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NewStringID(s)
		return nil
	}
	var n int64
	if err := internaljson.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id must be a string or integer: %w", err)
	}
	*id = NewNumberID(n)
	return nil
}

// ErrorObject is the JSON-RPC error payload carried by a Result whose call
// failed.
type ErrorObject struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError returns an *ErrorObject with the given code and message.
func NewError(code int32, format string, args ...any) *ErrorObject {
	return &ErrorObject{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Message is implemented by Request, Result, and Notification: the three
// shapes a JSON-RPC frame can take on the wire.
type Message interface {
	isMessage()
}

// Request is sent by either peer to invoke a method and expects exactly one
// matching Result in response.
type Request struct {
	ID     MessageID      `json:"id"`
	Method string         `json:"method"`
	Params any            `json:"params,omitempty"`
}

func (*Request) isMessage() {}

// Result answers a Request. Exactly one of Value or Error is populated.
type Result struct {
	ID    MessageID    `json:"id"`
	Value any          `json:"result,omitempty"`
	Error *ErrorObject `json:"error,omitempty"`
}

func (*Result) isMessage() {}

// IsError reports whether the result carries an error rather than a value.
func (r *Result) IsError() bool { return r != nil && r.Error != nil }

// NewResult builds a successful Result.
func NewResult(id MessageID, value any) *Result {
	return &Result{ID: id, Value: value}
}

// NewErrorResult builds a failed Result.
func NewErrorResult(id MessageID, err *ErrorObject) *Result {
	return &Result{ID: id, Error: err}
}

// Notification carries no id and expects no response.
type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

func (*Notification) isMessage() {}

// wireEnvelope is the shape every frame takes on the wire: JSON-RPC 2.0,
// distinguished by the presence of "id"/"method"/"result"/"error".
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *MessageID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  internaljson.RawMessage `json:"params,omitempty"`
	Result  internaljson.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// EncodeMessage serializes msg as a JSON-RPC 2.0 frame.
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		params, err := internaljson.Marshal(m.Params)
		if err != nil {
			return nil, fmt.Errorf("encoding request params: %w", err)
		}
		env := wireEnvelope{JSONRPC: "2.0", ID: &m.ID, Method: m.Method}
		if !bytes.Equal(params, []byte("null")) {
			env.Params = params
		}
		return internaljson.Marshal(env)
	case *Notification:
		params, err := internaljson.Marshal(m.Params)
		if err != nil {
			return nil, fmt.Errorf("encoding notification params: %w", err)
		}
		env := wireEnvelope{JSONRPC: "2.0", Method: m.Method}
		if !bytes.Equal(params, []byte("null")) {
			env.Params = params
		}
		return internaljson.Marshal(env)
	case *Result:
		env := wireEnvelope{JSONRPC: "2.0", ID: &m.ID, Error: m.Error}
		if m.Error == nil {
			value, err := internaljson.Marshal(m.Value)
			if err != nil {
				return nil, fmt.Errorf("encoding result value: %w", err)
			}
			env.Result = value
		}
		return internaljson.Marshal(env)
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}
}

// DecodeMessage parses a JSON-RPC 2.0 frame and classifies it as a Request,
// Result, or Notification based on the presence of "id" and "method".
//
// Per the JSON-RPC spec, decoding uses exact, case-sensitive field matching:
// StrictUnmarshal rejects unknown fields and case-variant duplicate keys,
// which would otherwise let a crafted frame smuggle data past a handler's
// schema validation.
func DecodeMessage(data []byte) (Message, error) {
	var env wireEnvelope
	if err := internaljson.StrictUnmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding jsonrpc message: %w", err)
	}
	switch {
	case env.Method != "" && env.ID != nil:
		var params any
		if len(env.Params) > 0 {
			params = internaljson.RawMessage(env.Params)
		}
		return &Request{ID: *env.ID, Method: env.Method, Params: params}, nil
	case env.Method != "":
		var params any
		if len(env.Params) > 0 {
			params = internaljson.RawMessage(env.Params)
		}
		return &Notification{Method: env.Method, Params: params}, nil
	case env.ID != nil:
		r := &Result{ID: *env.ID, Error: env.Error}
		if env.Error == nil && len(env.Result) > 0 {
			r.Value = internaljson.RawMessage(env.Result)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("decoding jsonrpc message: neither a request, result, nor notification")
	}
}
