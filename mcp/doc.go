// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package mcp implements the runtime side of the Model Context Protocol:
// a bidirectional JSON-RPC 2.0 protocol for pairing model-facing clients
// with capability-providing servers.
//
// The package covers the message envelope and capability model, a
// dispatcher that validates and routes requests and notifications,
// pluggable session and task stores, and three interchangeable
// transports: streamable HTTP (with SSE replay), the deprecated
// two-URL SSE transport, and WebSocket.
package mcp
