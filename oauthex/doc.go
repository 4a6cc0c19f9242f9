// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package oauthex implements the OAuth 2.1 metadata discovery machinery
// MCP authorization relies on: Protected Resource Metadata (RFC 9728),
// Authorization Server Metadata (RFC 8414), and WWW-Authenticate
// challenge parsing (RFC 6750).
package oauthex
