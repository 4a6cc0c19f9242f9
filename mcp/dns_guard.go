// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"net"
	"net/http"
	"strings"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

// DNSRebindGuard rejects requests whose Host header names a hostname
// outside an allow-list, defending the streamable HTTP transport against
// DNS-rebinding attacks. Grounded on
// _examples/original_source/server/src/http/dns_protection.rs.
type DNSRebindGuard struct {
	allow map[string]bool
}

// defaultDNSAllowList matches the original's localhost() default.
func defaultDNSAllowList() []string {
	return []string{"localhost", "127.0.0.1", "[::1]", "::1"}
}

// NewDNSRebindGuard returns a guard permitting exactly the given
// hostnames. A nil or empty list selects the default
// {localhost, 127.0.0.1, [::1], ::1}.
func NewDNSRebindGuard(allowList []string) *DNSRebindGuard {
	if len(allowList) == 0 {
		allowList = defaultDNSAllowList()
	}
	g := &DNSRebindGuard{allow: make(map[string]bool, len(allowList))}
	for _, h := range allowList {
		g.allow[strings.ToLower(h)] = true
	}
	return g
}

// Allowed reports whether host (a raw Host header value, possibly
// carrying a port) names an allowed hostname. A missing Host header is
// never allowed.
func (g *DNSRebindGuard) Allowed(host string) bool {
	if host == "" {
		return false
	}
	hostname := extractHostname(host)
	return g.allow[strings.ToLower(hostname)]
}

// extractHostname strips an optional port from host, preserving IPv6
// bracket notation.
func extractHostname(host string) string {
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx >= 0 {
			return host[:idx+1]
		}
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// WriteRejection writes the JSON-RPC-framed 403 response for a rejected
// request.
func WriteRejection(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	body, _ := internaljson.Marshal(errorFrame(message))
	_, _ = w.Write(body)
}

// errorFrame builds the JSON-RPC-shaped error body used at every HTTP
// error boundary: every error response carries
// {"jsonrpc":"2.0","id":null,"error":{"code":-32000,"message":<text>}}
// even when the HTTP status itself is >= 400.
func errorFrame(message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    int32(-32000),
			"message": message,
		},
	}
}
