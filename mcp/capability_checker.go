// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "fmt"

// Peer identifies which side of a connection a capability check applies to:
// an inbound dispatch checks the local peer's advertised capabilities; an
// outbound send checks the remote peer's.
type Peer int

const (
	// PeerLocal checks this process's own advertised capabilities.
	PeerLocal Peer = iota
	// PeerRemote checks the capabilities the other side advertised.
	PeerRemote
)

// capabilityRequirement names the capability a method needs, as a path
// into either ClientCapabilities or ServerCapabilities.
type capabilityRequirement struct {
	// direction is "client" if the requirement is checked against
	// ClientCapabilities, "server" if against ServerCapabilities.
	direction string
	path      []string
}

// methodCapabilities maps each method in the wire protocol's method tree
// to the capability it requires, or no entry for methods that are always
// available (initialize, ping, notifications/initialized).
var methodCapabilities = map[string]capabilityRequirement{
	"tools/list":                  {"server", []string{"tools"}},
	"tools/call":                  {"server", []string{"tools"}},
	"prompts/list":                {"server", []string{"prompts"}},
	"prompts/get":                 {"server", []string{"prompts"}},
	"resources/list":              {"server", []string{"resources"}},
	"resources/read":              {"server", []string{"resources"}},
	"resources/templates/list":    {"server", []string{"resources"}},
	"resources/subscribe":         {"server", []string{"resources", "subscribe"}},
	"resources/unsubscribe":       {"server", []string{"resources", "subscribe"}},
	"completion/complete":         {"server", []string{"completions"}},
	"logging/setLevel":            {"server", []string{"logging"}},
	"tasks/list":                  {"server", []string{"tasks", "list"}},
	"tasks/get":                   {"server", []string{"tasks"}},
	"tasks/result":                {"server", []string{"tasks"}},
	"tasks/cancel":                {"server", []string{"tasks", "cancel"}},
	"sampling/createMessage":      {"client", []string{"sampling"}},
	"elicitation/create":         {"client", []string{"elicitation"}},
	"roots/list":                  {"client", []string{"roots"}},
}

// CapabilityError reports that a method requires a capability the
// referenced peer did not advertise.
type CapabilityError struct {
	Method string
	Peer   Peer
}

func (e *CapabilityError) Error() string {
	who := "local"
	if e.Peer == PeerRemote {
		who = "remote"
	}
	return fmt.Sprintf("method %q requires a capability not advertised by the %s peer", e.Method, who)
}

// CapabilityChecker gates dispatch by consulting the advertised
// capabilities of both peers.
type CapabilityChecker struct {
	client *ClientCapabilities
	server *ServerCapabilities
}

// NewCapabilityChecker returns a checker over the given (possibly nil)
// capability records.
func NewCapabilityChecker(client *ClientCapabilities, server *ServerCapabilities) *CapabilityChecker {
	return &CapabilityChecker{client: client, server: server}
}

// SetClientCapabilities updates the client-side capability record, e.g.
// once it is learned at initialize.
func (c *CapabilityChecker) SetClientCapabilities(caps *ClientCapabilities) {
	c.client = caps
}

// SetServerCapabilities updates the server-side capability record.
func (c *CapabilityChecker) SetServerCapabilities(caps *ServerCapabilities) {
	c.server = caps
}

// Check verifies that method is permitted given the current capability
// state: a server-direction requirement is checked against the server
// capability record and a client-direction requirement against the
// client record. peer does not change which record is consulted; it
// only labels the returned CapabilityError.
func (c *CapabilityChecker) Check(method string, peer Peer) error {
	req, ok := methodCapabilities[method]
	if !ok {
		return nil
	}
	var present bool
	switch req.direction {
	case "server":
		present = hasServerCapability(c.server, req.path)
	case "client":
		present = hasClientCapability(c.client, req.path)
	}
	if !present {
		return &CapabilityError{Method: method, Peer: peer}
	}
	return nil
}

func hasServerCapability(caps *ServerCapabilities, path []string) bool {
	if caps == nil {
		return false
	}
	switch path[0] {
	case "tools":
		return caps.Tools != nil
	case "prompts":
		return caps.Prompts != nil
	case "resources":
		if caps.Resources == nil {
			return false
		}
		if len(path) > 1 && path[1] == "subscribe" {
			return caps.Resources.Subscribe
		}
		return true
	case "logging":
		return caps.Logging != nil
	case "completions":
		return caps.Completions != nil
	case "tasks":
		if caps.Tasks == nil {
			return false
		}
		if len(path) > 1 {
			switch path[1] {
			case "list":
				return caps.Tasks.List
			case "cancel":
				return caps.Tasks.Cancel
			}
		}
		return true
	}
	return false
}

func hasClientCapability(caps *ClientCapabilities, path []string) bool {
	if caps == nil {
		return false
	}
	switch path[0] {
	case "sampling":
		return caps.Sampling != nil
	case "elicitation":
		return caps.Elicitation != nil
	case "roots":
		return caps.Roots != nil
	}
	return false
}
