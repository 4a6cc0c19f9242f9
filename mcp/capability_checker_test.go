// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "testing"

// TestCapabilityCheckerGateLaw exercises the capability-gate law: a
// method named in methodCapabilities is rejected unless the relevant
// capability record declares it, and methods absent from the map (e.g.
// initialize, ping) are always permitted regardless of capabilities.
func TestCapabilityCheckerGateLaw(t *testing.T) {
	for _, tt := range []struct {
		name    string
		client  *ClientCapabilities
		server  *ServerCapabilities
		method  string
		wantErr bool
	}{
		{"ungated method always allowed", nil, nil, "initialize", false},
		{"ungated ping always allowed", nil, nil, "ping", false},
		{"tools/list without server tools capability", nil, nil, "tools/list", true},
		{"tools/list with server tools capability", nil, &ServerCapabilities{Tools: &ToolCapabilities{}}, "tools/list", false},
		{"resources/subscribe needs explicit subscribe flag", nil, &ServerCapabilities{Resources: &ResourceCapabilities{}}, "resources/subscribe", true},
		{"resources/subscribe with subscribe flag", nil, &ServerCapabilities{Resources: &ResourceCapabilities{Subscribe: true}}, "resources/subscribe", false},
		{"sampling/createMessage needs client capability", nil, nil, "sampling/createMessage", true},
		{"sampling/createMessage with client capability", &ClientCapabilities{Sampling: &SamplingCapabilities{}}, nil, "sampling/createMessage", false},
		{"roots/list needs client roots capability", nil, nil, "roots/list", true},
		{"roots/list with client roots capability", &ClientCapabilities{Roots: &RootsCapabilities{}}, nil, "roots/list", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCapabilityChecker(tt.client, tt.server)
			err := checker.Check(tt.method, PeerLocal)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check(%q) error = %v, wantErr %v", tt.method, err, tt.wantErr)
			}
			if err != nil {
				var capErr *CapabilityError
				if ce, ok := err.(*CapabilityError); !ok {
					t.Errorf("error type = %T, want *CapabilityError", err)
				} else {
					capErr = ce
					if capErr.Method != tt.method {
						t.Errorf("CapabilityError.Method = %q, want %q", capErr.Method, tt.method)
					}
				}
			}
		})
	}
}

func TestCapabilityCheckerUpdatesTakeEffect(t *testing.T) {
	checker := NewCapabilityChecker(nil, nil)
	if err := checker.Check("tools/list", PeerRemote); err == nil {
		t.Fatal("Check(tools/list) before SetServerCapabilities = nil error, want error")
	}
	checker.SetServerCapabilities(&ServerCapabilities{Tools: &ToolCapabilities{}})
	if err := checker.Check("tools/list", PeerRemote); err != nil {
		t.Fatalf("Check(tools/list) after SetServerCapabilities = %v, want nil", err)
	}
}

func TestRegisterRequestHandlerPanicsOnMissingCapability(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("RegisterRequestHandler: want panic when the checker lacks the required capability, got none")
		}
	}()
	d := NewDispatcher(DispatcherOptions{})
	d.RegisterRequestHandler("tools/list", nil, HandlerFunc(func(ctx *RequestContext, params any) (any, error) {
		return nil, nil
	}), PeerLocal)
}
