// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package oauthex

import "testing"

func TestParseWWWAuthenticateAndAccessors(t *testing.T) {
	headers := []string{
		`Bearer realm="mcp", error="invalid_token", error_description="expired", resource_metadata="https://auth.example/meta", scope="read write"`,
	}
	cs, err := ParseWWWAuthenticate(headers)
	if err != nil {
		t.Fatalf("ParseWWWAuthenticate: %v", err)
	}
	if len(cs) != 1 {
		t.Fatalf("len(cs) = %d, want 1", len(cs))
	}
	if cs[0].Scheme != "bearer" {
		t.Errorf("Scheme = %q, want bearer", cs[0].Scheme)
	}
	if cs[0].Params["realm"] != "mcp" {
		t.Errorf("realm = %q, want mcp", cs[0].Params["realm"])
	}

	if got := ResourceMetadataURL(cs); got != "https://auth.example/meta" {
		t.Errorf("ResourceMetadataURL = %q, want https://auth.example/meta", got)
	}
	if got := Scopes(cs); len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Errorf("Scopes = %v, want [read write]", got)
	}
}

func TestParseWWWAuthenticateMultipleChallenges(t *testing.T) {
	headers := []string{`Basic realm="basic-zone"`, `Bearer realm="bearer-zone", scope="profile"`}
	cs, err := ParseWWWAuthenticate(headers)
	if err != nil {
		t.Fatalf("ParseWWWAuthenticate: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("len(cs) = %d, want 2", len(cs))
	}
	if cs[0].Scheme != "basic" || cs[1].Scheme != "bearer" {
		t.Errorf("schemes = %q, %q, want basic, bearer", cs[0].Scheme, cs[1].Scheme)
	}
	if got := Scopes(cs); len(got) != 1 || got[0] != "profile" {
		t.Errorf("Scopes = %v, want [profile]", got)
	}
}

func TestResourceMetadataURLAbsentReturnsEmpty(t *testing.T) {
	cs, err := ParseWWWAuthenticate([]string{`Bearer realm="mcp"`})
	if err != nil {
		t.Fatalf("ParseWWWAuthenticate: %v", err)
	}
	if got := ResourceMetadataURL(cs); got != "" {
		t.Errorf("ResourceMetadataURL = %q, want empty", got)
	}
	if got := Scopes(cs); got != nil {
		t.Errorf("Scopes = %v, want nil", got)
	}
}
