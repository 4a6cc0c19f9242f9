// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedTestToken(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestBearerVerifierValid(t *testing.T) {
	key := []byte("test-secret")
	raw := signedTestToken(t, jwt.MapClaims{
		"sub":   "client-1",
		"scope": "read write",
		"iss":   "https://issuer.example",
		"aud":   "mcp-server",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}, key)

	v := NewBearerVerifier(func(*jwt.Token) (any, error) { return key, nil },
		WithIssuer("https://issuer.example"),
		WithAudience("mcp-server"),
		WithRequiredScopes("read"))

	info, err := v.VerifyBearer("Bearer " + raw)
	if err != nil {
		t.Fatalf("VerifyBearer: %v", err)
	}
	if info.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want client-1", info.ClientID)
	}
	if !info.HasScopes("read", "write") {
		t.Errorf("Scopes = %v, want read and write", info.Scopes)
	}
	if info.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be populated from the exp claim")
	}
}

func TestBearerVerifierMissingScope(t *testing.T) {
	key := []byte("test-secret")
	raw := signedTestToken(t, jwt.MapClaims{
		"sub":   "client-1",
		"scope": "read",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}, key)

	v := NewBearerVerifier(func(*jwt.Token) (any, error) { return key, nil }, WithRequiredScopes("write"))
	if _, err := v.VerifyBearer(raw); err == nil {
		t.Fatal("VerifyBearer: want error for missing required scope")
	}
}

func TestBearerVerifierWrongIssuer(t *testing.T) {
	key := []byte("test-secret")
	raw := signedTestToken(t, jwt.MapClaims{
		"sub": "client-1",
		"iss": "https://wrong.example",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, key)

	v := NewBearerVerifier(func(*jwt.Token) (any, error) { return key, nil }, WithIssuer("https://issuer.example"))
	if _, err := v.VerifyBearer(raw); err == nil {
		t.Fatal("VerifyBearer: want error for wrong issuer")
	}
}

func TestBearerVerifierExpiredToken(t *testing.T) {
	key := []byte("test-secret")
	raw := signedTestToken(t, jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, key)

	v := NewBearerVerifier(func(*jwt.Token) (any, error) { return key, nil })
	if _, err := v.VerifyBearer(raw); err == nil {
		t.Fatal("VerifyBearer: want error for an expired token")
	}
}

func TestBearerVerifierEmptyToken(t *testing.T) {
	v := NewBearerVerifier(func(*jwt.Token) (any, error) { return []byte("k"), nil })
	if _, err := v.VerifyBearer(""); err == nil {
		t.Fatal("VerifyBearer: want error for an empty token")
	}
	if _, err := v.VerifyBearer("Bearer   "); err == nil {
		t.Fatal("VerifyBearer: want error for a bearer prefix with no token")
	}
}

func TestBearerVerifierExtraClaimsSurfaceInExtra(t *testing.T) {
	key := []byte("test-secret")
	raw := signedTestToken(t, jwt.MapClaims{
		"sub":       "client-1",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"client_id": "app-42",
	}, key)

	v := NewBearerVerifier(func(*jwt.Token) (any, error) { return key, nil })
	info, err := v.VerifyBearer(raw)
	if err != nil {
		t.Fatalf("VerifyBearer: %v", err)
	}
	if info.Extra["client_id"] != "app-42" {
		t.Errorf("Extra[client_id] = %v, want app-42", info.Extra["client_id"])
	}
}
