// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProviderTokenSourceToken(t *testing.T) {
	provider := NewInMemoryClientProvider("", OAuthClientMetadata{})
	ctx := context.Background()
	if err := provider.SaveTokens(ctx, OAuthTokens{AccessToken: "abc", TokenType: "Bearer", ExpiresIn: 60}); err != nil {
		t.Fatal(err)
	}
	src := NewProviderTokenSource(ctx, provider)
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "abc" || tok.TokenType != "Bearer" {
		t.Errorf("Token = %+v, want access=abc type=Bearer", tok)
	}
	if tok.Expiry.IsZero() {
		t.Error("Expiry should be set when ExpiresIn > 0")
	}
}

func TestProviderTokenSourceNoTokens(t *testing.T) {
	provider := NewInMemoryClientProvider("", OAuthClientMetadata{})
	src := NewProviderTokenSource(context.Background(), provider)
	if _, err := src.Token(); err == nil {
		t.Fatal("Token: want error when the provider has no tokens yet")
	}
}

func TestHTTPClientAttachesBearerHeader(t *testing.T) {
	var gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	provider := NewInMemoryClientProvider("", OAuthClientMetadata{})
	ctx := context.Background()
	if err := provider.SaveTokens(ctx, OAuthTokens{AccessToken: "xyz", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}
	client := HTTPClient(ctx, nil, provider)
	resp, err := client.Get(backend.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if gotAuth != "Bearer xyz" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer xyz")
	}
}
