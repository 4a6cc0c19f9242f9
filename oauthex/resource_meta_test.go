// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package oauthex

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetProtectedResourceMetadata(t *testing.T) {
	var resourceURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resource":"` + resourceURL + `","authorization_servers":["` + resourceURL + `"]}`))
	}))
	defer srv.Close()
	resourceURL = srv.URL

	meta, err := GetProtectedResourceMetadata(t.Context(), ProtectedResourceMetadataURL{
		URL:      srv.URL + "/.well-known/oauth-protected-resource",
		Resource: srv.URL,
	}, srv.Client())
	if err != nil {
		t.Fatalf("GetProtectedResourceMetadata: %v", err)
	}
	if meta.Resource != srv.URL {
		t.Errorf("Resource = %q, want %q", meta.Resource, srv.URL)
	}
}

func TestGetProtectedResourceMetadataResourceMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resource":"https://wrong.example"}`))
	}))
	defer srv.Close()

	_, err := GetProtectedResourceMetadata(t.Context(), ProtectedResourceMetadataURL{
		URL:      srv.URL,
		Resource: srv.URL,
	}, srv.Client())
	if err == nil {
		t.Fatal("GetProtectedResourceMetadata: want error on resource mismatch")
	}
}

func TestGetProtectedResourceMetadataRejectsDisallowedScheme(t *testing.T) {
	var resourceURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resource":"` + resourceURL + `","authorization_servers":["javascript:alert(1)"]}`))
	}))
	defer srv.Close()
	resourceURL = srv.URL

	_, err := GetProtectedResourceMetadata(t.Context(), ProtectedResourceMetadataURL{
		URL:      srv.URL,
		Resource: srv.URL,
	}, srv.Client())
	if err == nil {
		t.Fatal("GetProtectedResourceMetadata: want error for a disallowed authorization server scheme")
	}
}

func TestProtectedResourceMetadataURLs(t *testing.T) {
	urls := ProtectedResourceMetadataURLs("", "https://example.com/api/v1")
	if len(urls) != 2 {
		t.Fatalf("len(urls) = %d, want 2 (no caller-supplied metadata URL)", len(urls))
	}
	if urls[0].URL != "https://example.com/.well-known/oauth-protected-resource/api/v1" {
		t.Errorf("urls[0].URL = %q", urls[0].URL)
	}
	if urls[1].URL != "https://example.com/.well-known/oauth-protected-resource" {
		t.Errorf("urls[1].URL = %q", urls[1].URL)
	}

	withCaller := ProtectedResourceMetadataURLs("https://example.com/custom-meta", "https://example.com/api")
	if len(withCaller) != 3 || withCaller[0].URL != "https://example.com/custom-meta" {
		t.Errorf("withCaller[0] = %+v, want the caller-supplied URL first", withCaller[0])
	}
}

func TestGetAuthorizationServerMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issuer":"test","authorization_endpoint":"test/authorize","token_endpoint":"test/token"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	meta, err := GetAuthorizationServerMetadata(t.Context(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("GetAuthorizationServerMetadata: %v", err)
	}
	if meta.Issuer != "test" {
		t.Errorf("Issuer = %q, want test", meta.Issuer)
	}
}

func TestGetAuthorizationServerMetadataFallsBackToBareURL(t *testing.T) {
	// The well-known path 404s, so GetAuthorizationServerMetadata must
	// fall back to the bare authorization server URL, which the handler
	// answers.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-authorization-server" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issuer":"bare","authorization_endpoint":"bare/authorize","token_endpoint":"bare/token"}`))
	}))
	defer srv.Close()

	meta, err := GetAuthorizationServerMetadata(t.Context(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("GetAuthorizationServerMetadata: %v", err)
	}
	if meta.Issuer != "bare" {
		t.Errorf("Issuer = %q, want bare", meta.Issuer)
	}
}
