// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package auth implements the client side of the OAuth 2.1 authorization
// flow MCP servers use to protect the streamable HTTP and legacy SSE
// transports: discovery, dynamic client registration, PKCE, and token
// exchange/refresh.
package auth

import "time"

// OAuthMetadata is RFC 8414's OAuth 2.0 Authorization Server Metadata,
// the subset this client acts on.
type OAuthMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// OAuthTokens is an OAuth 2.1 token endpoint response.
type OAuthTokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// OAuthClientMetadata is the RFC 7591 Dynamic Client Registration
// request body a client sends to register itself.
type OAuthClientMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
}

// OAuthClientInformation is the subset of a client registration response
// needed to authenticate subsequent requests.
type OAuthClientInformation struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientIDIssuedAt      int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at,omitempty"`
}

// OAuthClientInformationFull is a full RFC 7591 registration response:
// client information plus the echoed metadata.
type OAuthClientInformationFull struct {
	OAuthClientInformation
	OAuthClientMetadata
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`
}

// AuthInfo describes a validated access token, as produced by a resource
// server's bearer token verifier.
type AuthInfo struct {
	Token     string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
	Extra     map[string]any
}

// Expired reports whether the token's expiry, if any, has passed.
func (a AuthInfo) Expired() bool {
	return !a.ExpiresAt.IsZero() && time.Now().After(a.ExpiresAt)
}

// HasScopes reports whether a carries every scope in required.
func (a AuthInfo) HasScopes(required ...string) bool {
	have := make(map[string]bool, len(a.Scopes))
	for _, s := range a.Scopes {
		have[s] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}
