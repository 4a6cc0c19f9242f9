// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"net/url"
	"sync"
)

// AuthResult reports the outcome of one Auth call.
type AuthResult int

const (
	// AuthResultAuthorized means valid tokens are now available via the
	// provider's Tokens method.
	AuthResultAuthorized AuthResult = iota
	// AuthResultRedirect means the caller must complete an interactive
	// redirect; RedirectToAuthorization has already been invoked.
	AuthResultRedirect
)

// InvalidationScope selects which persisted credentials InvalidateCredentials
// clears.
type InvalidationScope int

const (
	InvalidateAll InvalidationScope = iota
	InvalidateClient
	InvalidateTokens
	InvalidateVerifier
)

// ClientProvider is implemented by callers of the OAuth authorization
// flow to supply persistence and interactivity: where tokens and client
// registration are stored, and how the user is redirected to authorize.
type ClientProvider interface {
	// RedirectURL returns the registered redirect URI, or "" for
	// non-interactive flows (client_credentials, jwt-bearer, ...).
	RedirectURL() string
	// ClientMetadata is the metadata sent during dynamic registration.
	ClientMetadata() OAuthClientMetadata
	// State returns an optional CSRF state parameter.
	State(ctx context.Context) (string, error)

	ClientInformation(ctx context.Context) (*OAuthClientInformation, error)
	SaveClientInformation(ctx context.Context, info OAuthClientInformation) error

	Tokens(ctx context.Context) (*OAuthTokens, error)
	SaveTokens(ctx context.Context, tokens OAuthTokens) error

	RedirectToAuthorization(ctx context.Context, url string) error

	SaveCodeVerifier(ctx context.Context, verifier string) error
	CodeVerifier(ctx context.Context) (string, error)

	// InvalidateCredentials clears persisted state after the
	// authorization server rejects the client or a grant.
	InvalidateCredentials(ctx context.Context, scope InvalidationScope) error

	// ValidateResourceURL resolves the RFC 8707 resource indicator sent
	// with authorization and token requests. The default implementation
	// returns resource unchanged.
	ValidateResourceURL(ctx context.Context, serverURL string, resource string) (string, error)

	// PrepareTokenRequest allows a non-interactive provider to supply a
	// custom grant (e.g. client_credentials) instead of the default
	// authorization_code exchange. Returning nil selects the default.
	PrepareTokenRequest(ctx context.Context, scope string) (url.Values, error)
}

// InMemoryClientProvider is a ClientProvider backed by process memory,
// suitable for tests and short-lived CLI clients.
type InMemoryClientProvider struct {
	redirectURL string
	metadata    OAuthClientMetadata

	mu           sync.RWMutex
	clientInfo   *OAuthClientInformation
	tokens       *OAuthTokens
	codeVerifier string
	lastAuthURL  string
}

// NewInMemoryClientProvider returns a ClientProvider with no persisted
// state. redirectURL may be empty to select a non-interactive flow.
func NewInMemoryClientProvider(redirectURL string, metadata OAuthClientMetadata) *InMemoryClientProvider {
	return &InMemoryClientProvider{redirectURL: redirectURL, metadata: metadata}
}

// WithClientInformation pre-seeds already-registered client credentials,
// skipping dynamic registration.
func (p *InMemoryClientProvider) WithClientInformation(info OAuthClientInformation) *InMemoryClientProvider {
	p.mu.Lock()
	p.clientInfo = &info
	p.mu.Unlock()
	return p
}

// LastAuthorizationURL returns the most recent URL passed to
// RedirectToAuthorization, for tests to assert against.
func (p *InMemoryClientProvider) LastAuthorizationURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastAuthURL
}

func (p *InMemoryClientProvider) RedirectURL() string               { return p.redirectURL }
func (p *InMemoryClientProvider) ClientMetadata() OAuthClientMetadata { return p.metadata }

func (p *InMemoryClientProvider) State(ctx context.Context) (string, error) { return "", nil }

func (p *InMemoryClientProvider) ClientInformation(ctx context.Context) (*OAuthClientInformation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clientInfo, nil
}

func (p *InMemoryClientProvider) SaveClientInformation(ctx context.Context, info OAuthClientInformation) error {
	p.mu.Lock()
	p.clientInfo = &info
	p.mu.Unlock()
	return nil
}

func (p *InMemoryClientProvider) Tokens(ctx context.Context) (*OAuthTokens, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tokens, nil
}

func (p *InMemoryClientProvider) SaveTokens(ctx context.Context, tokens OAuthTokens) error {
	p.mu.Lock()
	p.tokens = &tokens
	p.mu.Unlock()
	return nil
}

func (p *InMemoryClientProvider) RedirectToAuthorization(ctx context.Context, url string) error {
	p.mu.Lock()
	p.lastAuthURL = url
	p.mu.Unlock()
	return nil
}

func (p *InMemoryClientProvider) SaveCodeVerifier(ctx context.Context, verifier string) error {
	p.mu.Lock()
	p.codeVerifier = verifier
	p.mu.Unlock()
	return nil
}

func (p *InMemoryClientProvider) CodeVerifier(ctx context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.codeVerifier == "" {
		return "", newError(ErrCodeStorage, "no code verifier saved")
	}
	return p.codeVerifier, nil
}

func (p *InMemoryClientProvider) InvalidateCredentials(ctx context.Context, scope InvalidationScope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch scope {
	case InvalidateAll:
		p.clientInfo, p.tokens, p.codeVerifier = nil, nil, ""
	case InvalidateClient:
		p.clientInfo = nil
	case InvalidateTokens:
		p.tokens = nil
	case InvalidateVerifier:
		p.codeVerifier = ""
	}
	return nil
}

func (p *InMemoryClientProvider) ValidateResourceURL(ctx context.Context, serverURL, resource string) (string, error) {
	if resource != "" {
		return resource, nil
	}
	return serverURL, nil
}

func (p *InMemoryClientProvider) PrepareTokenRequest(ctx context.Context, scope string) (url.Values, error) {
	return nil, nil
}
