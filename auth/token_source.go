// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// asOAuth2Token converts an OAuthTokens response into the
// golang.org/x/oauth2 type the rest of the Go ecosystem's HTTP clients
// already know how to attach as a bearer Authorization header.
func asOAuth2Token(t OAuthTokens) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.Scope != "" {
		tok = tok.WithExtra(map[string]any{"scope": t.Scope})
	}
	return tok
}

// ProviderTokenSource adapts a ClientProvider's stored tokens to
// oauth2.TokenSource, so a connection's *http.Client can be built with
// oauth2.NewClient(ctx, src) and get the Authorization header attached
// automatically instead of by hand at every request. Token returns the
// provider's cached token as-is; refreshing an expired token is still
// Auth's job (called with InvalidateTokens on invalid_grant), since
// that requires the full discovery + client-registration context a
// bare TokenSource doesn't have.
type ProviderTokenSource struct {
	ctx      context.Context
	provider ClientProvider
}

// NewProviderTokenSource wraps provider as an oauth2.TokenSource.
func NewProviderTokenSource(ctx context.Context, provider ClientProvider) *ProviderTokenSource {
	return &ProviderTokenSource{ctx: ctx, provider: provider}
}

// Token implements oauth2.TokenSource.
func (s *ProviderTokenSource) Token() (*oauth2.Token, error) {
	tokens, err := s.provider.Tokens(s.ctx)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, newError(ErrCodeUnauthorized, "no tokens available; call Auth first")
	}
	return asOAuth2Token(*tokens), nil
}

// HTTPClient returns an *http.Client that attaches provider's current
// access token to every outgoing request via oauth2.Transport, reusing
// base's underlying RoundTripper for the actual network transport.
func HTTPClient(ctx context.Context, base *http.Client, provider ClientProvider) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   base.Transport,
			Source: oauth2.ReuseTokenSource(nil, NewProviderTokenSource(ctx, provider)),
		},
		Timeout: base.Timeout,
	}
}
