// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

// Options configures one call to Auth.
type Options struct {
	// ServerURL is the MCP server's resource URL.
	ServerURL string
	// AuthorizationCode completes a redirect-based flow when set.
	AuthorizationCode string
	// Scope overrides the scope discovered from resource metadata.
	Scope string
	// ResourceMetadataURL is recovered from a 401's WWW-Authenticate
	// header, if any.
	ResourceMetadataURL string
}

// Auth runs the OAuth 2.1 authorization flow end to end: discovery,
// client registration, token refresh or exchange, and (for interactive
// providers) starting a new authorization request. On an invalid_client
// or unauthorized error it invalidates the relevant credentials and
// retries once.
func Auth(ctx context.Context, c *http.Client, provider ClientProvider, opts Options) (AuthResult, error) {
	result, err := authInternal(ctx, c, provider, opts)
	if err == nil {
		return result, nil
	}
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		return 0, err
	}
	switch cerr.Code {
	case ErrCodeInvalidClient, ErrCodeUnauthorized:
		if ierr := provider.InvalidateCredentials(ctx, InvalidateAll); ierr != nil {
			return 0, ierr
		}
		return authInternal(ctx, c, provider, opts)
	case ErrCodeInvalidGrant:
		if ierr := provider.InvalidateCredentials(ctx, InvalidateTokens); ierr != nil {
			return 0, ierr
		}
		return authInternal(ctx, c, provider, opts)
	default:
		return 0, err
	}
}

func authInternal(ctx context.Context, c *http.Client, provider ClientProvider, opts Options) (AuthResult, error) {
	resourceMeta, _ := discoverProtectedResourceMetadata(ctx, c, opts.ServerURL, opts.ResourceMetadataURL)

	authServerURL := opts.ServerURL
	var scopesFromMetadata []string
	if resourceMeta != nil {
		if len(resourceMeta.AuthorizationServers) > 0 {
			authServerURL = resourceMeta.AuthorizationServers[0]
		}
		scopesFromMetadata = resourceMeta.ScopesSupported
	}

	metadata, err := discoverAuthorizationServerMetadata(ctx, c, authServerURL)
	if err != nil {
		return 0, err
	}

	clientInfo, err := provider.ClientInformation(ctx)
	if err != nil {
		return 0, err
	}
	if clientInfo == nil {
		if opts.AuthorizationCode != "" {
			return 0, newError(ErrCodeInvalidRequest, "client information required for authorization code exchange")
		}
		full, err := registerClient(ctx, c, metadata, provider.ClientMetadata())
		if err != nil {
			return 0, err
		}
		if err := provider.SaveClientInformation(ctx, full.OAuthClientInformation); err != nil {
			return 0, err
		}
		clientInfo = &full.OAuthClientInformation
	}

	resourceForMeta := ""
	if resourceMeta != nil {
		resourceForMeta = resourceMeta.Resource
	}
	resource, err := provider.ValidateResourceURL(ctx, opts.ServerURL, resourceForMeta)
	if err != nil {
		return 0, err
	}

	if provider.RedirectURL() == "" {
		tokens, err := fetchToken(ctx, c, provider, metadata, clientInfo, resource, opts.AuthorizationCode)
		if err != nil {
			return 0, err
		}
		if err := provider.SaveTokens(ctx, *tokens); err != nil {
			return 0, err
		}
		return AuthResultAuthorized, nil
	}

	if opts.AuthorizationCode != "" {
		tokens, err := exchangeAuthorizationCode(ctx, c, provider, metadata, clientInfo, opts.AuthorizationCode, resource)
		if err != nil {
			return 0, err
		}
		if err := provider.SaveTokens(ctx, *tokens); err != nil {
			return 0, err
		}
		return AuthResultAuthorized, nil
	}

	if existing, _ := provider.Tokens(ctx); existing != nil && existing.RefreshToken != "" {
		if tokens, err := refreshAuthorization(ctx, c, metadata, clientInfo, existing.RefreshToken, resource); err == nil {
			if err := provider.SaveTokens(ctx, *tokens); err != nil {
				return 0, err
			}
			return AuthResultAuthorized, nil
		}
		// Refresh failed: fall through to a fresh authorization request.
	}

	state, err := provider.State(ctx)
	if err != nil {
		return 0, err
	}
	scope := opts.Scope
	if scope == "" && len(scopesFromMetadata) > 0 {
		scope = strings.Join(scopesFromMetadata, " ")
	}
	authURL, verifier, err := startAuthorization(metadata, clientInfo, provider.RedirectURL(), scope, state, resource)
	if err != nil {
		return 0, err
	}
	if err := provider.SaveCodeVerifier(ctx, verifier); err != nil {
		return 0, err
	}
	if err := provider.RedirectToAuthorization(ctx, authURL); err != nil {
		return 0, err
	}
	return AuthResultRedirect, nil
}

// registerClient performs RFC 7591 dynamic client registration.
func registerClient(ctx context.Context, c *http.Client, metadata *OAuthMetadata, clientMetadata OAuthClientMetadata) (*OAuthClientInformationFull, error) {
	if metadata.RegistrationEndpoint == "" {
		return nil, newError(ErrCodeServer, "authorization server does not support dynamic client registration")
	}
	body, err := internaljson.Marshal(clientMetadata)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, metadata.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := doRequest(c, req)
	if err != nil {
		return nil, newError(ErrCodeNetwork, "registration failed: %v", err)
	}
	defer resp.Body.Close()
	var full OAuthClientInformationFull
	if err := internaljson.Unmarshal(resp.Body(), &full); err != nil {
		return nil, newError(ErrCodeServer, "invalid registration response: %v", err)
	}
	return &full, nil
}

// startAuthorization builds the RFC 6749 + PKCE authorization URL.
func startAuthorization(metadata *OAuthMetadata, clientInfo *OAuthClientInformation, redirectURL, scope, state, resource string) (authURL, codeVerifier string, err error) {
	verifier, challenge, err := generatePKCEChallenge()
	if err != nil {
		return "", "", err
	}
	u, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return "", "", newError(ErrCodeInvalidRequest, "invalid authorization endpoint: %v", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientInfo.ClientID)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("redirect_uri", redirectURL)
	if state != "" {
		q.Set("state", state)
	}
	if scope != "" {
		q.Set("scope", scope)
	}
	if resource != "" {
		q.Set("resource", resource)
	}
	u.RawQuery = q.Encode()
	return u.String(), verifier, nil
}

// exchangeAuthorizationCode trades an authorization code for tokens.
func exchangeAuthorizationCode(ctx context.Context, c *http.Client, provider ClientProvider, metadata *OAuthMetadata, clientInfo *OAuthClientInformation, code, resource string) (*OAuthTokens, error) {
	verifier, err := provider.CodeVerifier(ctx)
	if err != nil {
		return nil, err
	}
	redirectURL := provider.RedirectURL()
	if redirectURL == "" {
		return nil, newError(ErrCodeInvalidRequest, "redirect url required")
	}
	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {redirectURL},
		"client_id":     {clientInfo.ClientID},
	}
	if clientInfo.ClientSecret != "" {
		params.Set("client_secret", clientInfo.ClientSecret)
	}
	if resource != "" {
		params.Set("resource", resource)
	}
	return executeTokenRequest(ctx, c, metadata.TokenEndpoint, params)
}

// refreshAuthorization exchanges a refresh token for a new access token,
// preserving the original refresh token if the server does not rotate it.
func refreshAuthorization(ctx context.Context, c *http.Client, metadata *OAuthMetadata, clientInfo *OAuthClientInformation, refreshToken, resource string) (*OAuthTokens, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientInfo.ClientID},
	}
	if clientInfo.ClientSecret != "" {
		params.Set("client_secret", clientInfo.ClientSecret)
	}
	if resource != "" {
		params.Set("resource", resource)
	}
	tokens, err := executeTokenRequest(ctx, c, metadata.TokenEndpoint, params)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// fetchToken uses the provider's custom grant parameters if supplied,
// otherwise falls back to an authorization code exchange.
func fetchToken(ctx context.Context, c *http.Client, provider ClientProvider, metadata *OAuthMetadata, clientInfo *OAuthClientInformation, resource, authorizationCode string) (*OAuthTokens, error) {
	scope := provider.ClientMetadata().Scope
	if custom, err := provider.PrepareTokenRequest(ctx, scope); err != nil {
		return nil, err
	} else if custom != nil {
		params := custom
		params.Set("client_id", clientInfo.ClientID)
		if clientInfo.ClientSecret != "" {
			params.Set("client_secret", clientInfo.ClientSecret)
		}
		if resource != "" {
			params.Set("resource", resource)
		}
		return executeTokenRequest(ctx, c, metadata.TokenEndpoint, params)
	}
	if authorizationCode != "" {
		return exchangeAuthorizationCode(ctx, c, provider, metadata, clientInfo, authorizationCode, resource)
	}
	return nil, newError(ErrCodeInvalidRequest, "either a custom grant or an authorization code is required")
}

// executeTokenRequest POSTs params to tokenEndpoint as
// application/x-www-form-urlencoded and decodes the JSON token response.
func executeTokenRequest(ctx context.Context, c *http.Client, tokenEndpoint string, params url.Values) (*OAuthTokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := doRequest(c, req)
	if err != nil {
		return nil, newError(ErrCodeNetwork, "token request failed: %v", err)
	}
	defer resp.Body.Close()
	var tokens OAuthTokens
	if err := internaljson.Unmarshal(resp.Body(), &tokens); err != nil {
		return nil, newError(ErrCodeServer, "invalid token response: %v", err)
	}
	return &tokens, nil
}

// readResponse is a thin wrapper giving doRequest's caller a single
// already-buffered Body() call instead of juggling io.ReadAll at every
// call site.
type readResponse struct {
	status int
	body   []byte
}

func (r *readResponse) Body() []byte { return r.body }
func (r *readResponse) Close() error { return nil }

func doRequest(c *http.Client, req *http.Request) (*readResponse, error) {
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(http.MaxBytesReader(nil, resp.Body, 1<<20)); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errFromStatus(resp.StatusCode, buf.Bytes())
	}
	return &readResponse{status: resp.StatusCode, body: buf.Bytes()}, nil
}

func errFromStatus(status int, body []byte) error {
	var oauthErr struct {
		Error string `json:"error"`
	}
	_ = internaljson.Unmarshal(body, &oauthErr)
	switch oauthErr.Error {
	case "invalid_client":
		return newError(ErrCodeInvalidClient, "status %s: %s", strconv.Itoa(status), body)
	case "invalid_grant":
		return newError(ErrCodeInvalidGrant, "status %s: %s", strconv.Itoa(status), body)
	}
	if status == http.StatusUnauthorized {
		return newError(ErrCodeUnauthorized, "status %s: %s", strconv.Itoa(status), body)
	}
	return newError(ErrCodeServer, "status %s: %s", strconv.Itoa(status), body)
}
