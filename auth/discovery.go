// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"net/http"

	"github.com/relaymcp/relaymcp/oauthex"
)

// discoverProtectedResourceMetadata looks up the resource server's RFC
// 9728 metadata, trying resourceMetadataURL first (if the caller
// recovered one from a WWW-Authenticate challenge) and falling back to
// the well-known locations derived from serverURL.
func discoverProtectedResourceMetadata(ctx context.Context, c *http.Client, serverURL, resourceMetadataURL string) (*oauthex.ProtectedResourceMetadata, error) {
	var lastErr error
	for _, u := range oauthex.ProtectedResourceMetadataURLs(resourceMetadataURL, serverURL) {
		meta, err := oauthex.GetProtectedResourceMetadata(ctx, u, c)
		if err == nil {
			return meta, nil
		}
		lastErr = err
	}
	return nil, newError(ErrCodeServer, "no protected resource metadata found for %s: %v", serverURL, lastErr)
}

// discoverAuthorizationServerMetadata looks up RFC 8414 metadata for
// authServerURL.
func discoverAuthorizationServerMetadata(ctx context.Context, c *http.Client, authServerURL string) (*OAuthMetadata, error) {
	meta, err := oauthex.GetAuthorizationServerMetadata(ctx, authServerURL, c)
	if err != nil {
		return nil, newError(ErrCodeServer, "discovering authorization server metadata: %v", err)
	}
	return &OAuthMetadata{
		Issuer:                        meta.Issuer,
		AuthorizationEndpoint:         meta.AuthorizationEndpoint,
		TokenEndpoint:                 meta.TokenEndpoint,
		RegistrationEndpoint:          meta.RegistrationEndpoint,
		ScopesSupported:               meta.ScopesSupported,
		ResponseTypesSupported:        meta.ResponseTypesSupported,
		GrantTypesSupported:           meta.GrantTypesSupported,
		CodeChallengeMethodsSupported: meta.CodeChallengeMethodsSupported,
	}, nil
}
