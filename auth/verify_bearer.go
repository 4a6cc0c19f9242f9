// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// BearerVerifier validates an access token presented to a server
// embedding this module as a resource server. It supplements the
// client-only authorization flow above with the server-side half
// carried by _examples/original_source/crates/mcp-server/src/auth/.
type BearerVerifier struct {
	keyFunc        jwt.Keyfunc
	issuer         string
	audience       string
	parserOpts     []jwt.ParserOption
	requiredScopes []string
}

// NewBearerVerifier builds a verifier that checks JWT signature,
// expiry, and (if set) issuer/audience using keyFunc to resolve the
// signing key for each token, the same per-token key-resolution
// pattern jwt.Parse itself documents.
func NewBearerVerifier(keyFunc jwt.Keyfunc, opts ...BearerVerifierOption) *BearerVerifier {
	v := &BearerVerifier{keyFunc: keyFunc}
	for _, o := range opts {
		o(v)
	}
	return v
}

// BearerVerifierOption configures a BearerVerifier.
type BearerVerifierOption func(*BearerVerifier)

// WithIssuer rejects tokens whose "iss" claim does not match issuer.
func WithIssuer(issuer string) BearerVerifierOption {
	return func(v *BearerVerifier) { v.issuer = issuer }
}

// WithAudience rejects tokens whose "aud" claim does not contain audience.
func WithAudience(audience string) BearerVerifierOption {
	return func(v *BearerVerifier) { v.audience = audience }
}

// WithRequiredScopes rejects tokens whose "scope" claim is missing any
// of scopes.
func WithRequiredScopes(scopes ...string) BearerVerifierOption {
	return func(v *BearerVerifier) { v.requiredScopes = scopes }
}

// VerifyBearer parses the raw bearer token (without the "Bearer "
// prefix, if any), validates its signature and expiry, and returns the
// AuthInfo a dispatcher can gate requests on.
func (v *BearerVerifier) VerifyBearer(raw string) (*AuthInfo, error) {
	raw = strings.TrimPrefix(raw, "Bearer ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, newError(ErrCodeUnauthorized, "empty bearer token")
	}

	opts := v.parserOpts
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.Parse(raw, v.keyFunc, opts...)
	if err != nil {
		return nil, newError(ErrCodeUnauthorized, "invalid bearer token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, newError(ErrCodeUnauthorized, "invalid bearer token claims")
	}

	info := &AuthInfo{Token: raw, Extra: map[string]any{}}
	if sub, _ := claims.GetSubject(); sub != "" {
		info.ClientID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		info.Scopes = strings.Fields(scope)
	}
	for k, val := range claims {
		switch k {
		case "sub", "exp", "iat", "nbf", "iss", "aud", "scope":
		default:
			info.Extra[k] = val
		}
	}

	if len(v.requiredScopes) > 0 && !info.HasScopes(v.requiredScopes...) {
		return nil, newError(ErrCodeUnauthorized, "token missing required scope")
	}
	return info, nil
}
