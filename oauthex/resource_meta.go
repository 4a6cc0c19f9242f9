// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements Protected Resource Metadata discovery.
// See https://www.rfc-editor.org/rfc/rfc9728.html.

package oauthex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

const defaultProtectedResourceMetadataURI = "/.well-known/oauth-protected-resource"
const defaultAuthorizationServerMetadataURI = "/.well-known/oauth-authorization-server"

// GetProtectedResourceMetadataFromID issues a GET request to retrieve
// protected resource metadata from a resource server by its ID. The
// resource ID is an HTTPS URL, typically with a host:port and possibly a
// path, e.g. https://example.com/server. It inserts the default
// well-known path into the URL, retrieves the metadata there, and
// validates its resource field against resourceID.
func GetProtectedResourceMetadataFromID(ctx context.Context, resourceID string, c *http.Client) (*ProtectedResourceMetadata, error) {
	u, err := url.Parse(resourceID)
	if err != nil {
		return nil, fmt.Errorf("parsing resource id %q: %w", resourceID, err)
	}
	u.Path = path.Join(defaultProtectedResourceMetadataURI, u.Path)
	return GetProtectedResourceMetadata(ctx, ProtectedResourceMetadataURL{
		URL:      u.String(),
		Resource: resourceID,
	}, c)
}

// GetProtectedResourceMetadataFromHeader discovers a metadata URL by
// parsing the WWW-Authenticate headers of a 401 response and retrieves
// protected resource metadata there. Per RFC 9728 §3.3, it validates that
// the resulting metadata's resource field matches serverURL. Returns
// (nil, nil) if the header names no metadata URL.
func GetProtectedResourceMetadataFromHeader(ctx context.Context, serverURL string, header http.Header, c *http.Client) (*ProtectedResourceMetadata, error) {
	headers := header[http.CanonicalHeaderKey("WWW-Authenticate")]
	if len(headers) == 0 {
		return nil, nil
	}
	cs, err := ParseWWWAuthenticate(headers)
	if err != nil {
		return nil, err
	}
	metadataURL := ResourceMetadataURL(cs)
	if metadataURL == "" {
		return nil, nil
	}
	return GetProtectedResourceMetadata(ctx, ProtectedResourceMetadataURL{
		URL:      metadataURL,
		Resource: serverURL,
	}, c)
}

// GetProtectedResourceMetadata issues a GET request to retrieve protected
// resource metadata at metadataURL, validating the response's resource
// field and authorization server URLs.
func GetProtectedResourceMetadata(ctx context.Context, metadataURL ProtectedResourceMetadataURL, c *http.Client) (*ProtectedResourceMetadata, error) {
	prm, err := getJSON[ProtectedResourceMetadata](ctx, c, metadataURL.URL, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("GetProtectedResourceMetadata(%q): %w", metadataURL.URL, err)
	}
	if prm.Resource != metadataURL.Resource {
		return nil, fmt.Errorf("got metadata resource %q, want %q", prm.Resource, metadataURL.Resource)
	}
	for _, u := range prm.AuthorizationServers {
		if err := checkURLScheme(u); err != nil {
			return nil, err
		}
	}
	return prm, nil
}

// ProtectedResourceMetadataURLs returns the candidate URLs to try, in
// order, when locating protected resource metadata for resourceURL:
// a caller-discovered metadataURL first, then the path-scoped well-known
// location, then the root well-known location.
func ProtectedResourceMetadataURLs(metadataURL, resourceURL string) []ProtectedResourceMetadataURL {
	var urls []ProtectedResourceMetadataURL
	if metadataURL != "" {
		urls = append(urls, ProtectedResourceMetadataURL{URL: metadataURL, Resource: resourceURL})
	}
	ru, err := url.Parse(resourceURL)
	if err != nil {
		return urls
	}
	mu := *ru
	mu.Path = "/.well-known/oauth-protected-resource/" + strings.TrimLeft(ru.Path, "/")
	urls = append(urls, ProtectedResourceMetadataURL{URL: mu.String(), Resource: resourceURL})
	mu.Path = "/.well-known/oauth-protected-resource"
	rootResource := *ru
	rootResource.Path = ""
	urls = append(urls, ProtectedResourceMetadataURL{URL: mu.String(), Resource: rootResource.String()})
	return urls
}

// GetAuthorizationServerMetadata retrieves RFC 8414 Authorization Server
// Metadata for authServerURL, trying the well-known path before falling
// back to treating authServerURL itself as the metadata document.
func GetAuthorizationServerMetadata(ctx context.Context, authServerURL string, c *http.Client) (*AuthorizationServerMetadata, error) {
	u, err := url.Parse(authServerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing authorization server url %q: %w", authServerURL, err)
	}
	wellKnown := *u
	wellKnown.Path = path.Join(defaultAuthorizationServerMetadataURI, u.Path)
	meta, err := getJSON[AuthorizationServerMetadata](ctx, c, wellKnown.String(), 1<<20)
	if err == nil {
		return meta, nil
	}
	return getJSON[AuthorizationServerMetadata](ctx, c, authServerURL, 1<<20)
}

// checkURLScheme rejects non-HTTP(S) authorization server URLs, which
// could otherwise be used to smuggle a javascript: or data: URL into a
// redirect (see RFC 9728 §7.1).
func checkURLScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid authorization server url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("authorization server url %q uses disallowed scheme %q", rawURL, u.Scheme)
	}
}

// getJSON fetches url and decodes its JSON body as T, capping the
// response body at maxBytes.
func getJSON[T any](ctx context.Context, c *http.Client, url string, maxBytes int64) (*T, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body from %s: %w", url, err)
	}
	var v T
	if err := internaljson.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return &v, nil
}
