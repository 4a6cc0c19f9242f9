// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package oauthex

import "strings"

// challenge is one auth-scheme from a WWW-Authenticate header, e.g.
// `Bearer realm="example", error="invalid_token"`.
type challenge struct {
	Scheme string
	Params map[string]string
}

// ParseWWWAuthenticate parses the WWW-Authenticate header values of a 401
// response into their component challenges (RFC 7235 §4.1, RFC 6750 §3).
func ParseWWWAuthenticate(headers []string) ([]challenge, error) {
	var out []challenge
	for _, h := range headers {
		out = append(out, parseChallenges(h)...)
	}
	return out, nil
}

// parseChallenges splits one header value, which may list several
// comma-separated challenges, each introduced by an auth-scheme token.
func parseChallenges(header string) []challenge {
	var out []challenge
	rest := strings.TrimSpace(header)
	for rest != "" {
		scheme, tail, ok := cutToken(rest)
		if !ok {
			break
		}
		params := make(map[string]string)
		tail = strings.TrimSpace(tail)
		for tail != "" {
			if looksLikeScheme(tail) {
				break
			}
			var key, value string
			key, tail = cutParamKey(tail)
			if key == "" {
				break
			}
			value, tail = cutParamValue(tail)
			params[key] = value
			tail = strings.TrimSpace(strings.TrimPrefix(tail, ","))
			tail = strings.TrimSpace(tail)
		}
		out = append(out, challenge{Scheme: strings.ToLower(scheme), Params: params})
		rest = tail
	}
	return out
}

func cutToken(s string) (token, rest string, ok bool) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, "", s != ""
	}
	return s[:idx], s[idx+1:], true
}

// looksLikeScheme reports whether s begins with what looks like the next
// auth-scheme rather than another key=value parameter (no '=' before the
// next delimiter).
func looksLikeScheme(s string) bool {
	end := strings.IndexAny(s, " \t=")
	return end >= 0 && s[end] != '='
}

func cutParamKey(s string) (key, rest string) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", ""
	}
	return strings.TrimSpace(s[:idx]), s[idx+1:]
}

func cutParamValue(s string) (value, rest string) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		if idx := strings.IndexByte(s[1:], '"'); idx >= 0 {
			return s[1 : idx+1], s[idx+2:]
		}
		return s[1:], ""
	}
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		return s[:idx], s[idx:]
	}
	return s, ""
}

// ResourceMetadataURL returns the resource_metadata challenge parameter
// from cs, or the empty string if none of the challenges carry one.
func ResourceMetadataURL(cs []challenge) string {
	for _, c := range cs {
		if u := c.Params["resource_metadata"]; u != "" {
			return u
		}
	}
	return ""
}

// Scopes returns the space-separated scope list from a bearer challenge
// in cs, or nil if none is present.
func Scopes(cs []challenge) []string {
	for _, c := range cs {
		if c.Scheme == "bearer" && c.Params["scope"] != "" {
			return strings.Fields(c.Params["scope"])
		}
	}
	return nil
}
