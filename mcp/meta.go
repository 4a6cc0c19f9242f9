// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// progressTokenKey is the well-known _meta key carrying a progress token,
// per the method tree in the protocol's request/notification params.
const progressTokenKey = "progressToken"

// Meta is the `_meta` field attached to params and results throughout the
// protocol: an open map of additional, protocol-reserved metadata.
type Meta map[string]any

// GetMeta returns m, or an empty, non-nil map if m is nil.
func (m Meta) GetMeta() Meta {
	if m == nil {
		return Meta{}
	}
	return m
}

// ProgressToken returns the progress token carried in m, if any.
func (m Meta) ProgressToken() (any, bool) {
	v, ok := m.GetMeta()[progressTokenKey]
	return v, ok
}

// Annotations are optional hints attached to content and resources,
// describing intended audience, recency, and importance.
type Annotations struct {
	Audience     []Role  `json:"audience,omitempty"`
	LastModified string  `json:"lastModified,omitempty"`
	Priority     float64 `json:"priority,omitempty"`
}

// Role identifies the originator or intended audience of a message or
// piece of content: "user" or "assistant".
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IconTheme restricts an icon's applicability to a client color scheme.
type IconTheme string

const (
	IconThemeLight IconTheme = "light"
	IconThemeDark  IconTheme = "dark"
)

// Icon is a displayable icon associated with a tool, resource, or server.
type Icon struct {
	Src      string    `json:"src"`
	MIMEType string    `json:"mimeType,omitempty"`
	Sizes    string    `json:"sizes,omitempty"`
	Theme    IconTheme `json:"theme,omitempty"`
}

// Implementation identifies a client or server implementation by name and
// version, exchanged during the initialize handshake.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}
