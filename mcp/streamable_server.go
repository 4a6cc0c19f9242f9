// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	internaljson "github.com/relaymcp/relaymcp/internal/json"
)

const (
	headerSessionID    = "mcp-session-id"
	headerLastEventID  = "Last-Event-ID"
	defaultEndpointPath = "/mcp"
)

// StreamableServerOptions configures StreamableServerTransport. Zero
// values select sensible defaults.
type StreamableServerOptions struct {
	EndpointPath    string
	BaseURL         string
	KeepAlive       time.Duration
	Broadcaster     BroadcasterOptions
	Sessions        SessionManagerOptions
	DNSAllowList    []string // nil disables the guard entirely if DisableDNSGuard is set
	DisableDNSGuard bool
	Logger          *slog.Logger
}

func (o StreamableServerOptions) withDefaults() StreamableServerOptions {
	if o.EndpointPath == "" {
		o.EndpointPath = defaultEndpointPath
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StreamableServerTransport serves the single-endpoint POST/GET/DELETE
// streamable HTTP surface. Grounded on
// _examples/original_source/server/src/http/handler.rs and
// crates/mcp-server/src/http/axum_handler.rs.
type StreamableServerTransport struct {
	opts         StreamableServerOptions
	dispatcher   *Dispatcher
	sessions     *SessionManager
	broadcasters *BroadcasterRegistry
	dnsGuard     *DNSRebindGuard
}

// NewStreamableServerTransport wires a Dispatcher to the streamable HTTP
// surface.
func NewStreamableServerTransport(d *Dispatcher, opts StreamableServerOptions) *StreamableServerTransport {
	opts = opts.withDefaults()
	var guard *DNSRebindGuard
	if !opts.DisableDNSGuard {
		guard = NewDNSRebindGuard(opts.DNSAllowList)
	}
	return &StreamableServerTransport{
		opts:         opts,
		dispatcher:   d,
		sessions:     NewSessionManager(opts.Sessions),
		broadcasters: NewBroadcasterRegistry(),
		dnsGuard:     guard,
	}
}

// Sessions exposes the underlying SessionManager, e.g. so a cron-driven
// cleanup job (see NewCleanupScheduler) can call CleanupExpired.
func (t *StreamableServerTransport) Sessions() *SessionManager { return t.sessions }

// ServeHTTP implements http.Handler over the POST/GET/DELETE verbs of
// the streamable HTTP transport.
func (t *StreamableServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.dnsGuard != nil && !t.dnsGuard.Allowed(r.Host) {
		WriteRejection(w, "host not permitted")
		return
	}
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (t *StreamableServerTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !hasMediaType(ct, "application/json") {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	session, isNew := t.sessionFor(r)
	if isNew {
		w.Header().Set(headerSessionID, session.SessionID)
	}

	switch m := msg.(type) {
	case *Request:
		result := t.dispatcher.DispatchRequest(r.Context(), session.SessionID, m, DispatchOptions{Cancel: r.Context().Done()})
		frame, err := EncodeMessage(result)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(frame)
	case *Notification:
		t.dispatcher.DispatchNotification(r.Context(), session.SessionID, m)
		w.WriteHeader(http.StatusAccepted)
	case *Result:
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (t *StreamableServerTransport) handleGet(w http.ResponseWriter, r *http.Request) {
	if !hasMediaType(r.Header.Get("Accept"), "text/event-stream") {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	session, isNew := t.sessionFor(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set(headerSessionID, session.SessionID)
	w.WriteHeader(http.StatusOK)
	_ = isNew

	b := t.broadcasters.GetOrCreate(session.SessionID, func() *Broadcaster {
		return NewBroadcaster(session, t.sessions, t.opts.Broadcaster, t.opts.Logger)
	})

	writeEvent(w, flusher, SseEvent{Kind: SseSessionReady, SessionID: session.SessionID}, "")
	endpoint := t.opts.BaseURL + t.opts.EndpointPath
	writeEvent(w, flusher, SseEvent{Kind: SseEndpoint, EndpointURL: endpoint}, "")

	if lastID := r.Header.Get(headerLastEventID); lastID != "" {
		for _, be := range b.EventsAfter(lastID) {
			writeEvent(w, flusher, be.Event, be.ID)
		}
	}

	live, unsubscribe := b.Subscribe(t.opts.Broadcaster.withDefaults().BroadcastCapacity)
	defer unsubscribe()

	keepAlive := time.NewTicker(t.opts.KeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case be, ok := <-live:
			if !ok {
				return
			}
			writeEvent(w, flusher, be.Event, be.ID)
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (t *StreamableServerTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(headerSessionID)
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := t.sessions.ValidateSession(id); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	t.sessions.RemoveSession(id)
	t.broadcasters.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// sessionFor resolves the mcp-session-id header to a session, tolerantly
// recreating one if the id is unknown.
func (t *StreamableServerTransport) sessionFor(r *http.Request) (*SessionState, bool) {
	id := r.Header.Get(headerSessionID)
	return t.sessions.GetOrCreate(id)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := internaljson.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev SseEvent, id string) {
	s, err := ev.ToSSEString(id)
	if err != nil {
		return
	}
	io.WriteString(w, s)
	flusher.Flush()
}

// hasMediaType reports whether header (an Accept or Content-Type value,
// possibly with parameters or multiple comma-separated values) contains
// mediaType.
func hasMediaType(header, mediaType string) bool {
	for _, part := range bytes.Split([]byte(header), []byte(",")) {
		p := bytes.TrimSpace(part)
		if semi := bytes.IndexByte(p, ';'); semi >= 0 {
			p = bytes.TrimSpace(p[:semi])
		}
		if string(p) == mediaType {
			return true
		}
	}
	return false
}
