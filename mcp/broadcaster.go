// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"log/slog"
	"sync"
)

// BroadcasterOptions configures a Broadcaster's live-delivery channel and
// replay buffer.
type BroadcasterOptions struct {
	BroadcastCapacity int
	EventBuffer       EventBufferOptions
}

func (o BroadcasterOptions) withDefaults() BroadcasterOptions {
	if o.BroadcastCapacity <= 0 {
		o.BroadcastCapacity = 100
	}
	return o
}

// Broadcaster is the per-session fanout surface: it combines a bounded
// pub/sub channel delivering live events to every active SSE reader with
// the EventBuffer used for Last-Event-ID replay. Grounded on
// _examples/original_source/crates/mcp-server/src/http/axum_handler.rs's
// AxumHandlerState broadcaster map and SseBroadcaster.
type Broadcaster struct {
	session *SessionState
	manager *SessionManager
	buffer  *EventBuffer
	log     *slog.Logger

	mu   sync.Mutex
	subs map[int]chan BufferedEvent
	next int
}

// NewBroadcaster returns a Broadcaster for session, publishing into a
// buffer bounded by opts.
func NewBroadcaster(session *SessionState, manager *SessionManager, opts BroadcasterOptions, log *slog.Logger) *Broadcaster {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		session: session,
		manager: manager,
		buffer:  NewEventBuffer(opts.EventBuffer),
		log:     log,
		subs:    make(map[int]chan BufferedEvent),
	}
}

// Subscribe registers a new live reader and returns a channel delivering
// every event published after this call, plus an unsubscribe func. The
// channel is closed by Unsubscribe; it is never closed for any other
// reason, so a lagged reader must call Unsubscribe itself on error.
func (b *Broadcaster) Subscribe(capacity int) (<-chan BufferedEvent, func()) {
	if capacity <= 0 {
		capacity = 100
	}
	ch := make(chan BufferedEvent, capacity)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

// SendMessage assigns the next session-scoped event id, appends the event
// to the replay buffer, publishes it to every live subscriber, and
// returns the assigned id.
func (b *Broadcaster) SendMessage(msg Message) string {
	id := b.manager.NextEventID(b.session)
	be := BufferedEvent{ID: id, Event: SseEvent{Kind: SseMessage, Message: msg}, TimestampMs: nowMs()}
	b.publish(be)
	return id
}

// SendPing broadcasts a Ping without buffering it: keep-alives must never
// be replayed or surfaced as a Message event.
func (b *Broadcaster) SendPing() {
	b.publishLiveOnly(BufferedEvent{Event: SseEvent{Kind: SsePing}, TimestampMs: nowMs()})
}

func (b *Broadcaster) publish(be BufferedEvent) {
	b.mu.Lock()
	b.buffer.Push(be)
	subs := make([]chan BufferedEvent, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	b.deliver(be, subs)
}

func (b *Broadcaster) publishLiveOnly(be BufferedEvent) {
	b.mu.Lock()
	subs := make([]chan BufferedEvent, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	b.deliver(be, subs)
}

func (b *Broadcaster) deliver(be BufferedEvent, subs []chan BufferedEvent) {
	for _, ch := range subs {
		select {
		case ch <- be:
		default:
			// Lagged: the stream continues with a logged warning; the
			// reader recovers via Last-Event-ID on reconnect.
			b.log.Warn("sse subscriber lagged, event dropped", "session", b.session.SessionID)
		}
	}
}

// EventsAfter returns buffered events for Last-Event-ID replay.
func (b *Broadcaster) EventsAfter(lastID string) []BufferedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.EventsAfter(lastID)
}

// BroadcasterRegistry is the per-session broadcaster map, guarded by a
// single readers-writer lock using the double-check-insert pattern.
type BroadcasterRegistry struct {
	mu           sync.RWMutex
	broadcasters map[string]*Broadcaster
}

// NewBroadcasterRegistry returns an empty registry.
func NewBroadcasterRegistry() *BroadcasterRegistry {
	return &BroadcasterRegistry{broadcasters: make(map[string]*Broadcaster)}
}

// GetOrCreate returns the existing broadcaster for session, or creates
// one with new() if absent.
func (r *BroadcasterRegistry) GetOrCreate(sessionID string, new func() *Broadcaster) *Broadcaster {
	r.mu.RLock()
	b, ok := r.broadcasters[sessionID]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.broadcasters[sessionID]; ok {
		return b
	}
	b = new()
	r.broadcasters[sessionID] = b
	return b
}

// Remove deletes the broadcaster for session, if any.
func (r *BroadcasterRegistry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.broadcasters, sessionID)
	r.mu.Unlock()
}

// Get returns the broadcaster for session, if one exists.
func (r *BroadcasterRegistry) Get(sessionID string) (*Broadcaster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.broadcasters[sessionID]
	return b, ok
}
