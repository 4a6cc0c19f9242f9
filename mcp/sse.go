// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// SseEventKind distinguishes the typed SSE events this runtime emits and
// consumes.
type SseEventKind int

const (
	SseMessage SseEventKind = iota
	SseEndpoint
	SsePing
	SseSessionReady
)

// SseEvent is a typed Server-Sent Event, as produced by ParsedSseEvent.ToTyped.
type SseEvent struct {
	Kind        SseEventKind
	MessageID   *MessageID // set when Kind == SseMessage and the frame carried an id
	Message     Message    // set when Kind == SseMessage
	EndpointURL string     // set when Kind == SseEndpoint
	SessionID   string     // set when Kind == SseSessionReady
}

// ToSSEString renders e in standard SSE wire framing: "event:"/"data:"
// lines separated by a blank line, with an explicit "id:" line when id
// is non-empty.
func (e SseEvent) ToSSEString(id string) (string, error) {
	var eventName, data string
	switch e.Kind {
	case SseMessage:
		raw, err := EncodeMessage(e.Message)
		if err != nil {
			return "", fmt.Errorf("encoding sse message: %w", err)
		}
		eventName = "message"
		data = string(raw)
	case SseEndpoint:
		eventName = "endpoint"
		data = e.EndpointURL
	case SsePing:
		return ": ping\n\n", nil
	case SseSessionReady:
		eventName = "session"
		data = e.SessionID
	default:
		return "", fmt.Errorf("unknown sse event kind %d", e.Kind)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "event: %s\n", eventName)
	for _, line := range bytes.Split([]byte(data), []byte("\n")) {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	b.WriteString("\n")
	return b.String(), nil
}

// ParsedSseEvent is the output of the streaming SSE parser: the raw field
// values of one event frame, before conversion to a typed SseEvent.
type ParsedSseEvent struct {
	Event string // empty means absent, defaults to "message" on conversion
	Data  string
	ID    string
}

// ToTyped converts a raw parsed frame to a typed SseEvent.
func (p ParsedSseEvent) ToTyped() (SseEvent, error) {
	switch p.Event {
	case "", "message":
		msg, err := DecodeMessage([]byte(p.Data))
		if err != nil {
			return SseEvent{}, fmt.Errorf("parsing sse message data: %w", err)
		}
		ev := SseEvent{Kind: SseMessage, Message: msg}
		if p.ID != "" {
			id := NewStringID(p.ID)
			ev.MessageID = &id
		}
		return ev, nil
	case "endpoint":
		return SseEvent{Kind: SseEndpoint, EndpointURL: p.Data}, nil
	case "ping":
		return SseEvent{Kind: SsePing}, nil
	case "session":
		return SseEvent{Kind: SseSessionReady, SessionID: p.Data}, nil
	default:
		return SseEvent{}, fmt.Errorf("unknown sse event type %q", p.Event)
	}
}

// SSEParser is a streaming state machine that incrementally parses SSE
// framing, emitting one ParsedSseEvent per blank-line-terminated frame.
//
// It is not safe for concurrent use; callers serialize calls to Feed.
// Grounded on _examples/original_source/core/src/http/sse.rs.
type SSEParser struct {
	buf     bytes.Buffer
	event   string
	dataBuf bytes.Buffer
	haveData bool
	id      string
}

// NewSSEParser returns an empty parser.
func NewSSEParser() *SSEParser { return &SSEParser{} }

// Feed appends chunk to the parser's internal buffer and returns every
// complete event parsed out of it so far. Partial events at the end of
// chunk remain buffered until more bytes arrive.
func (p *SSEParser) Feed(chunk []byte) ([]ParsedSseEvent, error) {
	p.buf.Write(chunk)
	var events []ParsedSseEvent
	for {
		line, ok := p.nextLine()
		if !ok {
			return events, nil
		}
		if ev, emitted := p.consumeLine(line); emitted {
			events = append(events, ev)
		}
	}
}

// nextLine extracts the next \n-terminated line (trimming an optional
// trailing \r) from the buffer, or returns ok=false if no full line is
// available yet.
func (p *SSEParser) nextLine() (string, bool) {
	data := p.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return "", false
	}
	line := data[:idx]
	line = bytes.TrimSuffix(line, []byte("\r"))
	rest := make([]byte, len(data)-idx-1)
	copy(rest, data[idx+1:])
	p.buf.Reset()
	p.buf.Write(rest)
	return string(line), true
}

// consumeLine applies one line of SSE framing to the parser's in-progress
// event, emitting a ParsedSseEvent when line is the blank separator.
func (p *SSEParser) consumeLine(line string) (ParsedSseEvent, bool) {
	if line == "" {
		if !p.haveData && p.event == "" && p.id == "" {
			return ParsedSseEvent{}, false
		}
		ev := ParsedSseEvent{Event: p.event, Data: p.dataBuf.String(), ID: p.id}
		p.event = ""
		p.dataBuf.Reset()
		p.haveData = false
		p.id = ""
		return ev, true
	}
	if strings.HasPrefix(line, ":") {
		if line == ":ping" || line == ": ping" {
			return ParsedSseEvent{Event: "ping"}, true
		}
		return ParsedSseEvent{}, false
	}
	field, value, _ := cutColon(line)
	switch field {
	case "event":
		p.event = value
	case "data":
		if p.haveData {
			p.dataBuf.WriteByte('\n')
		}
		p.dataBuf.WriteString(value)
		p.haveData = true
	case "id":
		p.id = value
	case "retry":
		// Recognized but unused: this runtime does not act on
		// server-suggested reconnection delays.
	default:
		// unknown fields are ignored
	}
	return ParsedSseEvent{}, false
}

// cutColon splits "field: value" or "field:value" into field and value,
// trimming exactly one leading space from value per the SSE spec.
func cutColon(line string) (field, value string, ok bool) {
	field, value, ok = strings.Cut(line, ":")
	if !ok {
		return line, "", false
	}
	value = strings.TrimPrefix(value, " ")
	return field, value, true
}

// BufferedEvent is a ring-buffered event retained for Last-Event-ID replay.
type BufferedEvent struct {
	ID          string
	Event       SseEvent
	TimestampMs int64
}

// EventBufferOptions bounds an EventBuffer by count and age.
type EventBufferOptions struct {
	MaxEvents  int
	MaxAgeSecs int64
}

func (o EventBufferOptions) withDefaults() EventBufferOptions {
	if o.MaxEvents <= 0 {
		o.MaxEvents = 1000
	}
	if o.MaxAgeSecs <= 0 {
		o.MaxAgeSecs = 300
	}
	return o
}

// EventBuffer is a per-session ring buffer supporting Last-Event-ID
// replay. Grounded on
// _examples/original_source/crates/mcp-server/src/http/broadcast.rs.
//
// It is not safe for concurrent use on its own; the Broadcaster that owns
// it serializes writers and takes a snapshot for readers.
type EventBuffer struct {
	opts   EventBufferOptions
	events []BufferedEvent
}

// NewEventBuffer returns an empty EventBuffer.
func NewEventBuffer(opts EventBufferOptions) *EventBuffer {
	return &EventBuffer{opts: opts.withDefaults()}
}

// Push evicts expired events, then the oldest event if at capacity, then
// appends e.
func (b *EventBuffer) Push(e BufferedEvent) {
	b.evictExpired(e.TimestampMs)
	if len(b.events) >= b.opts.MaxEvents {
		b.events = b.events[1:]
	}
	b.events = append(b.events, e)
}

func (b *EventBuffer) evictExpired(nowMs int64) {
	cutoff := nowMs - b.opts.MaxAgeSecs*1000
	i := 0
	for i < len(b.events) && b.events[i].TimestampMs < cutoff {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}

// EventsAfter returns every buffered event strictly after lastID, in
// order. If lastID is absent from the buffer, it conservatively returns
// every buffered event. It does not evict by age itself; expired events
// are dropped only by Push.
func (b *EventBuffer) EventsAfter(lastID string) []BufferedEvent {
	if lastID == "" {
		return append([]BufferedEvent(nil), b.events...)
	}
	for i, e := range b.events {
		if e.ID == lastID {
			return append([]BufferedEvent(nil), b.events[i+1:]...)
		}
	}
	return append([]BufferedEvent(nil), b.events...)
}

// All returns every currently buffered event.
func (b *EventBuffer) All() []BufferedEvent {
	return append([]BufferedEvent(nil), b.events...)
}

// nowMs is overridable in tests; production code uses wall-clock time.
var nowMs = func() int64 { return time.Now().UnixMilli() }
