// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"testing"
)

// TestSSEParserByteByByteParity feeds the same SSE stream one byte at a
// time and all at once, and checks both ways produce identical events:
// the parser must not depend on chunk boundaries aligning with lines.
func TestSSEParserByteByByteParity(t *testing.T) {
	stream := "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\nid: 1\n\n" +
		"event: endpoint\ndata: /messages?sessionId=abc\n\n" +
		": ping\n\n"

	whole := NewSSEParser()
	wholeEvents, err := whole.Feed([]byte(stream))
	if err != nil {
		t.Fatalf("whole feed: %v", err)
	}

	piecewise := NewSSEParser()
	var gotEvents []ParsedSseEvent
	for i := 0; i < len(stream); i++ {
		evs, err := piecewise.Feed([]byte{stream[i]})
		if err != nil {
			t.Fatalf("byte-by-byte feed at %d: %v", i, err)
		}
		gotEvents = append(gotEvents, evs...)
	}

	if len(wholeEvents) != len(gotEvents) {
		t.Fatalf("event count mismatch: whole=%d piecewise=%d", len(wholeEvents), len(gotEvents))
	}
	for i := range wholeEvents {
		if wholeEvents[i] != gotEvents[i] {
			t.Errorf("event %d mismatch: whole=%+v piecewise=%+v", i, wholeEvents[i], gotEvents[i])
		}
	}
	if len(wholeEvents) != 3 {
		t.Fatalf("got %d events, want 3", len(wholeEvents))
	}
	if wholeEvents[0].Event != "message" || wholeEvents[0].ID != "1" {
		t.Errorf("event 0 = %+v, want message/id=1", wholeEvents[0])
	}
	if wholeEvents[1].Event != "endpoint" || wholeEvents[1].Data != "/messages?sessionId=abc" {
		t.Errorf("event 1 = %+v, want endpoint with that data", wholeEvents[1])
	}
	if wholeEvents[2].Event != "ping" {
		t.Errorf("event 2 = %+v, want ping", wholeEvents[2])
	}
}

func TestSSEParserMultilineData(t *testing.T) {
	p := NewSSEParser()
	events, err := p.Feed([]byte("data: line one\ndata: line two\n\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if want := "line one\nline two"; events[0].Data != want {
		t.Errorf("Data = %q, want %q", events[0].Data, want)
	}
}

func TestParsedSseEventToTyped(t *testing.T) {
	raw, err := EncodeMessage(&Notification{Method: "notifications/initialized"})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	p := ParsedSseEvent{Event: "message", Data: string(raw), ID: "5"}
	typed, err := p.ToTyped()
	if err != nil {
		t.Fatalf("ToTyped: %v", err)
	}
	if typed.Kind != SseMessage {
		t.Fatalf("Kind = %v, want SseMessage", typed.Kind)
	}
	if typed.MessageID == nil || typed.MessageID.String() != "5" {
		t.Errorf("MessageID = %v, want 5", typed.MessageID)
	}
	if n, ok := typed.Message.(*Notification); !ok || n.Method != "notifications/initialized" {
		t.Errorf("Message = %+v, want the decoded notification", typed.Message)
	}
}

// TestEventBufferRetentionAndOrdering exercises the ring buffer's count
// eviction and EventsAfter's ordering/Last-Event-ID replay semantics.
func TestEventBufferRetentionAndOrdering(t *testing.T) {
	b := NewEventBuffer(EventBufferOptions{MaxEvents: 3, MaxAgeSecs: 1000})
	for i := 1; i <= 5; i++ {
		b.Push(BufferedEvent{ID: itoa(i), TimestampMs: 0})
	}
	all := b.All()
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3 (oldest two evicted by capacity)", len(all))
	}
	wantIDs := []string{"3", "4", "5"}
	for i, e := range all {
		if e.ID != wantIDs[i] {
			t.Errorf("All()[%d].ID = %q, want %q", i, e.ID, wantIDs[i])
		}
	}

	after := b.EventsAfter("3")
	if len(after) != 2 || after[0].ID != "4" || after[1].ID != "5" {
		t.Errorf("EventsAfter(\"3\") = %+v, want events 4 then 5", after)
	}

	// An ID that has aged out of the buffer conservatively replays
	// everything still buffered, rather than silently dropping events.
	unknown := b.EventsAfter("1")
	if len(unknown) != 3 {
		t.Errorf("EventsAfter(\"1\") (evicted id) = %d events, want 3 (full replay)", len(unknown))
	}
}

func TestEventBufferAgeEviction(t *testing.T) {
	b := NewEventBuffer(EventBufferOptions{MaxEvents: 100, MaxAgeSecs: 10})
	b.Push(BufferedEvent{ID: "old", TimestampMs: 0})
	b.Push(BufferedEvent{ID: "new", TimestampMs: 5000})

	// Pushing at 11s puts the cutoff (11s - MaxAgeSecs=10s = 1s) past
	// "old" (0s) but not "new" (5s): only "old" should be evicted.
	b.Push(BufferedEvent{ID: "newest", TimestampMs: 11000})

	all := b.All()
	var ids []string
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	if len(ids) != 2 || ids[0] != "new" || ids[1] != "newest" {
		t.Errorf("All() after age eviction = %v, want [new newest]", ids)
	}
}

func itoa(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return itoa(i/10) + string(digits[i%10])
}
