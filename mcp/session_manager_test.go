// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"testing"
	"time"
)

func TestSessionManagerCreateAndValidate(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{})
	s, err := m.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.SessionID == "" {
		t.Fatal("CreateSession: empty SessionID")
	}
	if s.Initialized {
		t.Error("new session should not be Initialized")
	}

	got, err := m.ValidateSession(s.SessionID)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if got.SessionID != s.SessionID {
		t.Errorf("ValidateSession returned %q, want %q", got.SessionID, s.SessionID)
	}

	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestSessionManagerValidateUnknown(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{})
	if _, err := m.ValidateSession("nonexistent"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ValidateSession = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManagerLimitReached(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{MaxSessions: 1})
	if _, err := m.CreateSession(); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := m.CreateSession(); !errors.Is(err, ErrSessionLimitReached) {
		t.Errorf("CreateSession over limit = %v, want ErrSessionLimitReached", err)
	}
}

func TestSessionManagerExpiry(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{SessionTimeout: time.Millisecond})
	s, err := m.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.ValidateSession(s.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("ValidateSession = %v, want ErrSessionExpired", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after expiry removal = %d, want 0", m.Count())
	}
}

func TestSessionManagerCleanupExpired(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{SessionTimeout: time.Millisecond})
	for i := 0; i < 3; i++ {
		if _, err := m.CreateSession(); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	time.Sleep(5 * time.Millisecond)

	if n := m.CleanupExpired(); n != 3 {
		t.Errorf("CleanupExpired() = %d, want 3", n)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after CleanupExpired = %d, want 0", m.Count())
	}
}

func TestSessionManagerRemoveSession(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{})
	s, _ := m.CreateSession()
	m.RemoveSession(s.SessionID)
	if _, err := m.ValidateSession(s.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ValidateSession after RemoveSession = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManagerNextEventID(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{})
	s, _ := m.CreateSession()
	first := m.NextEventID(s)
	second := m.NextEventID(s)
	if first == second {
		t.Errorf("NextEventID returned the same id twice: %q", first)
	}
	want := s.SessionID + "-1"
	if first != want {
		t.Errorf("first NextEventID = %q, want %q", first, want)
	}
}

func TestSessionManagerGetOrCreate(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{})

	fresh, created := m.GetOrCreate("")
	if !created || fresh == nil {
		t.Fatalf("GetOrCreate(\"\") = %v, %v, want a new session", fresh, created)
	}

	again, created := m.GetOrCreate(fresh.SessionID)
	if created || again.SessionID != fresh.SessionID {
		t.Errorf("GetOrCreate(existing) = %+v, %v, want the same session and created=false", again, created)
	}

	recreated, created := m.GetOrCreate("unknown-id")
	if !created || recreated == nil || recreated.SessionID == "unknown-id" {
		t.Errorf("GetOrCreate(unknown) = %+v, %v, want a freshly created session", recreated, created)
	}
}
