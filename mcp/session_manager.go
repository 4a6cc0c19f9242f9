// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by SessionManager.
var (
	ErrSessionLimitReached = errors.New("session limit reached")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
)

// SessionManagerOptions configures a SessionManager. Zero values select the
// defaults observed in the original implementation
// (crates/mcp-server/src/http/session_manager.rs): 1000 sessions, a 30
// minute timeout, and a 60 second cleanup cadence.
type SessionManagerOptions struct {
	MaxSessions     int
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
}

func (o SessionManagerOptions) withDefaults() SessionManagerOptions {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 1000
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = 30 * time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 60 * time.Second
	}
	return o
}

// SessionState is the per-session record owned by the SessionManager.
// Transports reference it only by SessionID.
type SessionState struct {
	SessionID    string
	CreatedAt    time.Time
	LastActivity time.Time
	Initialized  bool
	EventCounter uint64
	Data         map[string]any
}

func (s *SessionState) expired(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > timeout
}

// SessionManager allocates and ages session records. It is safe for
// concurrent use: the session map is guarded by a single readers-writer
// lock; creation, removal and touches take the writer lock, lookups the
// reader lock.
type SessionManager struct {
	opts SessionManagerOptions

	mu       sync.RWMutex
	sessions map[string]*SessionState
}

// NewSessionManager returns a SessionManager with the given options
// (zero-valued fields take their documented defaults).
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	return &SessionManager{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*SessionState),
	}
}

// CreateSession allocates a new, uninitialized session, failing with
// ErrSessionLimitReached if the live count equals MaxSessions.
func (m *SessionManager) CreateSession() (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.opts.MaxSessions {
		return nil, ErrSessionLimitReached
	}
	now := time.Now()
	s := &SessionState{
		SessionID:    uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
		Initialized:  false,
		Data:         make(map[string]any),
	}
	m.sessions[s.SessionID] = s
	return s, nil
}

// TouchSession resets lastActivity and returns the session, or nil if
// absent.
func (m *SessionManager) TouchSession(id string) *SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.LastActivity = time.Now()
	return s
}

// ValidateSession returns the session if present and not expired. An
// expired session is removed and ErrSessionExpired is returned; an absent
// session returns ErrSessionNotFound.
func (m *SessionManager) ValidateSession(id string) (*SessionState, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.expired(m.opts.SessionTimeout, time.Now()) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, ErrSessionExpired
	}
	return s, nil
}

// RemoveSession deletes a session unconditionally.
func (m *SessionManager) RemoveSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions, for a metrics gauge to
// poll.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired scans and removes every expired session, returning the
// count removed. It is intended to be called periodically by an external
// driver (see NewCleanupScheduler); it is not required to be hard-realtime.
func (m *SessionManager) CleanupExpired() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.expired(m.opts.SessionTimeout, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// NextEventID increments the session's event counter and returns
// "<sessionId>-<n>". The sequence is strictly increasing within a session
// and never reused after a restart, since session ids are themselves
// unique.
func (m *SessionManager) NextEventID(session *SessionState) string {
	m.mu.Lock()
	session.EventCounter++
	n := session.EventCounter
	m.mu.Unlock()
	return fmt.Sprintf("%s-%d", session.SessionID, n)
}

// GetOrCreate implements a tolerant-recreate policy: if id is non-empty
// but unknown to the store, a new session is created (with a new id)
// rather than failing with 404. An empty id always creates a fresh
// session.
func (m *SessionManager) GetOrCreate(id string) (session *SessionState, created bool) {
	if id != "" {
		if s, err := m.ValidateSession(id); err == nil {
			return m.touchOrSelf(s), false
		}
	}
	s, err := m.CreateSession()
	if err != nil {
		// MaxSessions reached: return no session (nil) rather than
		// silently exceeding the configured limit. Callers that need the
		// error should call CreateSession directly.
		return nil, false
	}
	return s, true
}

func (m *SessionManager) touchOrSelf(s *SessionState) *SessionState {
	if touched := m.TouchSession(s.SessionID); touched != nil {
		return touched
	}
	return s
}
