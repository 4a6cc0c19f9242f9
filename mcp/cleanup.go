// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CleanupScheduler periodically sweeps a SessionManager for expired
// sessions. It need not run on a hard-realtime cadence.
//
// It is driven by github.com/robfig/cron/v3 rather than a bespoke ticker
// goroutine, so operators get a configurable cron expression instead of a
// fixed interval.
type CleanupScheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewCleanupScheduler schedules sessions.CleanupExpired to run on expr (a
// standard 5-field cron expression, e.g. "* * * * *" for once a minute).
// The returned scheduler is not started until Start is called.
func NewCleanupScheduler(sessions *SessionManager, expr string, log *slog.Logger) (*CleanupScheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		if n := sessions.CleanupExpired(); n > 0 {
			log.Info("expired sessions reaped", "count", n)
		}
	})
	if err != nil {
		return nil, err
	}
	return &CleanupScheduler{cron: c, log: log}, nil
}

// Start begins the scheduled sweeps in a background goroutine managed by
// the cron library.
func (s *CleanupScheduler) Start() { s.cron.Start() }

// Stop prevents further sweeps, blocking until the current sweep (if
// any) completes; a running sweep is not interrupted.
func (s *CleanupScheduler) Stop() { <-s.cron.Stop().Done() }
