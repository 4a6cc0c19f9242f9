// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics holds the prometheus/client_golang collectors shared
// by the dispatcher and transports: request counts and latencies keyed
// by method and outcome, plus a polled active-session gauge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors one server process registers once
// and every dispatcher/transport instance records against.
type Registry struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeSessions  *prometheus.GaugeVec
}

// NewRegistry constructs the collectors and registers them against reg.
// Passing prometheus.NewRegistry() keeps a server's metrics isolated
// from the global default registry; passing nil registers against
// prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaymcp",
			Name:      "requests_total",
			Help:      "JSON-RPC requests dispatched, by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relaymcp",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request handling latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relaymcp",
			Name:      "active_sessions",
			Help:      "Live sessions tracked by a SessionManager, by transport.",
		}, []string{"transport"}),
	}
	reg.MustRegister(r.requestsTotal, r.requestDuration, r.activeSessions)
	return r
}

// ObserveRequest records one dispatched request's outcome and latency.
func (r *Registry) ObserveRequest(method, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(method, outcome).Inc()
	r.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetActiveSessions reports transport's current live-session count, as
// polled from a SessionManager.Count().
func (r *Registry) SetActiveSessions(transport string, count int) {
	if r == nil {
		return
	}
	r.activeSessions.WithLabelValues(transport).Set(float64(count))
}

// TrackSessions starts a goroutine that polls countFunc every interval
// and reports it under transport until stop is closed. The session
// managers themselves stay free of any metrics dependency; this is the
// only place that couples them to Registry.
func (r *Registry) TrackSessions(transport string, interval time.Duration, countFunc func() int, stop <-chan struct{}) {
	if r == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.SetActiveSessions(transport, countFunc())
			}
		}
	}()
}
