// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for authentication metrics.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusRejected   = "rejected"
	StatusConflict   = "conflict"
	StatusCacheHit   = "hit"
	StatusCacheMiss  = "miss"
	StatusCacheError = "error"
)

// Registrations is the counter for registration attempts.
// Use RegisterMetrics to register this with a Prometheus registry.
var Registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeep_registrations_total",
		Help: "Total number of registration attempts by outcome",
	},
	[]string{"status"},
)

// Logins is the counter for login attempts.
// Use RegisterMetrics to register this with a Prometheus registry.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeep_logins_total",
		Help: "Total number of login attempts by outcome",
	},
	[]string{"status"},
)

// SessionCacheLookups is the counter for session cache lookups.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeep_session_cache_lookups_total",
		Help: "Total number of session cache lookups by result",
	},
	[]string{"result"},
)

// SessionsSwept is the counter for expired sessions removed by the janitor.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionsSwept = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "gatekeep_sessions_swept_total",
		Help: "Total number of expired sessions removed by the janitor",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// This must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Registrations)
	reg.MustRegister(Logins)
	reg.MustRegister(SessionCacheLookups)
	reg.MustRegister(SessionsSwept)
}
