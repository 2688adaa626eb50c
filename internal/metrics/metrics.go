// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the gateway's Prometheus collectors: session
// lifecycle, stream events, reverse calls, CLI spawns, and history reads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessiongate_sessions_active",
		Help: "Number of sessions currently connected.",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_sessions_total",
		Help: "Total sessions by how they ended.",
	}, []string{"outcome"})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_turns_total",
		Help: "Total completed query turns by result.",
	}, []string{"result"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiongate_turn_duration_seconds",
		Help:    "Wall-clock duration of a single query turn, from spawn to child exit.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"result"})

	eventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_stream_events_total",
		Help: "Total decoded stream events by kind.",
	}, []string{"kind"})

	reverseCallsIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_reverse_calls_issued_total",
		Help: "Total reverse calls issued to clients by method and outcome.",
	}, []string{"method", "outcome"})

	reverseCallsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessiongate_reverse_calls_pending",
		Help: "Reverse calls currently awaiting a client response, summed across sessions.",
	})

	cliSpawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_cli_spawns_total",
		Help: "Total CLI child process spawns by outcome.",
	}, []string{"outcome"})

	historyReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiongate_history_reads_total",
		Help: "Total on-disk history operations by operation and outcome.",
	}, []string{"operation", "outcome"})
)

// SessionConnected records a newly connected session.
func SessionConnected() {
	sessionsActive.Inc()
}

// SessionClosed records a session leaving, tagged with why it closed
// ("disconnect", "crashed", "transport_lost").
func SessionClosed(outcome string) {
	sessionsActive.Dec()
	sessionsTotal.WithLabelValues(outcome).Inc()
}

// Turn records one completed query turn and its wall-clock duration,
// tagged with its result ("ok", "interrupted", "crashed").
func Turn(result string, d time.Duration) {
	turnsTotal.WithLabelValues(result).Inc()
	turnDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Event records one decoded stream event by its Kind string.
func Event(kind string) {
	eventsEmittedTotal.WithLabelValues(kind).Inc()
}

// ReverseCallIssued records a reverse call's terminal outcome ("resolved",
// "timeout", "cancelled", "send_failed").
func ReverseCallIssued(method, outcome string) {
	reverseCallsIssuedTotal.WithLabelValues(method, outcome).Inc()
}

// SetReverseCallsPending updates the pending-reverse-call gauge to n,
// summed across every session's dispatcher.
func SetReverseCallsPending(n int) {
	reverseCallsPending.Set(float64(n))
}

// CLISpawn records one CLI child spawn attempt by outcome ("ok",
// "not_found", "spawn_failed").
func CLISpawn(outcome string) {
	cliSpawnsTotal.WithLabelValues(outcome).Inc()
}

// HistoryRead records one on-disk history operation ("loadHistory",
// "getHistoryMetadata", "getHistorySessions", "truncateHistory") by
// outcome ("ok", "error").
func HistoryRead(operation, outcome string) {
	historyReadsTotal.WithLabelValues(operation, outcome).Inc()
}
