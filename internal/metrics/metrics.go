// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

// Package metrics defines Prometheus metrics for Cratedig.
//
// All metrics are registered on the default registry via promauto and
// exposed on /metrics by the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LastFMRequestsTotal counts Last.fm API requests by method and outcome.
	// Outcome is one of: success, not_found, transient, malformed, rejected.
	LastFMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "lastfm",
			Name:      "requests_total",
			Help:      "Total Last.fm API requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// LastFMRequestDuration observes Last.fm request latency by method.
	LastFMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cratedig",
			Subsystem: "lastfm",
			Name:      "request_duration_seconds",
			Help:      "Last.fm API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// LastFMRetriesTotal counts retry attempts after transient failures.
	LastFMRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "lastfm",
			Name:      "retries_total",
			Help:      "Total Last.fm request retries",
		},
	)

	// CircuitBreakerState tracks the Last.fm circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cratedig",
			Subsystem: "lastfm",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// GeneratorDuration observes per-generator run duration by source.
	GeneratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cratedig",
			Subsystem: "candidates",
			Name:      "generator_duration_seconds",
			Help:      "Candidate generator run duration in seconds by source",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"source"},
	)

	// GeneratorCandidates counts candidates produced by source, after the
	// per-source cap is applied.
	GeneratorCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "candidates",
			Name:      "generated_total",
			Help:      "Total candidates produced by source",
		},
		[]string{"source"},
	)

	// GeneratorFailures counts generator runs that failed and were skipped.
	GeneratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "candidates",
			Name:      "generator_failures_total",
			Help:      "Total failed generator runs by source",
		},
		[]string{"source"},
	)

	// RunsTotal counts per-user generation runs by outcome
	// (completed, partial, failed).
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total candidate generation runs by outcome",
		},
		[]string{"outcome"},
	)

	// RunDuration observes the full per-user pipeline duration, from the
	// first generator launch through consolidation and persistence.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cratedig",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "End-to-end candidate generation run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
	)

	// ConsolidatedCandidates tracks the size of the last consolidated list
	// per user.
	ConsolidatedCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cratedig",
			Subsystem: "engine",
			Name:      "consolidated_candidates",
			Help:      "Consolidated candidate count from the most recent run",
		},
		[]string{"user"},
	)

	// IngestedPlays counts play events stored during scrobble ingestion.
	IngestedPlays = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "ingest",
			Name:      "plays_total",
			Help:      "Total play events ingested",
		},
	)

	// DBQueryDuration observes DuckDB query latency by operation.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cratedig",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "DuckDB query duration in seconds by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal counts API requests by route, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratedig",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)
)
