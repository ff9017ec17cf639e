// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/SlotGuard/services/upgrade/resolve"
)

const metricsNamespace = "slotguard"

const apiSubsystem = "api"

// Outcome labels one served diff check for metrics.
type Outcome string

const (
	// OutcomePass means the check ran and found nothing at error severity.
	OutcomePass Outcome = "pass"

	// OutcomeFail means the check ran and found unsafe changes.
	OutcomeFail Outcome = "fail"

	// OutcomeInvalid means the request could not be checked as sent
	// (validation failure or malformed layout).
	OutcomeInvalid Outcome = "invalid"

	// OutcomeError means the server failed while checking.
	OutcomeError Outcome = "error"
)

// Metrics holds the Prometheus instruments for the diff service.
//
// # Description
//
// Counters and histograms for the HTTP surface: served checks by outcome,
// surfaced diff records by kind, and request latency by route and status.
//
// # Thread Safety
//
// All operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	// ChecksTotal counts served diff checks.
	// Labels: outcome (pass, fail, invalid, error)
	ChecksTotal *prometheus.CounterVec

	// DiffRecordsTotal counts surfaced diff records.
	// Labels: kind (VARIABLE_ADDED, TYPE_CHANGED, ...)
	DiffRecordsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures request latency.
	// Labels: route, status
	RequestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers the instruments on reg. Each server
// owns its registry, so tests can build as many as they like without
// duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "checks_total",
				Help:      "Total diff checks served, by outcome",
			},
			[]string{"outcome"},
		),

		DiffRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "diff_records_total",
				Help:      "Total surfaced diff records, by kind",
			},
			[]string{"kind"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route and status",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"route", "status"},
		),
	}
}

// RecordCheck records one served check.
func (m *Metrics) RecordCheck(outcome Outcome) {
	m.ChecksTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordDiffs bumps the per-kind record counters for one report.
func (m *Metrics) RecordDiffs(fds []resolve.FormattedDiff) {
	for _, fd := range fds {
		m.DiffRecordsTotal.WithLabelValues(string(fd.Kind)).Inc()
	}
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	m.RequestDurationSeconds.WithLabelValues(route, status).Observe(seconds)
}
