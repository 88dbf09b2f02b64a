// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler metrics, registered with the default registry and exposed by
// the API's /metrics endpoint.
var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerbench",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total runs by terminal state",
		},
		[]string{"state"},
	)

	intervalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "powerbench",
			Subsystem: "scheduler",
			Name:      "intervals_total",
			Help:      "Total intervals sampled across all runs",
		},
	)

	sampleLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "powerbench",
			Subsystem: "scheduler",
			Name:      "sample_duration_seconds",
			Help:      "Time spent in SampleAll per interval",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	backendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "powerbench",
			Subsystem: "scheduler",
			Name:      "backend_errors_total",
			Help:      "Backend failures by operation",
		},
		[]string{"op"},
	)

	runProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "powerbench",
			Subsystem: "scheduler",
			Name:      "progress_ratio",
			Help:      "Progress of the current run in [0,1]",
		},
	)
)

// RecordRunFinished increments the terminal state counter.
func RecordRunFinished(state State) {
	runsTotal.WithLabelValues(state.String()).Inc()
}

// RecordInterval records one sampled interval and its SampleAll latency.
func RecordInterval(seconds, progress float64) {
	intervalsTotal.Inc()
	sampleLatency.Observe(seconds)
	runProgress.Set(progress)
}

// RecordBackendError counts a backend failure for op ("start", "sample",
// "teardown").
func RecordBackendError(op string) {
	backendErrors.WithLabelValues(op).Inc()
}
