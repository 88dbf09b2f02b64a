// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OTel instruments for benchmark runs.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// IntervalsTotal counts sampled intervals by power mode.
	IntervalsTotal metric.Int64Counter

	// RunsTotal counts finished runs by terminal state.
	RunsTotal metric.Int64Counter

	// PFrequency records per-interval peak P-core frequency in GHz.
	PFrequency metric.Float64Histogram

	// EFrequency records per-interval peak E-core frequency in GHz.
	EFrequency metric.Float64Histogram

	// CombinedPower records per-interval combined power in watts.
	CombinedPower metric.Float64Histogram

	// Throughput records per-interval work units per CPU-second.
	Throughput metric.Float64Histogram
}

// NewMetrics registers every instrument with meter.
//
// Outputs:
//
//	*Metrics - Initialized instruments.
//	error - Non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.IntervalsTotal, err = meter.Int64Counter(
		"powerbench_intervals_total",
		metric.WithDescription("Sampled intervals"),
		metric.WithUnit("{interval}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create intervals_total: %w", err)
	}

	m.RunsTotal, err = meter.Int64Counter(
		"powerbench_runs_total",
		metric.WithDescription("Finished runs by terminal state"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs_total: %w", err)
	}

	freqBuckets := metric.WithExplicitBucketBoundaries(0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5, 6)

	m.PFrequency, err = meter.Float64Histogram(
		"powerbench_p_core_frequency_ghz",
		metric.WithDescription("Peak P-core frequency per interval"),
		metric.WithUnit("GHz"),
		freqBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("create p_core_frequency: %w", err)
	}

	m.EFrequency, err = meter.Float64Histogram(
		"powerbench_e_core_frequency_ghz",
		metric.WithDescription("Peak E-core frequency per interval"),
		metric.WithUnit("GHz"),
		freqBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("create e_core_frequency: %w", err)
	}

	m.CombinedPower, err = meter.Float64Histogram(
		"powerbench_combined_power_watts",
		metric.WithDescription("Sum of per-worker average power per interval"),
		metric.WithUnit("W"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 50, 100, 200, 500),
	)
	if err != nil {
		return nil, fmt.Errorf("create combined_power: %w", err)
	}

	m.Throughput, err = meter.Float64Histogram(
		"powerbench_throughput",
		metric.WithDescription("Work units per CPU-second per interval"),
		metric.WithUnit("{unit}/s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create throughput: %w", err)
	}

	return m, nil
}
