// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate reduces interval records into derived metrics.
//
// Everything here is a pure function of its input. Metrics are never cached;
// callers recompute them from the History whenever they need them.
package aggregate

import (
	"math"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// Epsilon is added to each worker's total time in the power sum so that a
// worker with zero recorded time contributes 0 W instead of NaN.
const Epsilon = 1e-12

// Metrics are the derived values for one IntervalRecord.
type Metrics struct {
	// PFrequencyGHz is the highest P-core frequency among workers that
	// spent time on P-cores. 0 when none did.
	PFrequencyGHz float64 `json:"p_frequency_ghz"`

	// EFrequencyGHz is the same reduction over E-cores.
	EFrequencyGHz float64 `json:"e_frequency_ghz"`

	// TotalWork is the sum of WorkDone across workers.
	TotalWork uint64 `json:"total_work"`

	// TotalTime is the sum of P and E time across workers, in seconds.
	TotalTime float64 `json:"total_time"`

	// Throughput is TotalWork / TotalTime, 0 when TotalTime is 0.
	Throughput float64 `json:"throughput"`

	// CombinedPowerW is the sum over workers of that worker's average power
	// (energy / time) in watts.
	CombinedPowerW float64 `json:"combined_power_w"`
}

// Aggregate computes Metrics for one interval record.
//
// Description:
//
//	Frequencies are max-reduced starting from 0, skipping workers whose
//	time on that core type is 0. Combined power sums per-worker average
//	power, each computed as (Ep + Ee) / (Tp + Te + Epsilon). Note that this
//	is a sum of averages, not total energy over total time; the two differ
//	when workers ran for different lengths of time.
//
// Inputs:
//
//	record - One ThreadSample per worker. May be empty.
//
// Outputs:
//
//	Metrics - Derived values. All fields are 0 for an empty record.
//
// Thread Safety: Pure function; safe for concurrent use.
func Aggregate(record sample.IntervalRecord) Metrics {
	var m Metrics
	for _, s := range record {
		if f, ok := s.PCore.FrequencyGHz(); ok {
			m.PFrequencyGHz = math.Max(m.PFrequencyGHz, f)
		}
		if f, ok := s.ECore.FrequencyGHz(); ok {
			m.EFrequencyGHz = math.Max(m.EFrequencyGHz, f)
		}
		m.TotalWork += s.WorkDone
		m.TotalTime += s.TotalTime()
		m.CombinedPowerW += s.TotalEnergy() / (s.TotalTime() + Epsilon)
	}
	if m.TotalTime > 0 {
		m.Throughput = float64(m.TotalWork) / m.TotalTime
	}
	return m
}

// AggregateHistory returns Aggregate for every record, in order.
func AggregateHistory(records []sample.IntervalRecord) []Metrics {
	out := make([]Metrics, len(records))
	for i, rec := range records {
		out[i] = Aggregate(rec)
	}
	return out
}
