// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

const (
	// sketchRelativeAccuracy bounds the relative error of power and
	// throughput quantiles.
	sketchRelativeAccuracy = 0.01

	// Frequency histogram range in MHz. 100 GHz is far beyond any part.
	freqHistMinMHz  = 1
	freqHistMaxMHz  = 100_000
	freqHistSigFigs = 3
)

// Summary describes a whole run in terms of its per-interval Metrics.
type Summary struct {
	// Intervals is the number of records summarized.
	Intervals int `json:"intervals"`

	// TotalWork is the sum of work across all intervals.
	TotalWork uint64 `json:"total_work"`

	MeanPowerW     float64 `json:"mean_power_w"`
	MaxPowerW      float64 `json:"max_power_w"`
	P50PowerW      float64 `json:"p50_power_w"`
	P95PowerW      float64 `json:"p95_power_w"`
	MeanThroughput float64 `json:"mean_throughput"`
	MaxThroughput  float64 `json:"max_throughput"`
	P50Throughput  float64 `json:"p50_throughput"`
	P95Throughput  float64 `json:"p95_throughput"`
	MaxPFreqGHz    float64 `json:"max_p_frequency_ghz"`
	MaxEFreqGHz    float64 `json:"max_e_frequency_ghz"`
	P50PFreqGHz    float64 `json:"p50_p_frequency_ghz"`
	P95PFreqGHz    float64 `json:"p95_p_frequency_ghz"`
	MeanEFreqGHz   float64 `json:"mean_e_frequency_ghz"`
}

// Summarize reduces a run's records into a Summary.
//
// Description:
//
//	Power and throughput quantiles come from DDSketches with 1% relative
//	accuracy. P-core frequency quantiles come from an HDR histogram at MHz
//	resolution; intervals with no P-core time are left out of it. Means
//	and maxima are exact.
//
// Inputs:
//
//	records - The run's history. May be empty.
//
// Outputs:
//
//	Summary - Zero value for an empty history.
//
// Thread Safety: Pure function; safe for concurrent use.
func Summarize(records []sample.IntervalRecord) Summary {
	var sum Summary
	if len(records) == 0 {
		return sum
	}

	power := newSketch()
	throughput := newSketch()
	freq := hdrhistogram.New(freqHistMinMHz, freqHistMaxMHz, freqHistSigFigs)

	var powerTotal, throughputTotal, eFreqTotal float64
	var eFreqCount int
	for _, rec := range records {
		m := Aggregate(rec)
		sum.Intervals++
		sum.TotalWork += m.TotalWork

		powerTotal += m.CombinedPowerW
		throughputTotal += m.Throughput
		sum.MaxPowerW = math.Max(sum.MaxPowerW, m.CombinedPowerW)
		sum.MaxThroughput = math.Max(sum.MaxThroughput, m.Throughput)
		sum.MaxPFreqGHz = math.Max(sum.MaxPFreqGHz, m.PFrequencyGHz)
		sum.MaxEFreqGHz = math.Max(sum.MaxEFreqGHz, m.EFrequencyGHz)

		// Add only rejects negative or non-finite values, which are not
		// meaningful here either.
		_ = power.Add(m.CombinedPowerW)
		_ = throughput.Add(m.Throughput)

		if m.PFrequencyGHz > 0 {
			mhz := int64(math.Round(m.PFrequencyGHz * 1000))
			_ = freq.RecordValue(clampInt64(mhz, freqHistMinMHz, freqHistMaxMHz))
		}
		if m.EFrequencyGHz > 0 {
			eFreqTotal += m.EFrequencyGHz
			eFreqCount++
		}
	}

	n := float64(sum.Intervals)
	sum.MeanPowerW = powerTotal / n
	sum.MeanThroughput = throughputTotal / n
	if eFreqCount > 0 {
		sum.MeanEFreqGHz = eFreqTotal / float64(eFreqCount)
	}

	sum.P50PowerW = quantile(power, 0.50)
	sum.P95PowerW = quantile(power, 0.95)
	sum.P50Throughput = quantile(throughput, 0.50)
	sum.P95Throughput = quantile(throughput, 0.95)

	if freq.TotalCount() > 0 {
		sum.P50PFreqGHz = float64(freq.ValueAtQuantile(50)) / 1000
		sum.P95PFreqGHz = float64(freq.ValueAtQuantile(95)) / 1000
	}
	return sum
}

func newSketch() *ddsketch.DDSketch {
	m, _ := mapping.NewLogarithmicMapping(sketchRelativeAccuracy)
	return ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore())
}

// quantile returns 0 for an empty sketch.
func quantile(s *ddsketch.DDSketch, q float64) float64 {
	if s.GetCount() == 0 {
		return 0
	}
	v, err := s.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
