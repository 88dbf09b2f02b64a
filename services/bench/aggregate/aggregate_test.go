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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		record sample.IntervalRecord
		want   Metrics
	}{
		{
			name:   "empty record",
			record: sample.IntervalRecord{},
			want:   Metrics{},
		},
		{
			name: "single worker split across core types",
			record: sample.IntervalRecord{{
				PCore:    sample.CounterSample{Cycles: 3e9, Time: 1.0, Energy: 2.0},
				ECore:    sample.CounterSample{Cycles: 1e9, Time: 0.5, Energy: 0.5},
				WorkDone: 100,
			}},
			want: Metrics{
				PFrequencyGHz:  3.0,
				EFrequencyGHz:  2.0,
				TotalWork:      100,
				TotalTime:      1.5,
				Throughput:     100 / 1.5,
				CombinedPowerW: 2.5 / (1.5 + Epsilon),
			},
		},
		{
			name: "max frequency across workers and zero-time E cores",
			record: sample.IntervalRecord{
				{WorkerID: 0, PCore: sample.CounterSample{Cycles: 2e9, Time: 1, Energy: 1}, WorkDone: 10},
				{WorkerID: 1, PCore: sample.CounterSample{Cycles: 3.2e9, Time: 1, Energy: 3}, WorkDone: 30},
			},
			want: Metrics{
				PFrequencyGHz:  3.2,
				EFrequencyGHz:  0,
				TotalWork:      40,
				TotalTime:      2,
				Throughput:     20,
				CombinedPowerW: 1/(1+Epsilon) + 3/(1+Epsilon),
			},
		},
		{
			name: "all times zero",
			record: sample.IntervalRecord{
				{WorkerID: 0, PCore: sample.CounterSample{Cycles: 5, Energy: 1}, WorkDone: 3},
				{WorkerID: 1, ECore: sample.CounterSample{Cycles: 5}},
			},
			want: Metrics{
				TotalWork:      3,
				CombinedPowerW: 1 / Epsilon,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.record)
			assert.InDelta(t, tt.want.PFrequencyGHz, got.PFrequencyGHz, 1e-9)
			assert.InDelta(t, tt.want.EFrequencyGHz, got.EFrequencyGHz, 1e-9)
			assert.Equal(t, tt.want.TotalWork, got.TotalWork)
			assert.InDelta(t, tt.want.TotalTime, got.TotalTime, 1e-12)
			assert.InDelta(t, tt.want.Throughput, got.Throughput, 1e-9)
			assert.InEpsilon(t, nonZero(tt.want.CombinedPowerW), nonZero(got.CombinedPowerW), 1e-9)
		})
	}
}

func TestAggregate_NeverNaN(t *testing.T) {
	rec := sample.IntervalRecord{{}, {}, {}}
	m := Aggregate(rec)
	for name, v := range map[string]float64{
		"p_freq":     m.PFrequencyGHz,
		"e_freq":     m.EFrequencyGHz,
		"throughput": m.Throughput,
		"power":      m.CombinedPowerW,
	} {
		assert.False(t, math.IsNaN(v), "%s is NaN", name)
		assert.False(t, math.IsInf(v, 0), "%s is Inf", name)
		assert.Zero(t, v, name)
	}
}

func TestAggregate_SumOfAveragesNotRatioOfSums(t *testing.T) {
	// 10 J over 1 s and 10 J over 9 s: sum of averages is 10 + 1.11 W,
	// total energy over total time would be 2 W.
	rec := sample.IntervalRecord{
		{PCore: sample.CounterSample{Time: 1, Energy: 10}},
		{PCore: sample.CounterSample{Time: 9, Energy: 10}},
	}
	got := Aggregate(rec).CombinedPowerW
	assert.InDelta(t, 10+10.0/9, got, 1e-9)
}

func TestAggregate_Deterministic(t *testing.T) {
	rec := sample.IntervalRecord{
		{PCore: sample.CounterSample{Cycles: 1.23e9, Time: 0.41, Energy: 0.9}, WorkDone: 12},
		{ECore: sample.CounterSample{Cycles: 0.7e9, Time: 0.63, Energy: 0.2}, WorkDone: 4},
	}
	assert.Equal(t, Aggregate(rec), Aggregate(rec))
}

func TestAggregateHistory(t *testing.T) {
	records := []sample.IntervalRecord{
		{{WorkDone: 1, PCore: sample.CounterSample{Time: 1}}},
		{{WorkDone: 4, PCore: sample.CounterSample{Time: 2}}},
	}
	got := AggregateHistory(records)
	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0].Throughput, 1e-12)
	assert.InDelta(t, 2.0, got[1].Throughput, 1e-12)
	assert.Empty(t, AggregateHistory(nil))
}

// -----------------------------------------------------------------------------
// Summary
// -----------------------------------------------------------------------------

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSummarize(t *testing.T) {
	var records []sample.IntervalRecord
	for i := 1; i <= 20; i++ {
		records = append(records, sample.IntervalRecord{{
			PCore:    sample.CounterSample{Cycles: float64(i) * 1e8, Time: 0.1, Energy: float64(i) * 0.1},
			ECore:    sample.CounterSample{Cycles: 1e8, Time: 0.1},
			WorkDone: uint64(i),
		}})
	}

	s := Summarize(records)
	assert.Equal(t, 20, s.Intervals)
	assert.Equal(t, uint64(210), s.TotalWork)

	// Power of interval i is 0.1*i / 0.2 = i/2 W.
	assert.InDelta(t, 10.0, s.MaxPowerW, 1e-6)
	assert.InDelta(t, 5.25, s.MeanPowerW, 1e-6)
	assert.InEpsilon(t, 5.0, s.P50PowerW, 0.11)
	assert.InEpsilon(t, 9.5, s.P95PowerW, 0.06)

	// P frequency of interval i is i GHz.
	assert.InDelta(t, 20.0, s.MaxPFreqGHz, 1e-9)
	assert.InEpsilon(t, 10.0, s.P50PFreqGHz, 0.01)
	assert.InEpsilon(t, 19.0, s.P95PFreqGHz, 0.01)
	assert.InDelta(t, 1.0, s.MeanEFreqGHz, 1e-9)
	assert.InDelta(t, 1.0, s.MaxEFreqGHz, 1e-9)

	assert.LessOrEqual(t, s.P50Throughput, s.P95Throughput)
	assert.LessOrEqual(t, s.P95Throughput, s.MaxThroughput)
}

func TestSummarize_NoPCoreTime(t *testing.T) {
	records := []sample.IntervalRecord{{{ECore: sample.CounterSample{Cycles: 2e9, Time: 1}}}}
	s := Summarize(records)
	assert.Zero(t, s.P50PFreqGHz)
	assert.Zero(t, s.MaxPFreqGHz)
	assert.InDelta(t, 2.0, s.MeanEFreqGHz, 1e-9)
}

func nonZero(v float64) float64 {
	if v == 0 {
		return math.SmallestNonzeroFloat64
	}
	return v
}
