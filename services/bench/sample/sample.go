// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sample defines the counter snapshot model shared by the backend,
// scheduler, aggregator and serializer.
//
// A run produces a History of IntervalRecords. Each record holds one
// ThreadSample per worker, and each ThreadSample splits its counters into a
// performance-core and an efficiency-core CounterSample:
//
//	History
//	 └─ IntervalRecord (one per sampling tick)
//	     └─ ThreadSample (one per worker, index == worker id)
//	         ├─ PCore CounterSample
//	         └─ ECore CounterSample
//
// Samples are values. Once a record is appended to a History it is never
// mutated, which is what makes lock-free reads of a Snapshot safe.
package sample

// -----------------------------------------------------------------------------
// Power Mode
// -----------------------------------------------------------------------------

const (
	// PowerModeLow is the serialized form of LowPower == true.
	PowerModeLow = "low"

	// PowerModeHigh is the serialized form of LowPower == false.
	PowerModeHigh = "high"
)

// -----------------------------------------------------------------------------
// CounterSample
// -----------------------------------------------------------------------------

// CounterSample is the counter delta for one core domain over one interval.
type CounterSample struct {
	// Cycles executed on this core type.
	Cycles float64 `json:"cycles"`

	// Time is seconds spent on this core type. Zero means unsampled.
	Time float64 `json:"time"`

	// Energy is joules consumed on this core type.
	Energy float64 `json:"energy"`
}

// FrequencyGHz returns the effective clock in GHz.
//
// Outputs:
//
//	float64 - Cycles / Time / 1e9, or 0 when ok is false.
//	bool - False when Time is zero. Such samples carry no frequency
//	       information and callers exclude them from reductions.
func (c CounterSample) FrequencyGHz() (float64, bool) {
	if c.Time == 0 {
		return 0, false
	}
	return c.Cycles / c.Time / 1e9, true
}

// Add returns the element-wise sum of two samples.
func (c CounterSample) Add(o CounterSample) CounterSample {
	return CounterSample{
		Cycles: c.Cycles + o.Cycles,
		Time:   c.Time + o.Time,
		Energy: c.Energy + o.Energy,
	}
}

// Sub returns c - o element-wise. Used by backends to turn cumulative
// readings into per-interval deltas.
func (c CounterSample) Sub(o CounterSample) CounterSample {
	return CounterSample{
		Cycles: c.Cycles - o.Cycles,
		Time:   c.Time - o.Time,
		Energy: c.Energy - o.Energy,
	}
}

// -----------------------------------------------------------------------------
// ThreadSample
// -----------------------------------------------------------------------------

// ThreadSample is one worker's counters for one interval.
type ThreadSample struct {
	// WorkerID is the worker's index in [0, N).
	WorkerID int `json:"worker_id"`

	// PCore holds the counters attributed to performance cores.
	PCore CounterSample `json:"p_core"`

	// ECore holds the counters attributed to efficiency cores.
	ECore CounterSample `json:"e_core"`

	// WorkDone is a backend-defined count of completed work units.
	WorkDone uint64 `json:"work_done"`

	// LowPower is the system power mode observed at sampling time.
	LowPower bool `json:"low_power"`
}

// TotalTime returns PCore.Time + ECore.Time.
func (s ThreadSample) TotalTime() float64 {
	return s.PCore.Time + s.ECore.Time
}

// TotalEnergy returns PCore.Energy + ECore.Energy.
func (s ThreadSample) TotalEnergy() float64 {
	return s.PCore.Energy + s.ECore.Energy
}

// PowerMode returns PowerModeLow or PowerModeHigh.
func (s ThreadSample) PowerMode() string {
	if s.LowPower {
		return PowerModeLow
	}
	return PowerModeHigh
}

// -----------------------------------------------------------------------------
// IntervalRecord
// -----------------------------------------------------------------------------

// IntervalRecord is the ordered set of worker samples for one tick.
// Index i holds worker i.
type IntervalRecord []ThreadSample

// Clone returns a copy that shares no backing array with r.
func (r IntervalRecord) Clone() IntervalRecord {
	if r == nil {
		return nil
	}
	out := make(IntervalRecord, len(r))
	copy(out, r)
	return out
}

// Stamp returns a copy of r with every sample's LowPower set and its
// WorkerID set to its index in the record.
func (r IntervalRecord) Stamp(low bool) IntervalRecord {
	out := r.Clone()
	for i := range out {
		out[i].WorkerID = i
		out[i].LowPower = low
	}
	return out
}
