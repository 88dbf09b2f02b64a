// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backend runs the benchmark workload and reads per-thread counters.
//
// The scheduler only sees the Backend interface. How counters are obtained
// is backend-specific:
//
//   - Workload runs real worker threads and reads counters through a
//     CounterSource (perf_event_open on Linux, scheduler statistics or
//     wall time elsewhere) plus an optional package EnergyMeter.
//   - Simulated produces synthetic counters for demos and tests.
//
// # Call Order
//
//	Start(n) -> SampleAll(n) ... SampleAll(n) -> Teardown()
//
// Out-of-order calls return ErrNotStarted or ErrAlreadyStarted.
package backend

import (
	"context"
	"errors"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotStarted is returned by SampleAll and Teardown before Start.
	ErrNotStarted = errors.New("backend not started")

	// ErrAlreadyStarted is returned by Start while workers are running.
	ErrAlreadyStarted = errors.New("backend already started")

	// ErrInvalidWorkers is returned for a worker count < 1 or a SampleAll
	// count that differs from the one passed to Start.
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrPerfUnavailable is returned when hardware counters cannot be opened,
	// typically because of perf_event_paranoid or an unsupported platform.
	ErrPerfUnavailable = errors.New("hardware performance counters unavailable")

	// ErrEnergyUnavailable is returned when no energy meter exists.
	ErrEnergyUnavailable = errors.New("energy meter unavailable")
)

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Backend drives N workers and reports their counters.
type Backend interface {
	// Start launches workers goroutines, each pinned to its own OS thread.
	Start(ctx context.Context, workers int) error

	// SampleAll returns exactly workers samples, index i for worker i.
	// Counter values are deltas since the previous SampleAll or since Start.
	SampleAll(ctx context.Context, workers int) ([]sample.ThreadSample, error)

	// Teardown stops the workers and releases counters.
	Teardown() error
}

// SingleRunner runs one measured unit of work on the calling goroutine's
// thread and returns its counters. Independent of Start/Teardown.
type SingleRunner interface {
	RunSingle(ctx context.Context) (sample.ThreadSample, error)
}

// -----------------------------------------------------------------------------
// Worker Count
// -----------------------------------------------------------------------------

// DefaultWorkers returns 1 for single mode and the logical CPU count for
// multi mode.
func DefaultWorkers(multi bool) int {
	if !multi {
		return 1
	}
	return LogicalCPUs()
}

// LogicalCPUs returns the number of logical processors, preferring gopsutil
// (which honors offline CPUs) over runtime.NumCPU.
func LogicalCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
