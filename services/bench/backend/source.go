// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// CounterSource reads cumulative counters for one OS thread.
//
// Energy is left at zero by sources; the Workload apportions package energy
// from its EnergyMeter across workers.
//
// Thread Safety: Read may be called from any goroutine, but not
// concurrently with itself or Close.
type CounterSource interface {
	// Read returns cumulative P-core and E-core counters since the source
	// was opened.
	Read() (p, e sample.CounterSample, err error)

	// Close releases the source.
	Close() error
}

// SourceFactory opens a CounterSource for the calling OS thread. It is
// always invoked after runtime.LockOSThread, with tid set to the kernel
// thread id where the platform has one (0 otherwise).
type SourceFactory func(tid int) (CounterSource, error)

// SourceKind names a counter source implementation.
type SourceKind string

const (
	// SourcePerf uses hardware performance counters.
	SourcePerf SourceKind = "perf"

	// SourceClock uses thread CPU time and a nominal frequency.
	SourceClock SourceKind = "clock"

	// SourceAuto tries perf and falls back to clock.
	SourceAuto SourceKind = "auto"
)

// ParseSourceKind parses "perf", "clock" or "auto" (the default for "").
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SourcePerf, SourceClock, SourceAuto:
		return k, nil
	case "":
		return SourceAuto, nil
	default:
		return "", fmt.Errorf("unknown counter source %q", s)
	}
}

// -----------------------------------------------------------------------------
// Wall-time Source
// -----------------------------------------------------------------------------

// wallSource attributes wall time since open to P-cores and estimates cycles
// from a nominal frequency. It is only accurate for a worker that never
// blocks, which is what the prime workload does.
type wallSource struct {
	opened  time.Time
	freqHz  float64
	nowFunc func() time.Time
}

// NewWallSourceFactory returns a portable SourceFactory. freqHz <= 0 uses
// NominalFrequencyHz.
func NewWallSourceFactory(freqHz float64) SourceFactory {
	if freqHz <= 0 {
		freqHz = NominalFrequencyHz()
	}
	return func(int) (CounterSource, error) {
		return &wallSource{opened: time.Now(), freqHz: freqHz, nowFunc: time.Now}, nil
	}
}

func (s *wallSource) Read() (sample.CounterSample, sample.CounterSample, error) {
	elapsed := s.nowFunc().Sub(s.opened).Seconds()
	return sample.CounterSample{Cycles: elapsed * s.freqHz, Time: elapsed}, sample.CounterSample{}, nil
}

func (s *wallSource) Close() error { return nil }

var (
	nominalOnce sync.Once
	nominalHz   float64
)

// NominalFrequencyHz returns the advertised clock of the first CPU, or
// 1 GHz when unknown.
func NominalFrequencyHz() float64 {
	nominalOnce.Do(func() {
		nominalHz = 1e9
		infos, err := cpu.InfoWithContext(context.Background())
		if err != nil {
			return
		}
		for _, info := range infos {
			if info.Mhz > 0 {
				nominalHz = info.Mhz * 1e6
				return
			}
		}
	})
	return nominalHz
}
