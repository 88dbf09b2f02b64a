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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// SimulatedConfig describes the synthetic counters produced per worker per
// sample.
type SimulatedConfig struct {
	// PFrequencyGHz is the P-core clock. Default: 3.2.
	PFrequencyGHz float64

	// EFrequencyGHz is the E-core clock. Default: 2.0.
	EFrequencyGHz float64

	// PShare is the fraction of each interval spent on P-cores, in [0,1].
	// Default: 0.75. Use a negative value for an all-E worker.
	PShare float64

	// PowerWatts is the average power of one worker. Default: 2.5.
	PowerWatts float64

	// WorkPerSecond is units of work completed per second of CPU time.
	// Default: 1000.
	WorkPerSecond float64

	// Interval is the simulated CPU time per sample. Default: 1s.
	Interval time.Duration
}

// ApplyDefaults fills zero values.
func (c *SimulatedConfig) ApplyDefaults() {
	if c.PFrequencyGHz == 0 {
		c.PFrequencyGHz = 3.2
	}
	if c.EFrequencyGHz == 0 {
		c.EFrequencyGHz = 2.0
	}
	if c.PShare == 0 {
		c.PShare = 0.75
	} else if c.PShare < 0 {
		c.PShare = 0
	}
	if c.PowerWatts == 0 {
		c.PowerWatts = 2.5
	}
	if c.WorkPerSecond == 0 {
		c.WorkPerSecond = 1000
	}
	if c.Interval == 0 {
		c.Interval = time.Second
	}
}

// Validate checks ranges.
func (c *SimulatedConfig) Validate() error {
	if c.PShare > 1 {
		return fmt.Errorf("PShare must be <= 1, got %v", c.PShare)
	}
	if c.PFrequencyGHz < 0 || c.EFrequencyGHz < 0 || c.PowerWatts < 0 || c.WorkPerSecond < 0 {
		return errors.New("frequencies, power and throughput must be non-negative")
	}
	if c.Interval < 0 {
		return errors.New("Interval must be non-negative")
	}
	return nil
}

// Simulated is a deterministic Backend. Every SampleAll returns the same
// counters, so aggregates are exactly predictable from the config.
//
// Thread Safety: Safe for concurrent use.
type Simulated struct {
	cfg SimulatedConfig

	mu      sync.Mutex
	started bool
	workers int
	samples int
}

// NewSimulated creates a Simulated backend.
func NewSimulated(cfg SimulatedConfig) (*Simulated, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulated configuration: %w", err)
	}
	return &Simulated{cfg: cfg}, nil
}

// Start records the worker count.
func (s *Simulated) Start(ctx context.Context, workers int) error {
	if workers < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.workers = workers
	s.samples = 0
	return nil
}

// SampleAll returns one synthetic sample per worker.
func (s *Simulated) SampleAll(ctx context.Context, workers int) ([]sample.ThreadSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if workers != s.workers {
		return nil, fmt.Errorf("%w: sampled %d, started %d", ErrInvalidWorkers, workers, s.workers)
	}
	out := make([]sample.ThreadSample, workers)
	for i := range out {
		out[i] = s.one()
		out[i].WorkerID = i
	}
	s.samples++
	return out, nil
}

// Samples returns the number of SampleAll calls since Start.
func (s *Simulated) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Teardown resets the backend.
func (s *Simulated) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	s.workers = 0
	return nil
}

// RunSingle returns one synthetic sample whose WorkDone is the prime count
// for SinglePrimeLimit.
func (s *Simulated) RunSingle(ctx context.Context) (sample.ThreadSample, error) {
	if err := ctx.Err(); err != nil {
		return sample.ThreadSample{}, err
	}
	ts := s.one()
	ts.WorkDone = primesBelowSingleLimit
	return ts, nil
}

func (s *Simulated) one() sample.ThreadSample {
	secs := s.cfg.Interval.Seconds()
	pt := secs * s.cfg.PShare
	et := secs - pt
	joules := s.cfg.PowerWatts * secs
	var pe, ee float64
	if secs > 0 {
		pe = joules * pt / secs
		ee = joules * et / secs
	}
	return sample.ThreadSample{
		PCore:    sample.CounterSample{Cycles: pt * s.cfg.PFrequencyGHz * 1e9, Time: pt, Energy: pe},
		ECore:    sample.CounterSample{Cycles: et * s.cfg.EFrequencyGHz * 1e9, Time: et, Energy: ee},
		WorkDone: uint64(s.cfg.WorkPerSecond * secs),
	}
}

// primesBelowSingleLimit is CountPrimes(SinglePrimeLimit).
const primesBelowSingleLimit = 9592

var (
	_ Backend      = (*Simulated)(nil)
	_ SingleRunner = (*Simulated)(nil)
)
