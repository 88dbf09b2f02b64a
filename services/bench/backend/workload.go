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
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// DefaultBatchLimit is the prime scan limit for one unit of work.
const DefaultBatchLimit = 10_000

// WorkloadConfig configures a Workload backend.
type WorkloadConfig struct {
	// BatchLimit is the CountPrimes limit per work unit. Default: DefaultBatchLimit.
	BatchLimit int

	// Sources opens per-thread counters. Required.
	Sources SourceFactory

	// Energy apportions package energy across workers. Nil leaves energy at 0.
	Energy EnergyMeter

	// Logger for lifecycle events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// ApplyDefaults fills zero values.
func (c *WorkloadConfig) ApplyDefaults() {
	if c.BatchLimit <= 0 {
		c.BatchLimit = DefaultBatchLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks required fields.
func (c *WorkloadConfig) Validate() error {
	if c.Sources == nil {
		return errors.New("Sources is required")
	}
	return nil
}

// workerState is one running worker. Fields other than batches are owned
// by the sampling goroutine after startup.
type workerState struct {
	id      int
	source  CounterSource
	batches atomic.Uint64

	lastP, lastE sample.CounterSample
	lastBatches  uint64
}

// Workload runs the prime-scan workload on N OS threads.
//
// Description:
//
//	Start launches one goroutine per worker. Each locks itself to an OS
//	thread, opens its CounterSource on that thread, then scans primes in
//	batches until Teardown. SampleAll reads every worker's counters from
//	the caller's goroutine and returns deltas; it does not interrupt the
//	workers.
//
// Thread Safety: Safe for concurrent use. SampleAll calls are serialized.
type Workload struct {
	cfg    WorkloadConfig
	logger *slog.Logger

	mu         sync.Mutex
	started    bool
	workers    []*workerState
	stop       chan struct{}
	wg         sync.WaitGroup
	lastJoules float64
}

// NewWorkload creates a Workload backend.
//
// Outputs:
//
//	*Workload - Ready backend. Never nil on success.
//	error - Non-nil if cfg is invalid.
func NewWorkload(cfg WorkloadConfig) (*Workload, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload configuration: %w", err)
	}
	return &Workload{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "workload")),
	}, nil
}

// Start launches workers and waits until each has opened its counters.
//
// If any worker fails to open its source, all workers are stopped, the
// backend returns to the not-started state, and the first error is
// returned.
func (w *Workload) Start(ctx context.Context, workers int) error {
	if workers < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	stop := make(chan struct{})
	states := make([]*workerState, workers)
	ready := make([]chan error, workers)
	for i := range states {
		states[i] = &workerState{id: i}
		ready[i] = make(chan error, 1)
		w.wg.Add(1)
		go w.runWorker(states[i], stop, ready[i])
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range ready {
		ch := ready[i]
		g.Go(func() error {
			select {
			case err := <-ch:
				return err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		close(stop)
		w.wg.Wait()
		closeSources(states)
		return fmt.Errorf("start workers: %w", err)
	}

	if w.cfg.Energy != nil {
		j, err := w.cfg.Energy.Joules()
		if err != nil {
			w.logger.Warn("energy meter unreadable, reporting zero energy", slog.String("error", err.Error()))
		}
		w.lastJoules = j
	}

	w.workers = states
	w.stop = stop
	w.started = true
	w.logger.Info("workers started",
		slog.Int("workers", workers),
		slog.Int("batch_limit", w.cfg.BatchLimit))
	return nil
}

// runWorker is the body of one worker goroutine.
func (w *Workload) runWorker(st *workerState, stop <-chan struct{}, ready chan<- error) {
	defer w.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	src, err := w.cfg.Sources(currentThreadID())
	if err != nil {
		ready <- fmt.Errorf("worker %d: %w", st.id, err)
		return
	}
	st.source = src
	ready <- nil

	for {
		select {
		case <-stop:
			return
		default:
		}
		CountPrimes(w.cfg.BatchLimit)
		st.batches.Add(1)
	}
}

// SampleAll returns per-worker deltas since the previous call.
func (w *Workload) SampleAll(ctx context.Context, workers int) ([]sample.ThreadSample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil, ErrNotStarted
	}
	if workers != len(w.workers) {
		return nil, fmt.Errorf("%w: sampled %d, started %d", ErrInvalidWorkers, workers, len(w.workers))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]sample.ThreadSample, workers)
	for i, st := range w.workers {
		p, e, err := st.source.Read()
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		batches := st.batches.Load()
		out[i] = sample.ThreadSample{
			WorkerID: i,
			PCore:    p.Sub(st.lastP),
			ECore:    e.Sub(st.lastE),
			WorkDone: batches - st.lastBatches,
		}
		st.lastP, st.lastE, st.lastBatches = p, e, batches
	}

	if w.cfg.Energy != nil {
		if j, err := w.cfg.Energy.Joules(); err == nil {
			apportionEnergy(out, j-w.lastJoules)
			w.lastJoules = j
		}
	}
	return out, nil
}

// Teardown stops all workers, waits for their current batch to finish, and
// closes their counter sources.
func (w *Workload) Teardown() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return ErrNotStarted
	}
	close(w.stop)
	w.wg.Wait()
	err := closeSources(w.workers)

	w.workers = nil
	w.stop = nil
	w.started = false
	w.logger.Info("workers stopped")
	return err
}

// RunSingle scans primes up to SinglePrimeLimit on a dedicated OS thread and
// returns the counter delta across the scan. WorkDone is the prime count.
func (w *Workload) RunSingle(ctx context.Context) (sample.ThreadSample, error) {
	if err := ctx.Err(); err != nil {
		return sample.ThreadSample{}, err
	}
	type result struct {
		s   sample.ThreadSample
		err error
	}
	done := make(chan result, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		src, err := w.cfg.Sources(currentThreadID())
		if err != nil {
			done <- result{err: err}
			return
		}
		defer src.Close()

		var j0 float64
		if w.cfg.Energy != nil {
			j0, _ = w.cfg.Energy.Joules()
		}
		p0, e0, err := src.Read()
		if err != nil {
			done <- result{err: err}
			return
		}
		primes := CountPrimes(SinglePrimeLimit)
		p1, e1, err := src.Read()
		if err != nil {
			done <- result{err: err}
			return
		}

		out := []sample.ThreadSample{{PCore: p1.Sub(p0), ECore: e1.Sub(e0), WorkDone: primes}}
		if w.cfg.Energy != nil {
			if j1, err := w.cfg.Energy.Joules(); err == nil {
				apportionEnergy(out, j1-j0)
			}
		}
		done <- result{s: out[0]}
	}()

	select {
	case r := <-done:
		return r.s, r.err
	case <-ctx.Done():
		return sample.ThreadSample{}, ctx.Err()
	}
}

// closeSources closes every opened source and returns the first error.
func closeSources(states []*workerState) error {
	var first error
	for _, st := range states {
		if st.source == nil {
			continue
		}
		if err := st.source.Close(); err != nil && first == nil {
			first = err
		}
		st.source = nil
	}
	return first
}

var (
	_ Backend      = (*Workload)(nil)
	_ SingleRunner = (*Workload)(nil)
)
