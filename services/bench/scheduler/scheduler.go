// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler drives a backend through a fixed number of sampling
// intervals and records the results.
//
// # State Machine
//
//	Idle ──Start──▶ Running ──all intervals──▶ Completed
//	                   │
//	                   ├──Cancel──▶ Cancelled
//	                   └──backend error──▶ Failed
//
// A terminal run can be followed by another Start. Only one run is active
// at a time.
//
// # Loop
//
// Each iteration suspends for the configured interval, re-checks for
// cancellation, samples every worker, stamps the current power mode, and
// appends the record to the History. After the loop exits the backend is
// torn down exactly once, the run becomes terminal, the (possibly partial)
// History goes to the exporter, and event subscribers are closed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/backend"
	"github.com/AleutianAI/powerbench/services/bench/powermode"
	"github.com/AleutianAI/powerbench/services/bench/sample"
)

const defaultEventBuffer = 64

// run is the per-run state owned by the sampling goroutine.
type run struct {
	id  string
	cfg RunConfig

	// ctx is cancelled by Cancel. base carries the caller's values but is
	// never cancelled, so backend calls and exports still complete.
	ctx    context.Context
	base   context.Context
	cancel context.CancelFunc

	done    chan struct{}
	final   Status
	records []sample.IntervalRecord
}

// Scheduler runs sampling loops against a Backend.
//
// Thread Safety: Safe for concurrent use. Start, Cancel, Status, Wait,
// History and Subscribe may be called from any goroutine.
type Scheduler struct {
	backend     backend.Backend
	logger      *slog.Logger
	power       powermode.Querier
	exporter    Exporter
	observers   []Observer
	clock       Clock
	eventBuffer int

	history *sample.History

	mu      sync.Mutex
	status  Status
	current *run
	subs    map[int]chan Event
	nextSub int
}

// New creates a Scheduler in StateIdle.
//
// Inputs:
//
//	b - The backend to drive. Required.
//	opts - Optional logger, power-mode querier, exporter, observers, clock.
//
// Outputs:
//
//	*Scheduler - Ready scheduler.
//	error - ErrNilBackend if b is nil.
func New(b backend.Backend, opts ...Option) (*Scheduler, error) {
	if b == nil {
		return nil, ErrNilBackend
	}
	s := &Scheduler{
		backend:     b,
		logger:      slog.Default(),
		power:       powermode.System(),
		clock:       realClock{},
		eventBuffer: defaultEventBuffer,
		history:     sample.NewHistory(0),
		subs:        make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "scheduler"))
	return s, nil
}

// Start begins a run.
//
// Description:
//
//	Validates cfg, assigns a new run ID, clears the History and starts the
//	backend. On success the sampling loop runs in a new goroutine and Start
//	returns immediately. If the backend fails to start, the run is finished
//	synchronously in StateFailed (teardown attempted, exporter invoked with
//	an empty history) and the error is returned.
//
//	The run is detached from ctx's cancellation; use Cancel to stop it.
//	Values carried by ctx (trace spans) are kept.
//
// Outputs:
//
//	string - The run ID.
//	error - ErrInvalidConfig, ErrRunInProgress, or ErrBackendUnavailable.
func (s *Scheduler) Start(ctx context.Context, cfg RunConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.status.State == StateRunning {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}

	base := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(base)
	r := &run{
		id:     uuid.NewString(),
		cfg:    cfg,
		ctx:    runCtx,
		base:   base,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.history.Reset()
	s.current = r
	s.status = Status{
		RunID:     r.id,
		State:     StateRunning,
		Total:     cfg.Intervals,
		Workers:   cfg.Workers,
		Mode:      cfg.Mode,
		StartedAt: s.clock.Now(),
	}
	s.mu.Unlock()

	runProgress.Set(0)
	for _, o := range s.observers {
		o.RunStarted(base, r.id, cfg)
	}

	if err := s.backend.Start(base, cfg.Workers); err != nil {
		RecordBackendError("start")
		err = fmt.Errorf("%w: start %d workers: %w", ErrBackendUnavailable, cfg.Workers, err)
		s.finish(r, StateFailed, err)
		return r.id, err
	}

	s.logger.Info("run started",
		slog.String("run_id", r.id),
		slog.Int("workers", cfg.Workers),
		slog.Int("intervals", cfg.Intervals),
		slog.Duration("interval", cfg.Interval))

	go s.loop(r)
	return r.id, nil
}

// Cancel requests that the running run stop. It interrupts the current
// suspension; an in-flight SampleAll completes and its record is kept.
// Calling Cancel when no run is Running, or more than once, has no effect.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.status.State != StateRunning {
		return
	}
	if s.current.ctx.Err() == nil {
		s.logger.Info("run cancellation requested", slog.String("run_id", s.current.id))
	}
	s.current.cancel()
}

// Status returns a snapshot of the current or most recent run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History returns a snapshot of the records collected so far.
func (s *Scheduler) History() []sample.IntervalRecord {
	return s.history.Snapshot()
}

// Wait blocks until the current run has finished and been exported.
//
// Outputs:
//
//	Result - The terminal status and full history of the run. When no run
//	         was ever started, the idle status and no history.
//	error - ctx.Err() if ctx ends first.
func (s *Scheduler) Wait(ctx context.Context) (Result, error) {
	s.mu.Lock()
	r := s.current
	st := s.status
	s.mu.Unlock()
	if r == nil {
		return Result{Status: st}, nil
	}
	select {
	case <-r.done:
		return Result{Status: r.final, History: r.records}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Subscribe returns a channel of Events for the current run, or for the
// next run if none is Running. The channel is closed after the run's
// terminal event. Sends never block: when the buffer is full the event is
// dropped, so slow consumers should poll Status for the latest state.
//
// The returned func unsubscribes and closes the channel early. It is safe
// to call after the channel has been closed.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, s.eventBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Events is Subscribe without the unsubscribe func.
func (s *Scheduler) Events() <-chan Event {
	ch, _ := s.Subscribe()
	return ch
}

// -----------------------------------------------------------------------------
// Loop
// -----------------------------------------------------------------------------

func (s *Scheduler) loop(r *run) {
	state, err := s.sampleLoop(r)
	s.finish(r, state, err)
}

func (s *Scheduler) sampleLoop(r *run) (State, error) {
	for i := 0; i < r.cfg.Intervals; i++ {
		select {
		case <-r.ctx.Done():
			return StateCancelled, nil
		case <-s.clock.After(r.cfg.Interval):
		}
		// Both cases may have been ready; cancellation wins.
		if r.ctx.Err() != nil {
			return StateCancelled, nil
		}

		started := s.clock.Now()
		samples, err := s.backend.SampleAll(r.base, r.cfg.Workers)
		elapsed := s.clock.Now().Sub(started)
		if err == nil && len(samples) != r.cfg.Workers {
			err = fmt.Errorf("got %d samples for %d workers", len(samples), r.cfg.Workers)
		}
		if err != nil {
			RecordBackendError("sample")
			return StateFailed, fmt.Errorf("%w: interval %d: %w", ErrBackendUnavailable, i, err)
		}

		record := sample.IntervalRecord(samples).Stamp(s.power.LowPowerMode(r.base))
		s.history.Append(record)
		m := aggregate.Aggregate(record)

		completed := i + 1
		progress := float64(completed) / float64(r.cfg.Intervals)
		s.mu.Lock()
		s.status.Completed = completed
		s.status.Progress = progress
		s.mu.Unlock()

		RecordInterval(elapsed.Seconds(), progress)
		for _, o := range s.observers {
			o.IntervalSampled(r.base, r.id, i, record, m)
		}
		s.publish(Event{
			RunID:    r.id,
			State:    StateRunning,
			Progress: progress,
			Interval: i,
			Metrics:  m,
		})

		s.logger.Debug("interval sampled",
			slog.String("run_id", r.id),
			slog.Int("interval", i),
			slog.Float64("p_ghz", m.PFrequencyGHz),
			slog.Float64("e_ghz", m.EFrequencyGHz),
			slog.Float64("power_w", m.CombinedPowerW))
	}
	return StateCompleted, nil
}

// finish tears down the backend, makes the run terminal, exports the
// history and closes subscribers.
func (s *Scheduler) finish(r *run, state State, runErr error) {
	if err := s.backend.Teardown(); err != nil && !errors.Is(err, backend.ErrNotStarted) {
		RecordBackendError("teardown")
		s.logger.Warn("backend teardown failed",
			slog.String("run_id", r.id),
			slog.String("error", err.Error()))
	}

	// Read while still Running: once the state is terminal a new Start may
	// reset the history.
	records := s.history.Snapshot()
	var lastMetrics aggregate.Metrics
	if last, ok := s.history.Last(); ok {
		lastMetrics = aggregate.Aggregate(last)
	}

	s.mu.Lock()
	s.status.State = state
	s.status.FinishedAt = s.clock.Now()
	if runErr != nil {
		s.status.Err = runErr.Error()
	}
	final := s.status
	subs := s.subs
	s.subs = make(map[int]chan Event)
	s.mu.Unlock()
	r.cancel()

	RecordRunFinished(state)
	logAttrs := []any{
		slog.String("run_id", r.id),
		slog.String("state", state.String()),
		slog.Int("completed", final.Completed),
		slog.Int("total", final.Total),
	}
	if runErr != nil {
		s.logger.Error("run failed", append(logAttrs, slog.String("error", runErr.Error()))...)
	} else {
		s.logger.Info("run finished", logAttrs...)
	}

	for _, o := range s.observers {
		o.RunFinished(r.base, final)
	}

	if s.exporter != nil {
		if err := s.exporter.ExportRun(r.base, r.id, r.cfg.Mode, records); err != nil {
			s.logger.Error("export failed", slog.String("run_id", r.id), slog.String("error", err.Error()))
		}
	}

	terminal := Event{RunID: r.id, State: state, Progress: final.Progress, Interval: -1, Metrics: lastMetrics}
	for _, ch := range subs {
		select {
		case ch <- terminal:
		default:
		}
		close(ch)
	}

	r.final = final
	r.records = records
	close(r.done)
}

// publish sends ev to every subscriber without blocking.
func (s *Scheduler) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Elapsed returns how long the current run has been going, or the total
// duration of the last run once it is terminal.
func (st Status) Elapsed(now time.Time) time.Duration {
	if st.StartedAt.IsZero() {
		return 0
	}
	if !st.FinishedAt.IsZero() {
		return st.FinishedAt.Sub(st.StartedAt)
	}
	return now.Sub(st.StartedAt)
}
