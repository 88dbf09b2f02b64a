// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrRunInProgress is returned by Start while a run is Running.
	ErrRunInProgress = errors.New("a run is already in progress")

	// ErrInvalidConfig is returned by Start for a RunConfig that fails validation.
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrBackendUnavailable wraps any backend failure. A run that hits it
	// ends in StateFailed.
	ErrBackendUnavailable = errors.New("benchmark backend unavailable")

	// ErrNilBackend is returned by New when no backend is supplied.
	ErrNilBackend = errors.New("backend must not be nil")
)

// -----------------------------------------------------------------------------
// State
// -----------------------------------------------------------------------------

// State is the lifecycle state of the scheduler's current run.
type State int

const (
	// StateIdle means no run has been started.
	StateIdle State = iota

	// StateRunning means the sampling loop is active.
	StateRunning

	// StateCompleted means every interval was sampled.
	StateCompleted

	// StateCancelled means Cancel stopped the run early.
	StateCancelled

	// StateFailed means the backend failed.
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Completed, Cancelled and Failed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler so states serialize by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// -----------------------------------------------------------------------------
// Run Configuration
// -----------------------------------------------------------------------------

// RunConfig parameterizes one run.
type RunConfig struct {
	// Workers is the number of worker threads. Must be >= 1.
	Workers int `json:"workers" validate:"min=1,max=4096"`

	// Intervals is the number of samples to take. Must be >= 1.
	Intervals int `json:"intervals" validate:"min=1"`

	// Interval is the suspension between samples. Must be > 0.
	Interval time.Duration `json:"interval" validate:"gt=0"`

	// Mode names the export variant ("single" or "multi") handed to the
	// Exporter with this run's history. Empty uses the Exporter's default.
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=single multi"`
}

var runConfigValidate = validator.New()

// Validate checks field constraints.
//
// Outputs:
//
//	error - Wraps ErrInvalidConfig with the failing fields, or nil.
func (c RunConfig) Validate() error {
	if err := runConfigValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s must satisfy %s=%s (got %v)",
				ErrInvalidConfig, f.Field(), f.Tag(), f.Param(), f.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Observation Types
// -----------------------------------------------------------------------------

// Status is a point-in-time view of the current run.
type Status struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Progress   float64   `json:"progress"`
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	Workers    int       `json:"workers"`
	Mode       string    `json:"mode,omitempty"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Event is pushed to subscribers after each sampled interval and once more
// when the run reaches a terminal state. Interval is -1 on the terminal event.
type Event struct {
	RunID    string            `json:"run_id"`
	State    State             `json:"state"`
	Progress float64           `json:"progress"`
	Interval int               `json:"interval"`
	Metrics  aggregate.Metrics `json:"metrics"`
}

// Result is what Wait returns.
type Result struct {
	Status  Status                  `json:"status"`
	History []sample.IntervalRecord `json:"history"`
}

// Observer receives run lifecycle callbacks on the sampling goroutine.
// Implementations must return quickly; slow observers delay sampling.
type Observer interface {
	RunStarted(ctx context.Context, runID string, cfg RunConfig)
	IntervalSampled(ctx context.Context, runID string, index int, record sample.IntervalRecord, m aggregate.Metrics)
	RunFinished(ctx context.Context, st Status)
}

// Exporter receives the run history once the run is terminal, together
// with the mode the run was started with. export.Exporter satisfies this.
type Exporter interface {
	ExportRun(ctx context.Context, runID, mode string, records []sample.IntervalRecord) error
}
