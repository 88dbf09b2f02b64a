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
	"log/slog"
	"time"

	"github.com/AleutianAI/powerbench/services/bench/powermode"
)

// Clock abstracts timers so tests can drive the loop without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPowerMode sets the power-mode querier. Default: powermode.System().
func WithPowerMode(q powermode.Querier) Option {
	return func(s *Scheduler) {
		if q != nil {
			s.power = q
		}
	}
}

// WithExporter sets the exporter invoked once per finished run.
func WithExporter(e Exporter) Option {
	return func(s *Scheduler) { s.exporter = e }
}

// WithObserver adds a lifecycle observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithEventBuffer sets each subscriber channel's capacity. Default: 64.
func WithEventBuffer(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}
