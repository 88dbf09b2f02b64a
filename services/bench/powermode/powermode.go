// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package powermode reports whether the OS is in a low-power mode.
//
// The value is read fresh at every sampling point because the user can
// toggle it mid-run. A query that fails reports false ("high"), since the
// absence of evidence for low-power mode is the common case.
package powermode

import (
	"context"
	"sync/atomic"
)

// Querier reports the current system power mode.
type Querier interface {
	// LowPowerMode returns true when the OS is throttling for battery life.
	LowPowerMode(ctx context.Context) bool
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context) bool

// LowPowerMode calls f.
func (f QuerierFunc) LowPowerMode(ctx context.Context) bool { return f(ctx) }

// Fixed always reports low.
func Fixed(low bool) Querier {
	return QuerierFunc(func(context.Context) bool { return low })
}

// Switch is a Querier whose answer can be flipped at runtime. Used by tests
// to toggle the mode between intervals.
type Switch struct {
	low atomic.Bool
}

// Set changes the reported mode.
func (s *Switch) Set(low bool) { s.low.Store(low) }

// LowPowerMode returns the last value passed to Set.
func (s *Switch) LowPowerMode(context.Context) bool { return s.low.Load() }

// System returns the querier for the running platform.
func System() Querier {
	return QuerierFunc(systemLowPower)
}
