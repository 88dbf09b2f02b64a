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

import "github.com/AleutianAI/powerbench/services/bench/sample"

// EnergyMeter reports cumulative package energy in joules. Readings must be
// monotonic; implementations handle hardware counter wrap-around.
type EnergyMeter interface {
	Joules() (float64, error)
}

// apportionEnergy distributes joules across samples in proportion to each
// sample's time on each core type. A per-thread energy counter does not
// exist on most platforms, so package energy is split by time share.
// Samples with no recorded time receive no energy.
func apportionEnergy(samples []sample.ThreadSample, joules float64) {
	if joules <= 0 {
		return
	}
	var total float64
	for _, s := range samples {
		total += s.TotalTime()
	}
	if total <= 0 {
		return
	}
	for i := range samples {
		samples[i].PCore.Energy = joules * samples[i].PCore.Time / total
		samples[i].ECore.Energy = joules * samples[i].ECore.Time / total
	}
}
