// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build linux

package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// powercapRoot is where the kernel exposes RAPL zones.
var powercapRoot = "/sys/class/powercap"

// raplZone is one package-level RAPL domain.
type raplZone struct {
	energyPath string
	maxRangeUJ uint64
	lastUJ     uint64
	totalUJ    uint64
}

// raplMeter sums package energy across all RAPL package zones.
type raplMeter struct {
	mu    sync.Mutex
	zones []*raplZone
}

// NewSystemEnergyMeter opens the RAPL package zones.
//
// Outputs:
//
//	EnergyMeter - Meter over all packages.
//	error - ErrEnergyUnavailable when no readable package zone exists
//	        (energy_uj is root-only on most current kernels).
func NewSystemEnergyMeter() (EnergyMeter, error) {
	return newRAPLMeter(powercapRoot)
}

func newRAPLMeter(root string) (*raplMeter, error) {
	dirs, err := filepath.Glob(filepath.Join(root, "intel-rapl:*"))
	if err != nil {
		return nil, err
	}

	m := &raplMeter{}
	for _, dir := range dirs {
		// Sub-zones (core, uncore, dram) are named intel-rapl:P:N.
		if strings.Count(filepath.Base(dir), ":") != 1 {
			continue
		}
		zone, err := openRAPLZone(dir)
		if err != nil {
			continue
		}
		m.zones = append(m.zones, zone)
	}
	if len(m.zones) == 0 {
		return nil, fmt.Errorf("%w: no readable RAPL package zone under %s", ErrEnergyUnavailable, root)
	}
	return m, nil
}

func openRAPLZone(dir string) (*raplZone, error) {
	energyPath := filepath.Join(dir, "energy_uj")
	initial, err := readUint64File(energyPath)
	if err != nil {
		return nil, err
	}
	maxRange, err := readUint64File(filepath.Join(dir, "max_energy_range_uj"))
	if err != nil {
		return nil, err
	}
	return &raplZone{energyPath: energyPath, maxRangeUJ: maxRange, lastUJ: initial}, nil
}

// Joules returns energy accumulated since the meter was opened.
func (m *raplMeter) Joules() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totalUJ uint64
	for _, z := range m.zones {
		raw, err := readUint64File(z.energyPath)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", z.energyPath, err)
		}
		if raw >= z.lastUJ {
			z.totalUJ += raw - z.lastUJ
		} else {
			z.totalUJ += z.maxRangeUJ - z.lastUJ + raw
		}
		z.lastUJ = raw
		totalUJ += z.totalUJ
	}
	return float64(totalUJ) / 1e6, nil
}

func readUint64File(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
