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
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZone(t *testing.T, root, name string, energy, maxRange uint64) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	setEnergy(t, dir, energy)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_energy_range_uj"),
		[]byte(strconv.FormatUint(maxRange, 10)+"\n"), 0o644))
	return dir
}

func setEnergy(t *testing.T, dir string, uj uint64) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "energy_uj"),
		[]byte(strconv.FormatUint(uj, 10)+"\n"), 0o644))
}

func TestRAPLMeter_SumsPackagesAndSkipsSubzones(t *testing.T) {
	root := t.TempDir()
	pkg0 := writeZone(t, root, "intel-rapl:0", 1_000_000, 10_000_000)
	pkg1 := writeZone(t, root, "intel-rapl:1", 5_000_000, 10_000_000)
	core := writeZone(t, root, "intel-rapl:0:0", 0, 10_000_000)

	m, err := newRAPLMeter(root)
	require.NoError(t, err)
	require.Len(t, m.zones, 2)

	j, err := m.Joules()
	require.NoError(t, err)
	assert.InDelta(t, 0, j, 1e-12)

	setEnergy(t, pkg0, 3_000_000)
	setEnergy(t, pkg1, 5_500_000)
	setEnergy(t, core, 9_000_000)

	j, err = m.Joules()
	require.NoError(t, err)
	assert.InDelta(t, 2.5, j, 1e-9)
}

func TestRAPLMeter_Wraparound(t *testing.T) {
	root := t.TempDir()
	pkg := writeZone(t, root, "intel-rapl:0", 9_000_000, 10_000_000)

	m, err := newRAPLMeter(root)
	require.NoError(t, err)

	setEnergy(t, pkg, 1_000_000)
	j, err := m.Joules()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, j, 1e-9)
}

func TestRAPLMeter_NoZones(t *testing.T) {
	_, err := newRAPLMeter(t.TempDir())
	assert.ErrorIs(t, err, ErrEnergyUnavailable)
}
