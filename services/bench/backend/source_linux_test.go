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
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedstatSource_MeasuresOwnThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	src, err := newSchedstatSourceFactory(2e9)(currentThreadID())
	if err != nil {
		t.Skipf("schedstat not available: %v", err)
	}
	defer src.Close()

	CountPrimes(20_000)

	p, e, err := src.Read()
	require.NoError(t, err)
	assert.Greater(t, p.Time, 0.0)
	assert.InDelta(t, p.Time*2e9, p.Cycles, 1)
	assert.Zero(t, e.Time)
}

func TestSchedstatSource_ParseErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("abc 1 2\n"), 0o644))

	for _, path := range []string{empty, garbage, filepath.Join(dir, "missing")} {
		s := &schedstatSource{path: path, freqHz: 1e9}
		_, err := s.onCPUSeconds()
		assert.Error(t, err, path)
	}
}

func TestNewSourceFactory_ClockAlwaysAvailable(t *testing.T) {
	f, kind, err := NewSourceFactory(SourceClock)
	require.NoError(t, err)
	assert.Equal(t, SourceClock, kind)
	assert.NotNil(t, f)

	_, kind, err = NewSourceFactory(SourceAuto)
	require.NoError(t, err)
	assert.NotEqual(t, SourceAuto, kind)
}
