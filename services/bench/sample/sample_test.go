// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sample

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterSample_FrequencyGHz(t *testing.T) {
	tests := []struct {
		name   string
		in     CounterSample
		want   float64
		wantOK bool
	}{
		{"3 GHz", CounterSample{Cycles: 3e9, Time: 1}, 3, true},
		{"half second", CounterSample{Cycles: 1e9, Time: 0.5}, 2, true},
		{"zero time", CounterSample{Cycles: 5e9, Time: 0}, 0, false},
		{"idle", CounterSample{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.FrequencyGHz()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCounterSample_AddSub(t *testing.T) {
	a := CounterSample{Cycles: 10, Time: 2, Energy: 4}
	b := CounterSample{Cycles: 3, Time: 0.5, Energy: 1}

	assert.Equal(t, CounterSample{Cycles: 13, Time: 2.5, Energy: 5}, a.Add(b))
	assert.Equal(t, CounterSample{Cycles: 7, Time: 1.5, Energy: 3}, a.Sub(b))
}

func TestThreadSample_Totals(t *testing.T) {
	s := ThreadSample{
		PCore: CounterSample{Time: 0.8, Energy: 2},
		ECore: CounterSample{Time: 0.2, Energy: 0.5},
	}
	assert.InDelta(t, 1.0, s.TotalTime(), 1e-12)
	assert.InDelta(t, 2.5, s.TotalEnergy(), 1e-12)
}

func TestThreadSample_PowerMode(t *testing.T) {
	assert.Equal(t, "low", ThreadSample{LowPower: true}.PowerMode())
	assert.Equal(t, "high", ThreadSample{}.PowerMode())
}

func TestIntervalRecord_Stamp_DoesNotAlias(t *testing.T) {
	rec := IntervalRecord{{WorkerID: 0}, {WorkerID: 1}}
	stamped := rec.Stamp(true)

	for _, s := range stamped {
		assert.True(t, s.LowPower)
	}
	for _, s := range rec {
		assert.False(t, s.LowPower, "original record must be unchanged")
	}
}

func TestIntervalRecord_Stamp_WorkerIDIsIndex(t *testing.T) {
	rec := IntervalRecord{{WorkerID: 5}, {WorkerID: 5}, {WorkerID: 0}}
	stamped := rec.Stamp(false)

	for i, s := range stamped {
		if s.WorkerID != i {
			t.Errorf("stamped[%d].WorkerID = %d, want %d", i, s.WorkerID, i)
		}
	}
	if rec[0].WorkerID != 5 {
		t.Errorf("original WorkerID changed to %d", rec[0].WorkerID)
	}
}

func TestIntervalRecord_CloneNil(t *testing.T) {
	var rec IntervalRecord
	assert.Nil(t, rec.Clone())
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func TestHistory_AppendSnapshotReset(t *testing.T) {
	h := NewHistory(4)
	require.Equal(t, 0, h.Len())

	_, ok := h.Last()
	assert.False(t, ok)

	h.Append(IntervalRecord{{WorkerID: 0, WorkDone: 1}})
	h.Append(IntervalRecord{{WorkerID: 0, WorkDone: 2}})

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint64(1), snap[0][0].WorkDone)
	assert.Equal(t, uint64(2), snap[1][0].WorkDone)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(2), last[0].WorkDone)

	h.Reset()
	assert.Equal(t, 0, h.Len())
	assert.Len(t, snap, 2, "earlier snapshot survives a reset")
}

func TestHistory_AppendCopiesRecord(t *testing.T) {
	h := NewHistory(0)
	rec := IntervalRecord{{WorkerID: 0, WorkDone: 7}}
	h.Append(rec)

	rec[0].WorkDone = 99
	assert.Equal(t, uint64(7), h.Snapshot()[0][0].WorkDone)
}

func TestHistory_SnapshotIsBounded(t *testing.T) {
	h := NewHistory(0)
	h.Append(IntervalRecord{{WorkerID: 0}})
	snap := h.Snapshot()

	h.Append(IntervalRecord{{WorkerID: 0}})
	assert.Len(t, snap, 1)
	assert.Equal(t, 2, h.Len())
}

func TestHistory_ConcurrentReadersDuringAppend(t *testing.T) {
	h := NewHistory(0)
	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			h.Append(IntervalRecord{{WorkerID: 0, WorkDone: uint64(i)}, {WorkerID: 1, WorkDone: uint64(i)}})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := 0
			for i := 0; i < total; i++ {
				snap := h.Snapshot()
				assert.GreaterOrEqual(t, len(snap), prev)
				prev = len(snap)
				for idx, rec := range snap {
					if assert.Len(t, rec, 2) {
						assert.Equal(t, uint64(idx), rec[0].WorkDone)
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, total, h.Len())
}
