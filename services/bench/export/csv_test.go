// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

func twoByTwo() []sample.IntervalRecord {
	return []sample.IntervalRecord{
		{
			{WorkerID: 0, PCore: sample.CounterSample{Cycles: 3e9, Time: 1, Energy: 2.5}, WorkDone: 10},
			{WorkerID: 1, ECore: sample.CounterSample{Cycles: 2e9, Time: 1, Energy: 0.5}, WorkDone: 7},
		},
		{
			{WorkerID: 0, PCore: sample.CounterSample{Cycles: 1.5e9, Time: 0.5, Energy: 1}, WorkDone: 5, LowPower: true},
			{WorkerID: 1, ECore: sample.CounterSample{Cycles: 1e9, Time: 0.25, Energy: 0.125}, WorkDone: 3, LowPower: true},
		},
	}
}

func TestRenderCSV_ExactOutput(t *testing.T) {
	want := MultiHeader +
		`0,0,"Mac14,2",high,3000000000,1,2.5,0,0,0,10` + "\n" +
		`0,1,"Mac14,2",high,0,0,0,2000000000,1,0.5,7` + "\n" +
		`1,0,"Mac14,2",low,1500000000,0.5,1,0,0,0,5` + "\n" +
		`1,1,"Mac14,2",low,0,0,0,1000000000,0.25,0.125,3` + "\n"

	assert.Equal(t, want, RenderCSV(twoByTwo(), "Mac14,2"))
}

func TestRenderCSV_EmptyHistory(t *testing.T) {
	assert.Equal(t, MultiHeader, RenderCSV(nil, "x"))
}

func TestRenderCSV_RowCountAndTerminator(t *testing.T) {
	records := make([]sample.IntervalRecord, 5)
	for i := range records {
		records[i] = make(sample.IntervalRecord, 3)
		for w := range records[i] {
			records[i][w].WorkerID = w
		}
	}

	out := RenderCSV(records, "m")
	require.True(t, strings.HasSuffix(out, "\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 1+5*3)
	for _, line := range lines[1:] {
		assert.Equal(t, 10, strings.Count(line, ","), line)
	}
}

func TestRenderCSV_Deterministic(t *testing.T) {
	a := RenderCSV(twoByTwo(), "dev")
	b := RenderCSV(twoByTwo(), "dev")
	assert.Equal(t, a, b)
}

func TestRenderCSV_ThreadIDIsRecordIndex(t *testing.T) {
	rec := []sample.IntervalRecord{{{WorkerID: 4}, {WorkerID: 4}}}
	lines := strings.Split(strings.TrimSuffix(RenderCSV(rec, "m"), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for w, line := range lines[1:] {
		if want := "0," + strconv.Itoa(w) + ","; !strings.HasPrefix(line, want) {
			t.Errorf("row %d = %q, want prefix %q", w, line, want)
		}
	}
}

func TestRenderCSV_QuotesModel(t *testing.T) {
	rec := []sample.IntervalRecord{{{WorkerID: 0}}}
	out := RenderCSV(rec, `Board "A"`)
	assert.Contains(t, out, `,"Board ""A""",`)
}

func TestRenderCSV_FullPrecision(t *testing.T) {
	// Variables keep the sum out of constant folding, which would yield 0.3.
	a, b := 0.1, 0.2
	big, tiny := 3e9, 1e-7
	rec := []sample.IntervalRecord{{{
		PCore: sample.CounterSample{Cycles: big + 0.5, Time: a + b, Energy: tiny},
	}}}
	out := RenderCSV(rec, "m")

	want := MultiHeader + `0,0,"m",high,3000000000.5,0.30000000000000004,0.0000001,0,0,0,0` + "\n"
	if out != want {
		t.Errorf("RenderCSV() =\n%q\nwant\n%q", out, want)
	}
	if strings.ContainsAny(out[len(MultiHeader):], "eE") {
		t.Errorf("RenderCSV() printed an exponent: %q", out)
	}
}

func TestRenderSingleCSV(t *testing.T) {
	samples := []sample.ThreadSample{
		{PCore: sample.CounterSample{Cycles: 4e9, Time: 2, Energy: 6}, WorkDone: 9592},
	}
	want := SingleHeader + `0,"m",high,4000000000,2,6,0,0,0,9592` + "\n"
	assert.Equal(t, want, RenderSingleCSV(samples, "m"))
}

func TestRender_Dispatch(t *testing.T) {
	records := twoByTwo()
	assert.Equal(t, RenderCSV(records, "m"), string(Render(ModeMulti, records, "m")))

	single := string(Render(ModeSingle, records, "m"))
	require.True(t, strings.HasPrefix(single, SingleHeader))
	lines := strings.Split(strings.TrimSuffix(single, "\n"), "\n")
	assert.Len(t, lines, 1+4)
	assert.True(t, strings.HasPrefix(lines[4], "3,"))
}

func TestFlatten(t *testing.T) {
	flat := Flatten(twoByTwo())
	require.Len(t, flat, 4)
	assert.Equal(t, uint64(10), flat[0].WorkDone)
	assert.Equal(t, uint64(3), flat[3].WorkDone)
	assert.Empty(t, Flatten(nil))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSV_PropagatesWriteError(t *testing.T) {
	assert.Error(t, WriteCSV(failingWriter{}, twoByTwo(), "m"))
	assert.Error(t, WriteSingleCSV(failingWriter{}, nil, "m"))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"multi", ModeMulti, false},
		{"", ModeMulti, false},
		{" SINGLE ", ModeSingle, false},
		{"both", ModeMulti, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidExport)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMode_Text(t *testing.T) {
	text, err := ModeSingle.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "single", string(text))

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("single")))
	assert.Equal(t, ModeSingle, m)
	assert.Error(t, m.UnmarshalText([]byte("nope")))
	assert.Equal(t, "unknown", Mode(9).String())
}
