// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export renders run histories as delimited text and delivers the
// result to one or more sinks (writer, file, Badger archive, Cloud Storage).
//
// The CSV layout is fixed: downstream spreadsheets and notebooks key on the
// exact header text, including the ", " separators in the header line.
// Data rows are comma-joined without spaces, the device model is always
// double-quoted, and numeric fields are written at full precision.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// Mode selects the serializer variant.
type Mode int

const (
	// ModeMulti renders one row per (interval, worker).
	ModeMulti Mode = iota

	// ModeSingle renders one row per single-shot sample.
	ModeSingle
)

// String returns "multi" or "single".
func (m Mode) String() string {
	switch m {
	case ModeMulti:
		return "multi"
	case ModeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses "multi" or "single".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "multi", "":
		return ModeMulti, nil
	case "single":
		return ModeSingle, nil
	default:
		return ModeMulti, fmt.Errorf("%w: unknown mode %q", ErrInvalidExport, s)
	}
}

const (
	// MultiHeader is the header line of the multi-interval variant.
	MultiHeader = "sample, thread_id, device, powermode, p_cycles, p_time, p_energy, e_cycles, e_time, e_energy, items\n"

	// SingleHeader is the header line of the single-run variant.
	SingleHeader = "sample, device, powermode, p_cycles, p_time, p_energy, e_cycles, e_time, e_energy, primes\n"
)

// WriteCSV writes the multi-interval variant.
//
// Description:
//
//	Emits MultiHeader followed by one row per worker per interval, in
//	interval order then worker order. thread_id is the sample's index in
//	its record. Every row, including the last, ends
//	with "\n". The output is a pure function of the arguments.
//
// Inputs:
//
//	w - Destination.
//	records - Run history. May be empty, in which case only the header is written.
//	model - Device model identifier. Written quoted on every row.
//
// Outputs:
//
//	error - The first write error, if any.
func WriteCSV(w io.Writer, records []sample.IntervalRecord, model string) error {
	var b strings.Builder
	b.WriteString(MultiHeader)
	quoted := quote(model)
	for i, rec := range records {
		for w, s := range rec {
			b.WriteString(strconv.Itoa(i))
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(w))
			b.WriteByte(',')
			writeSampleFields(&b, quoted, s)
			b.WriteString(strconv.FormatUint(s.WorkDone, 10))
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderCSV returns the multi-interval variant as a string.
func RenderCSV(records []sample.IntervalRecord, model string) string {
	var b strings.Builder
	_ = WriteCSV(&b, records, model)
	return b.String()
}

// WriteSingleCSV writes the single-run variant: one row per sample, indexed
// by its position in samples, with WorkDone in the primes column.
func WriteSingleCSV(w io.Writer, samples []sample.ThreadSample, model string) error {
	var b strings.Builder
	b.WriteString(SingleHeader)
	quoted := quote(model)
	for i, s := range samples {
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(',')
		writeSampleFields(&b, quoted, s)
		b.WriteString(strconv.FormatUint(s.WorkDone, 10))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderSingleCSV returns the single-run variant as a string.
func RenderSingleCSV(samples []sample.ThreadSample, model string) string {
	var b strings.Builder
	_ = WriteSingleCSV(&b, samples, model)
	return b.String()
}

// Render dispatches on mode. In ModeSingle the records are flattened in
// interval then worker order.
func Render(mode Mode, records []sample.IntervalRecord, model string) []byte {
	if mode == ModeSingle {
		return []byte(RenderSingleCSV(Flatten(records), model))
	}
	return []byte(RenderCSV(records, model))
}

// Flatten concatenates records in interval then worker order.
func Flatten(records []sample.IntervalRecord) []sample.ThreadSample {
	n := 0
	for _, rec := range records {
		n += len(rec)
	}
	out := make([]sample.ThreadSample, 0, n)
	for _, rec := range records {
		out = append(out, rec...)
	}
	return out
}

// writeSampleFields writes device, powermode and the six counters, each
// followed by a comma.
func writeSampleFields(b *strings.Builder, quotedModel string, s sample.ThreadSample) {
	b.WriteString(quotedModel)
	b.WriteByte(',')
	b.WriteString(s.PowerMode())
	b.WriteByte(',')
	for _, v := range [...]float64{
		s.PCore.Cycles, s.PCore.Time, s.PCore.Energy,
		s.ECore.Cycles, s.ECore.Time, s.ECore.Energy,
	} {
		b.WriteString(formatFloat(v))
		b.WriteByte(',')
	}
}

// formatFloat writes the shortest decimal that round-trips to v, without
// an exponent.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quote wraps s in double quotes, doubling any embedded quote.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
