// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/AleutianAI/powerbench/pkg/ux"
	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/sample"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
)

var intervalColumns = []ux.Column{
	{Title: "Interval", Width: 8},
	{Title: "P core GHz", Width: 10},
	{Title: "E core GHz", Width: 10},
	{Title: "Power W", Width: 9},
	{Title: "Work/sec", Width: 12},
	{Title: "Mode", Width: 4},
	{Title: "Progress", Width: 15},
}

// tableObserver prints one table row per sampled interval. Callers read
// the table only after the run finishes, so total needs no lock.
type tableObserver struct {
	p     *ux.Printer
	table *ux.Table
	total int
}

func newTableObserver(p *ux.Printer) *tableObserver {
	return &tableObserver{p: p, table: ux.NewTable(p, intervalColumns...)}
}

func (o *tableObserver) RunStarted(_ context.Context, _ string, cfg scheduler.RunConfig) {
	o.total = cfg.Intervals
	o.table.Header()
}

func (o *tableObserver) IntervalSampled(_ context.Context, _ string, index int, record sample.IntervalRecord, m aggregate.Metrics) {
	mode := sample.PowerModeHigh
	if len(record) > 0 {
		mode = record[0].PowerMode()
	}
	o.table.Row(
		strconv.Itoa(index),
		ghz(m.PFrequencyGHz),
		ghz(m.EFrequencyGHz),
		fmt.Sprintf("%.2f", m.CombinedPowerW),
		fmt.Sprintf("%.1f", m.Throughput),
		mode,
		o.p.ProgressBar(index+1, o.total, 10),
	)
}

// maxRow closes the interval table with the per-column peaks of the run.
func (o *tableObserver) maxRow(s aggregate.Summary) {
	if s.Intervals == 0 {
		return
	}
	o.table.HighlightRow(
		"max",
		ghz(s.MaxPFreqGHz),
		ghz(s.MaxEFreqGHz),
		fmt.Sprintf("%.2f", s.MaxPowerW),
		fmt.Sprintf("%.1f", s.MaxThroughput),
	)
}

func (o *tableObserver) RunFinished(context.Context, scheduler.Status) {}

// ghz renders 0 (no time on that core type) as "-".
func ghz(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// printSummary prints the whole-run summary box.
func printSummary(p *ux.Printer, st scheduler.Status, s aggregate.Summary) {
	body := fmt.Sprintf(
		"state %s, %d/%d intervals, %d workers\n"+
			"P core max %s GHz (p50 %s, p95 %s), E core max %s GHz\n"+
			"power mean %.2f W (p95 %.2f, max %.2f)\n"+
			"throughput mean %.1f/s (p95 %.1f), total work %d",
		st.State, st.Completed, st.Total, st.Workers,
		ghz(s.MaxPFreqGHz), ghz(s.P50PFreqGHz), ghz(s.P95PFreqGHz), ghz(s.MaxEFreqGHz),
		s.MeanPowerW, s.P95PowerW, s.MaxPowerW,
		s.MeanThroughput, s.P95Throughput, s.TotalWork,
	)
	p.Box("Summary", body)
}

var _ scheduler.Observer = (*tableObserver)(nil)
