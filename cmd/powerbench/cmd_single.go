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
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/powerbench/pkg/ux"
	"github.com/AleutianAI/powerbench/services/bench/device"
	"github.com/AleutianAI/powerbench/services/bench/export"
	"github.com/AleutianAI/powerbench/services/bench/powermode"
	"github.com/AleutianAI/powerbench/services/bench/sample"
)

var singleColumns = []ux.Column{
	{Title: "Run", Width: 4},
	{Title: "P core GHz", Width: 10},
	{Title: "E core GHz", Width: 10},
	{Title: "Time s", Width: 8},
	{Title: "Energy J", Width: 9},
	{Title: "Mode", Width: 4},
}

// runSingle implements "powerbench single": --count one-shot measurements
// of the fixed workload, exported with the single-thread CSV layout.
func runSingle(cmd *cobra.Command, _ []string) error {
	if singleCount < 1 {
		return fmt.Errorf("--count must be >= 1, got %d", singleCount)
	}
	ctx := cmd.Context()
	log := logger.Slog()
	p := printer(cmd)

	b, source, err := newBackend(resolveBackend(runBackend), log)
	if err != nil {
		return err
	}
	sinks, err := buildSinks(ctx, cfg, exportOptions(cmd), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("closing export sinks failed", slog.String("error", err.Error()))
		}
	}()

	p.Title(fmt.Sprintf("powerbench single: %d runs (%s counters)", singleCount, source))
	table := ux.NewTable(p, singleColumns...)
	table.Header()

	power := powermode.System()
	records := make([]sample.IntervalRecord, 0, singleCount)
	var runErr error
	for i := 0; i < singleCount; i++ {
		s, err := b.RunSingle(ctx)
		if err != nil {
			runErr = err
			break
		}
		s.LowPower = power.LowPowerMode(ctx)
		records = append(records, sample.IntervalRecord{s})

		pf, _ := s.PCore.FrequencyGHz()
		ef, _ := s.ECore.FrequencyGHz()
		table.Row(
			strconv.Itoa(i),
			ghz(pf),
			ghz(ef),
			fmt.Sprintf("%.3f", s.TotalTime()),
			fmt.Sprintf("%.3f", s.TotalEnergy()),
			s.PowerMode(),
		)
	}

	if len(records) > 0 {
		exporter := export.NewExporter(export.ModeSingle, device.Default(), sinks.Sink(), log)
		runID, err := exportSingle(ctx, exporter, records)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		reportDestination(p, runID, sinks)
	}

	if runErr != nil {
		if ctx.Err() != nil {
			logger.Warn("single runs interrupted", "completed", len(records), "requested", singleCount)
			p.Warning(fmt.Sprintf("interrupted after %d of %d runs", len(records), singleCount))
			return nil
		}
		logger.Error("single run failed", "completed", len(records), "error", runErr.Error())
		return runErr
	}
	logger.Info("single runs completed", "count", len(records), "source", source)
	p.Success(fmt.Sprintf("%d single runs completed", len(records)))
	return nil
}

// exportSingle exports records under a new run ID. The export is detached
// from ctx's cancellation so an interrupted command still delivers the
// samples it collected.
func exportSingle(ctx context.Context, e *export.Exporter, records []sample.IntervalRecord) (string, error) {
	runID := uuid.NewString()
	return runID, e.ExportRun(context.WithoutCancel(ctx), runID, export.ModeSingle.String(), records)
}
