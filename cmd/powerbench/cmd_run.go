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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/powerbench/pkg/ux"
	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/backend"
	"github.com/AleutianAI/powerbench/services/bench/device"
	"github.com/AleutianAI/powerbench/services/bench/export"
	"github.com/AleutianAI/powerbench/services/bench/powermode"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
)

// runBenchmark implements "powerbench run".
//
// Description:
//
//	Flags override config values. The scheduler's run is detached from the
//	command context, so an interrupt is turned into Cancel and the command
//	still waits for the partial export before returning.
func runBenchmark(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logger.Slog()
	p := printer(cmd)

	modeName := cfg.Run.Mode
	if cmd.Flags().Changed("mode") {
		modeName = runMode
	}
	mode, err := export.ParseMode(modeName)
	if err != nil {
		return err
	}

	rc := scheduler.RunConfig{
		Workers:   cfg.Run.Workers,
		Intervals: cfg.Run.Intervals,
		Interval:  cfg.Run.Interval,
		Mode:      mode.String(),
	}
	if cmd.Flags().Changed("workers") {
		rc.Workers = runWorkers
	}
	if cmd.Flags().Changed("intervals") {
		rc.Intervals = runIntervals
	}
	if cmd.Flags().Changed("interval") {
		rc.Interval = runInterval
	}
	if rc.Workers == 0 {
		rc.Workers = backend.DefaultWorkers(mode == export.ModeMulti)
	}
	if err := rc.Validate(); err != nil {
		return err
	}

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

	exporter := export.NewExporter(mode, device.Default(), sinks.Sink(), log)
	table := newTableObserver(p)
	sched, err := scheduler.New(b,
		scheduler.WithLogger(log),
		scheduler.WithPowerMode(powermode.System()),
		scheduler.WithExporter(exporter),
		scheduler.WithObserver(table),
	)
	if err != nil {
		return err
	}

	p.Title(fmt.Sprintf("powerbench %s: %d workers, %d x %s (%s counters)",
		mode, rc.Workers, rc.Intervals, rc.Interval, source))

	runID, err := sched.Start(ctx, rc)
	if err != nil {
		return err
	}

	res, err := waitOrCancel(ctx, sched)
	if err != nil {
		return err
	}

	summary := aggregate.Summarize(res.History)
	table.maxRow(summary)
	printSummary(p, res.Status, summary)
	reportDestination(p, runID, sinks)

	switch res.Status.State {
	case scheduler.StateFailed:
		return fmt.Errorf("run %s failed: %s", runID, res.Status.Err)
	case scheduler.StateCancelled:
		p.Warning(fmt.Sprintf("run cancelled after %d of %d intervals; partial CSV written",
			res.Status.Completed, res.Status.Total))
	default:
		p.Success(fmt.Sprintf("run %s completed", runID))
	}
	return nil
}

// waitOrCancel waits for the run, cancelling it once if ctx ends first.
func waitOrCancel(ctx context.Context, sched *scheduler.Scheduler) (scheduler.Result, error) {
	res, err := sched.Wait(ctx)
	if err == nil {
		return res, nil
	}
	sched.Cancel()
	return sched.Wait(context.Background())
}

func reportDestination(p *ux.Printer, runID string, sinks *sinkSet) {
	name := export.Export{RunID: runID}.Filename()
	switch {
	case runOut != "":
		p.Info("CSV written to " + runOut)
	case cfg.Export.Dir != "":
		p.Info("CSV written to " + filepath.Join(cfg.Export.Dir, name))
	}
	if sinks.archive != nil {
		p.Info("archived as " + runID)
	}
	if sinks.copied {
		p.Info("results copied to the clipboard")
	}
}
