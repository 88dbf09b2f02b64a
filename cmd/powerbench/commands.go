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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/powerbench/cmd/powerbench/config"
	"github.com/AleutianAI/powerbench/pkg/logging"
	"github.com/AleutianAI/powerbench/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath  string
	outputLevel string

	cfg    config.Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "powerbench",
		Short: "Per-core frequency, power and throughput benchmark",
		Long: `powerbench runs a prime-counting load on N pinned worker threads and
samples each worker's P-core and E-core cycles, time and energy at a fixed
interval. Results are shown live and written as CSV.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  loadConfig,
		PersistentPostRunE: closeLogger,
	}

	// --- Benchmarks ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Sample N workers at a fixed interval and write a CSV",
		Long: `Starts the workers, samples every --interval for --intervals samples and
prints one row per interval. Ctrl+C stops early; the partial history is
still written.`,
		Args: cobra.NoArgs,
		RunE: runBenchmark,
	}
	singleCmd = &cobra.Command{
		Use:   "single",
		Short: "Measure single-threaded runs of the fixed prime workload",
		Args:  cobra.NoArgs,
		RunE:  runSingle,
	}

	// --- API ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for remote run control and progress",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	// --- Archive ---
	archiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "Browse exports stored in the local archive",
	}
	archiveListCmd = &cobra.Command{
		Use:   "list",
		Short: "List archived exports, newest first",
		Args:  cobra.NoArgs,
		RunE:  runArchiveList,
	}
	archiveShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print an archived CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchiveShow,
	}
	archiveDeleteCmd = &cobra.Command{
		Use:     "delete [run-id]",
		Aliases: []string{"rm"},
		Short:   "Delete an archived export",
		Args:    cobra.ExactArgs(1),
		RunE:    runArchiveDelete,
	}
)

// Run flags
var (
	runMode      string
	runWorkers   int
	runIntervals int
	runInterval  time.Duration
	runOut       string
	runArchive   bool
	runCopy      bool
	runBackend   string
	singleCount  int
	serveAddr    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.powerbench/powerbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputLevel, "output", "",
		"output style: rich, plain or machine (default: detect)")

	for _, c := range []*cobra.Command{runCmd, singleCmd} {
		c.Flags().StringVar(&runOut, "out", "", "CSV output file (default: export.dir from config)")
		c.Flags().BoolVar(&runArchive, "archive", true, "also store the CSV in the archive")
		c.Flags().BoolVar(&runCopy, "copy", false, "copy the CSV to the clipboard (default: export.clipboard from config)")
		c.Flags().StringVar(&runBackend, "backend", "", "counter backend: auto, perf, clock or sim")
	}
	runCmd.Flags().StringVar(&runMode, "mode", "", "single or multi")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "worker threads (default: 1 for single, CPU count for multi)")
	runCmd.Flags().IntVar(&runIntervals, "intervals", 50, "number of samples")
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Second, "time between samples")
	singleCmd.Flags().IntVar(&singleCount, "count", 1, "number of single-thread runs")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")

	archiveCmd.AddCommand(archiveListCmd, archiveShowCmd, archiveDeleteCmd)
	rootCmd.AddCommand(runCmd, singleCmd, serveCmd, archiveCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, created, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = logging.New(cfg.Logging.LoggingOptions("powerbench"))
	slog.SetDefault(logger.Slog())
	logger.Debug("config loaded", "path", configPath, "created", created, "command", cmd.Name())
	if created {
		printer(cmd).Info("First run detected, created the default config")
	}
	return nil
}

func closeLogger(*cobra.Command, []string) error {
	if logger == nil {
		return nil
	}
	return logger.Close()
}

func printer(cmd *cobra.Command) *ux.Printer {
	var level ux.Level
	if outputLevel != "" {
		level = ux.ParseLevel(outputLevel)
	}
	return ux.NewPrinter(cmd.OutOrStdout(), level)
}
