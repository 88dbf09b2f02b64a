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
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/powerbench/cmd/powerbench/config"
	"github.com/AleutianAI/powerbench/services/bench/backend"
	"github.com/AleutianAI/powerbench/services/bench/export"
)

// benchBackend is what every command needs from a backend.
type benchBackend interface {
	backend.Backend
	backend.SingleRunner
}

// newBackend builds the backend named by name ("sim" or a counter source
// kind). The returned string is the source actually selected.
func newBackend(name string, log *slog.Logger) (benchBackend, string, error) {
	if config.IsSimulated(name) {
		b, err := backend.NewSimulated(backend.SimulatedConfig{})
		if err != nil {
			return nil, "", err
		}
		return b, config.BackendSimulated, nil
	}

	kind, err := backend.ParseSourceKind(name)
	if err != nil {
		return nil, "", err
	}
	sources, resolved, err := backend.NewSourceFactory(kind)
	if err != nil {
		return nil, "", err
	}
	if kind == backend.SourceAuto && resolved != backend.SourcePerf {
		log.Warn("hardware counters unavailable, using thread clock",
			slog.String("source", string(resolved)))
	}

	wcfg := backend.WorkloadConfig{Sources: sources, Logger: log}
	if meter, err := backend.NewSystemEnergyMeter(); err == nil {
		wcfg.Energy = meter
	} else {
		log.Warn("energy meter unavailable, energy will read 0", slog.String("error", err.Error()))
	}

	w, err := backend.NewWorkload(wcfg)
	if err != nil {
		return nil, "", err
	}
	return w, string(resolved), nil
}

// sinkSet is the export destinations for one command plus what must be
// closed afterwards.
type sinkSet struct {
	sinks   export.MultiSink
	archive *export.Archive
	copied  bool
	closers []func() error
}

// Sink returns the combined sink, or nil when there is none.
func (s *sinkSet) Sink() export.Sink {
	if len(s.sinks) == 0 {
		return nil
	}
	return s.sinks
}

// Close closes every opened destination.
func (s *sinkSet) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sinkOptions selects destinations for buildSinks.
type sinkOptions struct {
	// OutPath writes to one file instead of export.dir.
	OutPath string

	// Archive opens the Badger archive when export.archive_path is set.
	Archive bool

	// Copy adds the clipboard sink. A missing clipboard is logged, not fatal.
	Copy bool
}

// exportOptions resolves the shared run/single export flags against cfg.
func exportOptions(cmd *cobra.Command) sinkOptions {
	copyOut := cfg.Export.Clipboard
	if cmd.Flags().Changed("copy") {
		copyOut = runCopy
	}
	return sinkOptions{OutPath: runOut, Archive: runArchive, Copy: copyOut}
}

// buildSinks opens the configured destinations: a file (OutPath or
// export.dir), the archive, GCS when a bucket is configured, and the
// clipboard when asked.
func buildSinks(ctx context.Context, c config.Config, opts sinkOptions, log *slog.Logger) (*sinkSet, error) {
	set := &sinkSet{}

	switch {
	case opts.OutPath != "":
		set.sinks = append(set.sinks, &export.FileSink{Path: opts.OutPath})
	case c.Export.Dir != "":
		set.sinks = append(set.sinks, &export.FileSink{Dir: c.Export.Dir})
	}

	if opts.Archive && c.Export.ArchivePath != "" {
		a, err := openArchive(c, log)
		if err != nil {
			return nil, err
		}
		set.archive = a
		set.sinks = append(set.sinks, a)
		set.closers = append(set.closers, a.Close)
	}

	if c.Export.GCS.Bucket != "" {
		g, err := export.NewGCSSink(ctx, c.Export.GCS)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		set.sinks = append(set.sinks, g)
		set.closers = append(set.closers, g.Close)
	}

	if opts.Copy {
		cb, err := newClipboardSink()
		if err != nil {
			log.Warn("not copying results", slog.String("error", err.Error()))
		} else {
			set.sinks = append(set.sinks, cb)
			set.copied = true
		}
	}
	return set, nil
}

// newClipboardSink is replaced in tests.
var newClipboardSink = func() (export.Sink, error) { return export.NewClipboardSink() }

func openArchive(c config.Config, log *slog.Logger) (*export.Archive, error) {
	if c.Export.ArchivePath == "" {
		return nil, errors.New("export.archive_path is not configured")
	}
	a, err := export.OpenArchive(export.ArchiveConfig{Path: c.Export.ArchivePath, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return a, nil
}

// resolveBackend picks the flag value over the config value.
func resolveBackend(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Run.Backend
}
