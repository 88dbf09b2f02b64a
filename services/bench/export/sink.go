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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/powerbench/services/bench/device"
	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidExport is returned for malformed export requests.
	ErrInvalidExport = errors.New("invalid export")

	// ErrNotFound is returned when an archived export does not exist.
	ErrNotFound = errors.New("export not found")

	// ErrArchiveClosed is returned when the archive has been closed.
	ErrArchiveClosed = errors.New("export archive is closed")
)

// -----------------------------------------------------------------------------
// Export
// -----------------------------------------------------------------------------

// Export is one rendered run, ready for delivery.
type Export struct {
	RunID     string    `json:"run_id"`
	Mode      Mode      `json:"mode"`
	Model     string    `json:"model"`
	Intervals int       `json:"intervals"`
	Workers   int       `json:"workers"`
	CreatedAt time.Time `json:"created_at"`
	Body      []byte    `json:"body"`
}

// Filename returns "powerbench_<run id>.csv".
func (e Export) Filename() string {
	return fmt.Sprintf("powerbench_%s.csv", e.RunID)
}

// Sink delivers a rendered export somewhere.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Write delivers exp. Implementations must not retain exp.Body.
	Write(ctx context.Context, exp Export) error
}

// -----------------------------------------------------------------------------
// Writer and File Sinks
// -----------------------------------------------------------------------------

// WriterSink writes the CSV body to an io.Writer such as os.Stdout.
type WriterSink struct {
	W  io.Writer
	mu sync.Mutex
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{W: w}
}

// Name returns "writer".
func (s *WriterSink) Name() string { return "writer" }

// Write copies the body to the writer.
func (s *WriterSink) Write(_ context.Context, exp Export) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.W.Write(exp.Body); err != nil {
		return fmt.Errorf("write export %s: %w", exp.RunID, err)
	}
	return nil
}

// FileSink writes each export to a file.
//
// When Path is set every export overwrites that file. Otherwise the file is
// Dir/Export.Filename().
type FileSink struct {
	Dir  string
	Path string
}

// Name returns "file".
func (s *FileSink) Name() string { return "file" }

// Write creates parent directories as needed and writes the body with 0644.
func (s *FileSink) Write(_ context.Context, exp Export) error {
	path := s.Path
	if path == "" {
		if s.Dir == "" {
			return fmt.Errorf("%w: file sink needs Dir or Path", ErrInvalidExport)
		}
		path = filepath.Join(s.Dir, exp.Filename())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := os.WriteFile(path, exp.Body, 0644); err != nil {
		return fmt.Errorf("write export file %s: %w", path, err)
	}
	return nil
}

// MultiSink writes to every sink, continuing past failures.
type MultiSink []Sink

// Name returns "multi".
func (m MultiSink) Name() string { return "multi" }

// Write returns all sink errors joined, or nil.
func (m MultiSink) Write(ctx context.Context, exp Export) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, exp); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Exporter
// -----------------------------------------------------------------------------

// Exporter renders a run's history and hands it to a sink.
//
// Description:
//
//	Each export is rendered in the mode the run was started with; the
//	Exporter's own mode is only the default for runs that name none. The
//	device model is resolved once per export, at export time. A failing
//	provider yields "unknown" rather than failing the export.
//
// Thread Safety: Safe for concurrent use.
type Exporter struct {
	mode     Mode
	provider device.Provider
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewExporter creates an Exporter.
//
// Inputs:
//
//	mode - Default serializer variant.
//	provider - Device identity source. Nil means "unknown".
//	sink - Destination. Nil makes Build the only useful method.
//	logger - If nil, uses slog.Default().
func NewExporter(mode Mode, provider device.Provider, sink Sink, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		mode:     mode,
		provider: provider,
		sink:     sink,
		logger:   logger.With(slog.String("component", "exporter")),
		now:      time.Now,
	}
}

// Mode returns the default serializer variant.
func (e *Exporter) Mode() Mode {
	return e.mode
}

// ResolveMode parses a run's mode name. Empty yields the default.
func (e *Exporter) ResolveMode(name string) (Mode, error) {
	if name == "" {
		return e.mode, nil
	}
	return ParseMode(name)
}

// Build renders records in mode without delivering them.
func (e *Exporter) Build(ctx context.Context, runID string, mode Mode, records []sample.IntervalRecord) Export {
	model := device.Resolve(ctx, e.provider)
	workers := 0
	if len(records) > 0 {
		workers = len(records[0])
	}
	return Export{
		RunID:     runID,
		Mode:      mode,
		Model:     model,
		Intervals: len(records),
		Workers:   workers,
		CreatedAt: e.now().UTC(),
		Body:      Render(mode, records, model),
	}
}

// ExportRun builds the export in the run's mode and writes it to the sink.
// Called by the scheduler once per run with whatever history was
// collected, complete or partial.
//
// Outputs:
//
//	error - ErrInvalidExport for an unknown mode name, or the sink's error.
func (e *Exporter) ExportRun(ctx context.Context, runID, mode string, records []sample.IntervalRecord) error {
	m, err := e.ResolveMode(mode)
	if err != nil {
		return err
	}
	exp := e.Build(ctx, runID, m, records)
	if e.sink == nil {
		return nil
	}
	if err := e.sink.Write(ctx, exp); err != nil {
		e.logger.Error("export failed",
			slog.String("run_id", runID),
			slog.String("sink", e.sink.Name()),
			slog.String("error", err.Error()))
		return err
	}
	e.logger.Info("export written",
		slog.String("run_id", runID),
		slog.String("sink", e.sink.Name()),
		slog.Int("intervals", exp.Intervals),
		slog.Int("bytes", len(exp.Body)))
	return nil
}
