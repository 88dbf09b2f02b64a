// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/sample"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
)

// Recorder is a scheduler.Observer that records each interval's aggregate
// into OTel instruments and wraps each run in a span.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	metrics *Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewRecorder creates a Recorder over m. A nil logger uses slog.Default().
func NewRecorder(m *Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		metrics: m,
		logger:  logger.With(slog.String("component", "recorder")),
		spans:   make(map[string]trace.Span),
	}
}

// RunStarted opens the run span.
func (r *Recorder) RunStarted(ctx context.Context, runID string, cfg scheduler.RunConfig) {
	_, span := StartSpan(ctx, TracerName, "powerbench.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("workers", cfg.Workers),
			attribute.Int("intervals", cfg.Intervals),
			attribute.String("interval", cfg.Interval.String()),
		))
	r.mu.Lock()
	r.spans[runID] = span
	r.mu.Unlock()
}

// IntervalSampled records m and adds a span event.
func (r *Recorder) IntervalSampled(ctx context.Context, runID string, index int, record sample.IntervalRecord, m aggregate.Metrics) {
	mode := sample.PowerModeHigh
	if len(record) > 0 {
		mode = record[0].PowerMode()
	}
	attrs := metric.WithAttributes(attribute.String("power_mode", mode))

	r.metrics.IntervalsTotal.Add(ctx, 1, attrs)
	if m.PFrequencyGHz > 0 {
		r.metrics.PFrequency.Record(ctx, m.PFrequencyGHz, attrs)
	}
	if m.EFrequencyGHz > 0 {
		r.metrics.EFrequency.Record(ctx, m.EFrequencyGHz, attrs)
	}
	r.metrics.CombinedPower.Record(ctx, m.CombinedPowerW, attrs)
	r.metrics.Throughput.Record(ctx, m.Throughput, attrs)

	r.mu.Lock()
	span := r.spans[runID]
	r.mu.Unlock()
	if span != nil {
		span.AddEvent("interval", trace.WithAttributes(
			attribute.Int("index", index),
			attribute.Float64("p_ghz", m.PFrequencyGHz),
			attribute.Float64("e_ghz", m.EFrequencyGHz),
			attribute.Float64("power_w", m.CombinedPowerW),
		))
	}
}

// RunFinished counts the run and ends its span.
func (r *Recorder) RunFinished(ctx context.Context, st scheduler.Status) {
	r.metrics.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", st.State.String())))

	r.mu.Lock()
	span := r.spans[st.RunID]
	delete(r.spans, st.RunID)
	r.mu.Unlock()
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String("state", st.State.String()),
		attribute.Int("completed", st.Completed),
	)
	LoggerWithTrace(trace.ContextWithSpan(ctx, span), r.logger).Info("run recorded",
		slog.String("run_id", st.RunID),
		slog.String("state", st.State.String()),
		slog.Int("completed", st.Completed))
	if st.State == scheduler.StateFailed {
		RecordError(span, errors.New(st.Err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ scheduler.Observer = (*Recorder)(nil)
