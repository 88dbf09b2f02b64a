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
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/sample"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
)

// =============================================================================
// Init
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	assert.Equal(t, "powerbench", cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	assert.Equal(t, "stdout", DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_OTLPConnectsLazily(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := DefaultConfig()
	cfg.TraceExporter = "otlp"
	cfg.MetricExporter = "none"
	cfg.OTLPEndpoint = "127.0.0.1:1"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// No spans were exported, so shutdown only tears down the connection.
	_ = shutdown(ctx)
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []struct {
		name  string
		trace string
		mets  string
	}{
		{"trace", "zipkin", "none"},
		{"metric", "none", "graphite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TraceExporter = tt.trace
			cfg.MetricExporter = tt.mets
			_, err := Init(context.Background(), cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnknownExporter)
			assert.Contains(t, err.Error(), "unknown exporter type")
		})
	}
}

func TestInit_PrometheusHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	counter, err := otel.Meter("telemetry_test").Int64Counter("telemetry_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	handler := MetricsHandler()
	require.NotNil(t, handler)
	assert.Same(t, handler, MetricsHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "telemetry_test_total")
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LoggerWithTrace(context.Background(), logger).Info("no span")
	assert.NotContains(t, buf.String(), "trace_id")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("t").Start(context.Background(), "op")
	defer span.End()

	buf.Reset()
	LoggerWithTrace(ctx, logger).Info("with span")
	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())

	assert.NotNil(t, LoggerWithTrace(ctx, nil))
}

// =============================================================================
// Recorder
// =============================================================================

func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func histogramCount(rm metricdata.ResourceMetrics, name string) uint64 {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok {
				var n uint64
				for _, dp := range h.DataPoints {
					n += dp.Count
				}
				return n
			}
		}
	}
	return 0
}

func TestRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	var logs bytes.Buffer
	r := NewRecorder(m, slog.New(slog.NewJSONHandler(&logs, nil)))
	ctx := context.Background()

	r.RunStarted(ctx, "run-1", scheduler.RunConfig{Workers: 2, Intervals: 3, Interval: time.Second})
	rec := sample.IntervalRecord{{PCore: sample.CounterSample{Cycles: 3e9, Time: 1, Energy: 2}}}
	for i := 0; i < 3; i++ {
		r.IntervalSampled(ctx, "run-1", i, rec, aggregate.Aggregate(rec))
	}
	r.RunFinished(ctx, scheduler.Status{RunID: "run-1", State: scheduler.StateCompleted, Completed: 3})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(3), sumInt64(t, rm, "powerbench_intervals_total"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "powerbench_runs_total"))
	assert.Equal(t, uint64(3), histogramCount(rm, "powerbench_p_core_frequency_ghz"))
	assert.Equal(t, uint64(0), histogramCount(rm, "powerbench_e_core_frequency_ghz"))
	assert.Equal(t, uint64(3), histogramCount(rm, "powerbench_combined_power_watts"))

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "powerbench.run", ended[0].Name())
	assert.Len(t, ended[0].Events(), 3)
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	assert.Contains(t, logs.String(), `"msg":"run recorded"`)
	assert.Contains(t, logs.String(), `"trace_id":"`+ended[0].SpanContext().TraceID().String()+`"`)
}

func TestRecorder_FailedRunMarksSpan(t *testing.T) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	defer mp.Shutdown(context.Background())
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	r := NewRecorder(m, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.RunStarted(context.Background(), "r", scheduler.RunConfig{Workers: 1, Intervals: 1, Interval: time.Second})
	r.RunFinished(context.Background(), scheduler.Status{RunID: "r", State: scheduler.StateFailed, Err: "boom"})
	// Unknown run IDs are ignored.
	r.RunFinished(context.Background(), scheduler.Status{RunID: "other", State: scheduler.StateCompleted})

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

// =============================================================================
// InfluxSink
// =============================================================================

func TestInfluxConfig_Validate(t *testing.T) {
	assert.False(t, InfluxConfig{}.Enabled())
	assert.Error(t, InfluxConfig{URL: "http://x"}.Validate())
	assert.NoError(t, InfluxConfig{URL: "http://x", Org: "o", Bucket: "b"}.Validate())

	_, err := NewInfluxSink(InfluxConfig{}, nil)
	assert.Error(t, err)
}

func TestInfluxSink_WritesLineProtocol(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		query  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		query = r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "t", Org: "lab", Bucket: "bench"}, nil)
	require.NoError(t, err)
	defer sink.Close()

	rec := sample.IntervalRecord{
		{PCore: sample.CounterSample{Cycles: 3e9, Time: 1, Energy: 2}, WorkDone: 5, LowPower: true},
		{ECore: sample.CounterSample{Cycles: 2e9, Time: 1, Energy: 1}, WorkDone: 5, LowPower: true},
	}
	sink.RunStarted(context.Background(), "r1", scheduler.RunConfig{})
	sink.IntervalSampled(context.Background(), "r1", 0, rec, aggregate.Aggregate(rec))
	sink.RunFinished(context.Background(), scheduler.Status{})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	line := bodies[0]
	assert.True(t, strings.HasPrefix(line, DefaultMeasurement+","), line)
	assert.Contains(t, line, "run_id=r1")
	assert.Contains(t, line, "power_mode=low")
	assert.Contains(t, line, "workers=2")
	assert.Contains(t, line, "combined_power_w=")
	assert.Contains(t, line, "p_frequency_ghz=3")
	assert.Contains(t, line, "total_work=10i")
	assert.Contains(t, query, "org=lab")
	assert.Contains(t, query, "bucket=bench")
}

func TestInfluxSink_WriteErrorIsAbsorbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sink, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Org: "o", Bucket: "b"}, logger)
	require.NoError(t, err)
	defer sink.Close()

	sink.IntervalSampled(context.Background(), "r", 0, nil, aggregate.Metrics{})
	assert.Contains(t, logs.String(), "influx write failed")
}
