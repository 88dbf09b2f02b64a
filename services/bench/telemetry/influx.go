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
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/sample"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
)

// DefaultMeasurement is the InfluxDB measurement for interval points.
const DefaultMeasurement = "powerbench_interval"

// InfluxConfig configures the InfluxDB observer.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Enabled reports whether a URL is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// Validate checks required fields.
func (c InfluxConfig) Validate() error {
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return errors.New("influx url, org and bucket are required")
	}
	return nil
}

// InfluxSink is a scheduler.Observer that writes one point per interval.
//
// Description:
//
//	Points carry run_id and power_mode tags and the interval's aggregate
//	as fields. Writes are blocking and errors are logged, never returned
//	to the scheduler: losing a point must not fail a benchmark run.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	logger      *slog.Logger
	now         func() time.Time
}

// NewInfluxSink connects a blocking write API for cfg.Org/cfg.Bucket.
func NewInfluxSink(cfg InfluxConfig, logger *slog.Logger) (*InfluxSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		logger:      logger.With(slog.String("component", "influx")),
		now:         time.Now,
	}, nil
}

// RunStarted is a no-op.
func (s *InfluxSink) RunStarted(context.Context, string, scheduler.RunConfig) {}

// IntervalSampled writes the interval point.
func (s *InfluxSink) IntervalSampled(ctx context.Context, runID string, index int, record sample.IntervalRecord, m aggregate.Metrics) {
	mode := sample.PowerModeHigh
	if len(record) > 0 {
		mode = record[0].PowerMode()
	}
	p := influxdb2.NewPointWithMeasurement(s.measurement).
		AddTag("run_id", runID).
		AddTag("power_mode", mode).
		AddTag("workers", strconv.Itoa(len(record))).
		AddField("interval", index).
		AddField("p_frequency_ghz", m.PFrequencyGHz).
		AddField("e_frequency_ghz", m.EFrequencyGHz).
		AddField("combined_power_w", m.CombinedPowerW).
		AddField("throughput", m.Throughput).
		AddField("total_work", int64(m.TotalWork)).
		AddField("total_time", m.TotalTime).
		SetTime(s.now())

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.logger.Warn("influx write failed",
			slog.String("run_id", runID),
			slog.Int("interval", index),
			slog.String("error", err.Error()))
	}
}

// RunFinished is a no-op.
func (s *InfluxSink) RunFinished(context.Context, scheduler.Status) {}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

var _ scheduler.Observer = (*InfluxSink)(nil)
