// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the powerbench yaml configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/powerbench/pkg/logging"
	"github.com/AleutianAI/powerbench/services/bench/api"
	"github.com/AleutianAI/powerbench/services/bench/backend"
	"github.com/AleutianAI/powerbench/services/bench/export"
	"github.com/AleutianAI/powerbench/services/bench/telemetry"
)

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid config")

// BackendSimulated selects the deterministic simulated backend instead of a
// counter source.
const BackendSimulated = "sim"

// Config is the whole powerbench configuration file.
type Config struct {
	// Run: defaults for the run and single commands
	Run RunConfig `yaml:"run"`

	// Export: where finished runs are written
	Export ExportConfig `yaml:"export"`

	// Telemetry: OTel exporters used by serve
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Influx: optional per-interval points, enabled when url is set
	Influx telemetry.InfluxConfig `yaml:"influx"`

	Logging LoggingConfig `yaml:"logging"`

	Server api.ServerConfig `yaml:"server"`
}

// RunConfig holds run defaults. Flags override every field.
type RunConfig struct {
	Mode      string        `yaml:"mode"`      // single or multi
	Workers   int           `yaml:"workers"`   // 0 picks by mode
	Intervals int           `yaml:"intervals"` // e.g. 50
	Interval  time.Duration `yaml:"interval"`  // e.g. 1s
	Backend   string        `yaml:"backend"`   // auto, perf, clock or sim
}

// ExportConfig configures CSV destinations.
type ExportConfig struct {
	// Dir receives powerbench_{run_id}.csv files. Empty disables the file sink.
	Dir string `yaml:"dir"`

	// ArchivePath is the Badger directory. Empty disables the archive.
	ArchivePath string `yaml:"archive_path"`

	// GCS uploads exports when Bucket is set.
	GCS export.GCSConfig `yaml:"gcs"`

	// Clipboard copies each CLI export to the system clipboard. The --copy
	// flag overrides it.
	Clipboard bool `yaml:"clipboard"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	tel := telemetry.DefaultConfig()
	tel.MetricExporter = "prometheus"
	tel.TraceExporter = "none"

	server := api.ServerConfig{}
	server.ApplyDefaults()

	return Config{
		Run: RunConfig{
			Mode:      export.ModeMulti.String(),
			Workers:   0,
			Intervals: 50,
			Interval:  time.Second,
			Backend:   string(backend.SourceAuto),
		},
		Export: ExportConfig{
			Dir:         "~/.powerbench/exports",
			ArchivePath: "~/.powerbench/archive",
		},
		Telemetry: tel,
		Logging:   LoggingConfig{Level: "info"},
		Server:    server,
	}
}

// ApplyDefaults fills fields left empty by a partial file.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Run.Mode == "" {
		c.Run.Mode = d.Run.Mode
	}
	if c.Run.Intervals == 0 {
		c.Run.Intervals = d.Run.Intervals
	}
	if c.Run.Interval == 0 {
		c.Run.Interval = d.Run.Interval
	}
	if c.Run.Backend == "" {
		c.Run.Backend = d.Run.Backend
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	c.Server.ApplyDefaults()
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	if _, err := export.ParseMode(c.Run.Mode); err != nil {
		return fmt.Errorf("%w: run.mode: %w", ErrInvalidConfig, err)
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("%w: run.workers must be >= 0", ErrInvalidConfig)
	}
	if c.Run.Intervals < 1 {
		return fmt.Errorf("%w: run.intervals must be >= 1", ErrInvalidConfig)
	}
	if c.Run.Interval <= 0 {
		return fmt.Errorf("%w: run.interval must be > 0", ErrInvalidConfig)
	}
	if !IsSimulated(c.Run.Backend) {
		if _, err := backend.ParseSourceKind(c.Run.Backend); err != nil {
			return fmt.Errorf("%w: run.backend: %w", ErrInvalidConfig, err)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
	}
	if c.Influx.Enabled() {
		if err := c.Influx.Validate(); err != nil {
			return fmt.Errorf("%w: influx: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// IsSimulated reports whether name selects the simulated backend.
func IsSimulated(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), BackendSimulated)
}

// LoggingOptions converts the logging section for logging.New.
func (c LoggingConfig) LoggingOptions(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Dir,
		Service: service,
		JSON:    c.JSON,
	}
}
