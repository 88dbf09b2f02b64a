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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/powerbench/services/bench/api"
	"github.com/AleutianAI/powerbench/services/bench/device"
	"github.com/AleutianAI/powerbench/services/bench/export"
	"github.com/AleutianAI/powerbench/services/bench/powermode"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
	"github.com/AleutianAI/powerbench/services/bench/telemetry"
)

// runServe implements "powerbench serve".
//
// Description:
//
//	Wires telemetry, the optional InfluxDB observer, the export sinks and
//	one scheduler behind the HTTP API. On SIGINT/SIGTERM the server shuts
//	down gracefully and any active run is cancelled and exported before
//	the process exits.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logger.Slog()
	gin.SetMode(gin.ReleaseMode)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter(telemetry.TracerName))
	if err != nil {
		return err
	}
	opts := []scheduler.Option{
		scheduler.WithLogger(log),
		scheduler.WithPowerMode(powermode.System()),
		scheduler.WithObserver(telemetry.NewRecorder(metrics, log)),
	}

	if cfg.Influx.Enabled() {
		influx, err := telemetry.NewInfluxSink(cfg.Influx, log)
		if err != nil {
			return err
		}
		defer influx.Close()
		opts = append(opts, scheduler.WithObserver(influx))
	}

	b, source, err := newBackend(cfg.Run.Backend, log)
	if err != nil {
		return err
	}
	sinks, err := buildSinks(ctx, cfg, sinkOptions{Archive: true}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("closing export sinks failed", slog.String("error", err.Error()))
		}
	}()

	mode, err := export.ParseMode(cfg.Run.Mode)
	if err != nil {
		return err
	}
	provider := device.Default()
	exporter := export.NewExporter(mode, provider, sinks.Sink(), log)
	opts = append(opts, scheduler.WithExporter(exporter))

	sched, err := scheduler.New(b, opts...)
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Scheduler: sched,
		Exporter:  exporter,
		Device:    provider,
		Logger:    log,
	}
	if sinks.archive != nil {
		deps.Archive = sinks.archive
	}
	handlers, err := api.NewHandlers(deps)
	if err != nil {
		return err
	}

	srvCfg := cfg.Server
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	server := api.NewServer(srvCfg, api.NewRouter(handlers), log)
	log.Info("serving benchmark API",
		slog.String("addr", srvCfg.Addr),
		slog.String("source", source),
		slog.String("model", device.Resolve(ctx, provider)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
		defer cancel()
		if _, err := sched.Wait(wctx); err != nil {
			return fmt.Errorf("waiting for run to finish: %w", err)
		}
		return nil
	})
	return g.Wait()
}
