// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/powerbench/services/bench/telemetry"
)

// ServiceName is the span service name used by the tracing middleware.
const ServiceName = "powerbench"

// RegisterRoutes registers the benchmark routes with the router group.
//
// Description:
//
//	Registers all /v1 endpoints with the given Gin router group. The
//	router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	h - The handlers instance
//
// Run Endpoints:
//
//	POST   /v1/runs                     - Start a run
//	GET    /v1/runs/current             - Current run status
//	DELETE /v1/runs/current             - Cancel the current run
//	GET    /v1/runs/current/metrics     - Per-interval aggregates
//	GET    /v1/runs/current/export.csv  - CSV of the current history
//	GET    /v1/runs/current/stream      - Websocket progress stream
//
// Archive Endpoints:
//
//	GET    /v1/archive                  - List archived exports
//	GET    /v1/archive/:id              - One archived export
//	DELETE /v1/archive/:id              - Delete an archived export
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	runs := rg.Group("/runs")
	{
		runs.POST("", h.HandleStartRun)
		runs.GET("/current", h.HandleGetRun)
		runs.DELETE("/current", h.HandleCancelRun)
		runs.GET("/current/metrics", h.HandleRunMetrics)
		runs.GET("/current/export.csv", h.HandleRunCSV)
		runs.GET("/current/stream", h.HandleRunStream)
	}

	archive := rg.Group("/archive")
	{
		archive.GET("", h.HandleListArchive)
		archive.GET("/:id", h.HandleGetArchive)
		archive.DELETE("/:id", h.HandleDeleteArchive)
	}
}

// NewRouter builds the full engine: recovery and tracing middleware, the
// /v1 routes, /health and the Prometheus /metrics endpoint.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))

	RegisterRoutes(router.Group("/v1"), h)
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	return router
}
