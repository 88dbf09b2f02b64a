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
	"time"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/export"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
)

// Default run parameters applied to omitted request fields.
const (
	DefaultIntervals  = 50
	DefaultIntervalMs = 1000
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRunInProgress      = "RUN_IN_PROGRESS"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeArchiveDisabled    = "ARCHIVE_DISABLED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// StartRunRequest is the body of POST /v1/runs. Every field is optional.
type StartRunRequest struct {
	// Mode is "single" or "multi". Default: "multi".
	Mode string `json:"mode" binding:"omitempty,oneof=single multi"`

	// Workers defaults to 1 in single mode and the logical CPU count in
	// multi mode.
	Workers int `json:"workers" binding:"omitempty,min=1,max=4096"`

	// Intervals defaults to DefaultIntervals.
	Intervals int `json:"intervals" binding:"omitempty,min=1"`

	// IntervalMs is the suspension between samples. Default: DefaultIntervalMs.
	IntervalMs int `json:"interval_ms" binding:"omitempty,min=1"`
}

// StartRunResponse is returned with 202 Accepted.
type StartRunResponse struct {
	RunID  string           `json:"run_id"`
	Mode   string           `json:"mode"`
	Status scheduler.Status `json:"status"`
}

// StatusResponse describes the current or most recent run. The embedded
// status carries the run's mode.
type StatusResponse struct {
	scheduler.Status
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// MetricsResponse carries the per-interval aggregates of the current run.
type MetricsResponse struct {
	RunID     string              `json:"run_id"`
	State     scheduler.State     `json:"state"`
	Intervals []aggregate.Metrics `json:"intervals"`
	Summary   aggregate.Summary   `json:"summary"`
}

// ArchiveListResponse lists archived exports, newest first.
type ArchiveListResponse struct {
	Entries []export.ArchiveEntry `json:"entries"`
	Count   int                   `json:"count"`
}

// StreamMessage is one websocket frame on the progress stream.
//
// Type is "event" for a scheduler event and "status" for a status
// snapshot, which is always the last frame before the server closes.
type StreamMessage struct {
	Type   string            `json:"type"`
	Event  *scheduler.Event  `json:"event,omitempty"`
	Status *scheduler.Status `json:"status,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`
}

// ArchiveExportResponse is one archived export with its CSV body.
type ArchiveExportResponse struct {
	export.ArchiveEntry
	CSV string `json:"csv"`
}
