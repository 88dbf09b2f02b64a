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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/powerbench/services/bench/aggregate"
	"github.com/AleutianAI/powerbench/services/bench/backend"
	"github.com/AleutianAI/powerbench/services/bench/device"
	"github.com/AleutianAI/powerbench/services/bench/export"
	"github.com/AleutianAI/powerbench/services/bench/scheduler"
	"github.com/AleutianAI/powerbench/services/bench/telemetry"
)

// ErrNilScheduler is returned by NewHandlers without a scheduler.
var ErrNilScheduler = errors.New("scheduler must not be nil")

// ArchiveStore is the read side of export.Archive used by the archive
// endpoints.
type ArchiveStore interface {
	List() ([]export.ArchiveEntry, error)
	Get(runID string) (export.Export, error)
	Delete(runID string) error
}

// Dependencies wires Handlers to the benchmark components.
type Dependencies struct {
	// Scheduler runs benchmarks. Required.
	Scheduler *scheduler.Scheduler

	// Exporter is the scheduler's exporter. Its default mode labels runs
	// that name none. Optional.
	Exporter *export.Exporter

	// Archive backs /v1/archive. Optional; endpoints return 503 without it.
	Archive ArchiveStore

	// Device labels on-demand CSV downloads. Default: device.Default().
	Device device.Provider

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handlers contains the HTTP handlers for the benchmark API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	sched    *scheduler.Scheduler
	exporter *export.Exporter
	archive  ArchiveStore
	device   device.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandlers creates handlers over deps.
//
// Outputs:
//
//	*Handlers - Ready handlers.
//	error - ErrNilScheduler if deps.Scheduler is nil.
func NewHandlers(deps Dependencies) (*Handlers, error) {
	if deps.Scheduler == nil {
		return nil, ErrNilScheduler
	}
	if deps.Device == nil {
		deps.Device = device.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{
		sched:    deps.Scheduler,
		exporter: deps.Exporter,
		archive:  deps.Archive,
		device:   deps.Device,
		logger:   deps.Logger.With(slog.String("component", "api")),
		now:      time.Now,
	}, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// =============================================================================
// Runs
// =============================================================================

// HandleStartRun starts a run.
//
// POST /v1/runs
//
// Responses:
//
//	202 - StartRunResponse
//	400 - Invalid request body
//	409 - A run is already active
//	503 - The backend could not start its workers
func (h *Handlers) HandleStartRun(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}

	mode := export.ModeMulti
	if req.Mode == export.ModeSingle.String() {
		mode = export.ModeSingle
	}
	cfg := scheduler.RunConfig{
		Workers:   req.Workers,
		Intervals: req.Intervals,
		Interval:  time.Duration(req.IntervalMs) * time.Millisecond,
		Mode:      mode.String(),
	}
	if cfg.Workers == 0 {
		cfg.Workers = backend.DefaultWorkers(mode == export.ModeMulti)
	}
	if cfg.Intervals == 0 {
		cfg.Intervals = DefaultIntervals
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultIntervalMs * time.Millisecond
	}

	if h.sched.Status().State == scheduler.StateRunning {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: scheduler.ErrRunInProgress.Error(),
			Code:  CodeRunInProgress,
		})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	runID, err := h.sched.Start(c.Request.Context(), cfg)
	if err != nil {
		h.writeStartError(c, err)
		return
	}

	telemetry.LoggerWithTrace(c.Request.Context(), h.logger).Info("run accepted",
		slog.String("run_id", runID),
		slog.String("mode", mode.String()),
		slog.Int("workers", cfg.Workers))

	c.JSON(http.StatusAccepted, StartRunResponse{
		RunID:  runID,
		Mode:   mode.String(),
		Status: h.sched.Status(),
	})
}

func (h *Handlers) writeStartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeRunInProgress})
	case errors.Is(err, scheduler.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
	case errors.Is(err, scheduler.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: CodeBackendUnavailable})
	default:
		telemetry.LoggerWithTrace(c.Request.Context(), h.logger).Error("start run failed",
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
	}
}

// HandleGetRun returns the current or most recent run's status.
//
// GET /v1/runs/current
func (h *Handlers) HandleGetRun(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusResponse())
}

// HandleCancelRun cancels the active run. Cancelling an idle or finished
// run is not an error.
//
// DELETE /v1/runs/current
func (h *Handlers) HandleCancelRun(c *gin.Context) {
	h.sched.Cancel()
	c.JSON(http.StatusOK, h.statusResponse())
}

func (h *Handlers) statusResponse() StatusResponse {
	st := h.sched.Status()
	return StatusResponse{
		Status:         st,
		ElapsedSeconds: st.Elapsed(h.now()).Seconds(),
	}
}

// runMode is the export variant of the run described by st.
func (h *Handlers) runMode(st scheduler.Status) export.Mode {
	if h.exporter != nil {
		if m, err := h.exporter.ResolveMode(st.Mode); err == nil {
			return m
		}
	}
	m, _ := export.ParseMode(st.Mode)
	return m
}

// HandleRunMetrics returns per-interval aggregates and a summary.
//
// GET /v1/runs/current/metrics
func (h *Handlers) HandleRunMetrics(c *gin.Context) {
	st := h.sched.Status()
	records := h.sched.History()
	intervals := aggregate.AggregateHistory(records)
	if intervals == nil {
		intervals = []aggregate.Metrics{}
	}
	c.JSON(http.StatusOK, MetricsResponse{
		RunID:     st.RunID,
		State:     st.State,
		Intervals: intervals,
		Summary:   aggregate.Summarize(records),
	})
}

// HandleRunCSV renders the current history as CSV. Partial histories of
// running or cancelled runs are allowed.
//
// GET /v1/runs/current/export.csv
func (h *Handlers) HandleRunCSV(c *gin.Context) {
	st := h.sched.Status()
	model := device.Resolve(c.Request.Context(), h.device)
	body := export.Render(h.runMode(st), h.sched.History(), model)

	name := export.Export{RunID: st.RunID}.Filename()
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

// HandleRunStream upgrades to a websocket and pushes progress.
//
// GET /v1/runs/current/stream
//
// Description:
//
//	While a run is active every scheduler Event is forwarded as an "event"
//	frame. When the run ends, or when no run is active at connect time, a
//	final "status" frame is sent and the server closes the connection.
//	Events dropped because the client is slow are not replayed.
func (h *Handlers) HandleRunStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	// Subscribe before reading the state so a run finishing in between
	// still closes our channel.
	events, unsubscribe := h.sched.Subscribe()
	defer unsubscribe()

	if st := h.sched.Status(); st.State != scheduler.StateRunning {
		h.closeStream(ws, st)
		return
	}

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				h.closeStream(ws, h.sched.Status())
				return
			}
			if err := sendJSON(ws, StreamMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handlers) closeStream(ws *websocket.Conn, st scheduler.Status) {
	if err := sendJSON(ws, StreamMessage{Type: "status", Status: &st}); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, st.State.String())
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// =============================================================================
// Archive
// =============================================================================

// HandleListArchive lists archived exports.
//
// GET /v1/archive
func (h *Handlers) HandleListArchive(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}
	entries, err := h.archive.List()
	if err != nil {
		h.writeArchiveError(c, err)
		return
	}
	if entries == nil {
		entries = []export.ArchiveEntry{}
	}
	c.JSON(http.StatusOK, ArchiveListResponse{Entries: entries, Count: len(entries)})
}

// HandleGetArchive returns one archived export. With ?format=csv the raw
// CSV is returned as an attachment.
//
// GET /v1/archive/:id
func (h *Handlers) HandleGetArchive(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}
	exp, err := h.archive.Get(c.Param("id"))
	if err != nil {
		h.writeArchiveError(c, err)
		return
	}
	if c.Query("format") == "csv" {
		c.Header("Content-Disposition", `attachment; filename="`+exp.Filename()+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", exp.Body)
		return
	}
	c.JSON(http.StatusOK, ArchiveExportResponse{
		ArchiveEntry: export.ArchiveEntry{
			RunID:     exp.RunID,
			Mode:      exp.Mode.String(),
			Model:     exp.Model,
			Intervals: exp.Intervals,
			Workers:   exp.Workers,
			CreatedAt: exp.CreatedAt.UTC().Format(time.RFC3339),
			Size:      len(exp.Body),
		},
		CSV: string(exp.Body),
	})
}

// HandleDeleteArchive removes one archived export.
//
// DELETE /v1/archive/:id
func (h *Handlers) HandleDeleteArchive(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}
	if err := h.archive.Delete(c.Param("id")); err != nil {
		h.writeArchiveError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) requireArchive(c *gin.Context) bool {
	if h.archive != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: "export archive is not configured",
		Code:  CodeArchiveDisabled,
	})
	return false
}

func (h *Handlers) writeArchiveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, export.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, export.ErrArchiveClosed):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: CodeArchiveDisabled})
	default:
		telemetry.LoggerWithTrace(c.Request.Context(), h.logger).Error("archive request failed",
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
	}
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth reports liveness and the scheduler state.
//
// GET /health
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		State:     h.sched.Status().State.String(),
		Timestamp: h.now().UTC(),
	})
}
