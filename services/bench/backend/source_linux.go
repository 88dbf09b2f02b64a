// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build linux

package backend

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/AleutianAI/powerbench/services/bench/sample"
)

// Hybrid Intel parts expose one PMU per core type. A cycles event opened on
// a core-type PMU only counts, and only accrues time_running, while the
// thread is scheduled on that core type.
const (
	pmuCorePath = "/sys/bus/event_source/devices/cpu_core/type"
	pmuAtomPath = "/sys/bus/event_source/devices/cpu_atom/type"

	// perfPMUTypeShift places a PMU type in the upper half of a
	// PERF_TYPE_HARDWARE config (extended hardware event encoding).
	perfPMUTypeShift = 32

	// perfReadSize is value + time_enabled + time_running.
	perfReadSize = 24
)

// -----------------------------------------------------------------------------
// perf_event_open Source
// -----------------------------------------------------------------------------

type perfCounter struct {
	fd int
}

// openPerfCycles opens a cycles counter for the calling thread on any CPU.
// pmuType 0 selects the generic hardware PMU.
func openPerfCycles(pmuType uint32) (*perfCounter, error) {
	attr := unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_HARDWARE,
		Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config:      uint64(pmuType)<<perfPMUTypeShift | unix.PERF_COUNT_HW_CPU_CYCLES,
		Read_format: unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_TOTAL_TIME_RUNNING,
		Bits:        unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
	}
	fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: perf_event_open(pmu=%d): %v", ErrPerfUnavailable, pmuType, err)
	}
	return &perfCounter{fd: fd}, nil
}

// read returns the raw count and the nanoseconds the counter was running.
func (c *perfCounter) read() (count, runningNs uint64, err error) {
	var buf [perfReadSize]byte
	n, err := unix.Read(c.fd, buf[:])
	if err != nil {
		return 0, 0, fmt.Errorf("read perf counter: %w", err)
	}
	if n != perfReadSize {
		return 0, 0, fmt.Errorf("read perf counter: short read %d", n)
	}
	count = binary.NativeEndian.Uint64(buf[0:8])
	runningNs = binary.NativeEndian.Uint64(buf[16:24])
	return count, runningNs, nil
}

func (c *perfCounter) close() error {
	return unix.Close(c.fd)
}

// perfSource reads P-core and (on hybrid parts) E-core cycle counters.
// On non-hybrid parts everything is attributed to P-cores.
type perfSource struct {
	p *perfCounter
	e *perfCounter
}

func (s *perfSource) Read() (sample.CounterSample, sample.CounterSample, error) {
	var p, e sample.CounterSample
	cycles, running, err := s.p.read()
	if err != nil {
		return p, e, err
	}
	p = sample.CounterSample{Cycles: float64(cycles), Time: float64(running) / 1e9}
	if s.e != nil {
		cycles, running, err = s.e.read()
		if err != nil {
			return p, e, err
		}
		e = sample.CounterSample{Cycles: float64(cycles), Time: float64(running) / 1e9}
	}
	return p, e, nil
}

func (s *perfSource) Close() error {
	err := s.p.close()
	if s.e != nil {
		if eerr := s.e.close(); err == nil {
			err = eerr
		}
	}
	return err
}

// hybridPMUs returns the P-core and E-core PMU types, ok=false when the CPU
// is not hybrid.
func hybridPMUs() (pType, eType uint32, ok bool) {
	pType, perr := readUint32File(pmuCorePath)
	eType, eerr := readUint32File(pmuAtomPath)
	if perr != nil || eerr != nil {
		return 0, 0, false
	}
	return pType, eType, true
}

func newPerfSourceFactory() SourceFactory {
	pType, eType, hybrid := hybridPMUs()
	return func(int) (CounterSource, error) {
		if !hybrid {
			p, err := openPerfCycles(0)
			if err != nil {
				return nil, err
			}
			return &perfSource{p: p}, nil
		}
		p, err := openPerfCycles(pType)
		if err != nil {
			return nil, err
		}
		e, err := openPerfCycles(eType)
		if err != nil {
			_ = p.close()
			return nil, err
		}
		return &perfSource{p: p, e: e}, nil
	}
}

// checkPerf opens and closes a counter on the calling thread.
func checkPerf() error {
	c, err := openPerfCycles(0)
	if err != nil {
		return err
	}
	return c.close()
}

// -----------------------------------------------------------------------------
// schedstat Source
// -----------------------------------------------------------------------------

// schedstatSource reads a thread's on-CPU time from
// /proc/self/task/<tid>/schedstat and estimates cycles from a nominal
// frequency. Used when perf is not permitted.
type schedstatSource struct {
	path   string
	freqHz float64
	base   float64
}

func newSchedstatSourceFactory(freqHz float64) SourceFactory {
	if freqHz <= 0 {
		freqHz = NominalFrequencyHz()
	}
	return func(tid int) (CounterSource, error) {
		s := &schedstatSource{
			path:   fmt.Sprintf("/proc/self/task/%d/schedstat", tid),
			freqHz: freqHz,
		}
		base, err := s.onCPUSeconds()
		if err != nil {
			return nil, err
		}
		s.base = base
		return s, nil
	}
}

func (s *schedstatSource) onCPUSeconds() (float64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read schedstat: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("read schedstat: empty %s", s.path)
	}
	ns, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse schedstat: %w", err)
	}
	return float64(ns) / 1e9, nil
}

func (s *schedstatSource) Read() (sample.CounterSample, sample.CounterSample, error) {
	secs, err := s.onCPUSeconds()
	if err != nil {
		return sample.CounterSample{}, sample.CounterSample{}, err
	}
	t := secs - s.base
	return sample.CounterSample{Cycles: t * s.freqHz, Time: t}, sample.CounterSample{}, nil
}

func (s *schedstatSource) Close() error { return nil }

// -----------------------------------------------------------------------------
// Platform Hooks
// -----------------------------------------------------------------------------

// NewSourceFactory returns the factory for kind, resolving SourceAuto by
// probing perf on the calling thread.
//
// Outputs:
//
//	SourceFactory - Factory for worker threads.
//	SourceKind - The kind actually selected (never SourceAuto).
//	error - ErrPerfUnavailable when kind is SourcePerf and perf cannot be opened.
func NewSourceFactory(kind SourceKind) (SourceFactory, SourceKind, error) {
	switch kind {
	case SourcePerf:
		if err := checkPerf(); err != nil {
			return nil, "", err
		}
		return newPerfSourceFactory(), SourcePerf, nil
	case SourceClock:
		return newSchedstatSourceFactory(0), SourceClock, nil
	default:
		if checkPerf() == nil {
			return newPerfSourceFactory(), SourcePerf, nil
		}
		return newSchedstatSourceFactory(0), SourceClock, nil
	}
}

func currentThreadID() int {
	return unix.Gettid()
}

func readUint32File(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
