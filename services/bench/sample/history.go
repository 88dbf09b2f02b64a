// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sample

import "sync"

// History is the append-only sequence of interval records for one run.
//
// Description:
//
//	The scheduler is the only writer. Observers read via Snapshot or Len
//	while the run is still appending. A snapshot is bounded by the length
//	observed at call time, so readers never see a partially appended
//	record.
//
// Thread Safety: Safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	records []IntervalRecord
}

// NewHistory creates an empty History with room for capacity records.
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{records: make([]IntervalRecord, 0, capacity)}
}

// Append stores a copy of record as the next interval.
func (h *History) Append(record IntervalRecord) {
	rec := record.Clone()
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
}

// Reset drops all records. Called when a new run starts.
func (h *History) Reset() {
	h.mu.Lock()
	h.records = h.records[:0:0]
	h.mu.Unlock()
}

// Len returns the number of completed intervals.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Snapshot returns the records appended so far.
//
// Outputs:
//
//	[]IntervalRecord - A new slice header over the stored records. Records
//	                   are never mutated after Append, so the caller may
//	                   read them without holding any lock. The caller must
//	                   not modify them.
func (h *History) Snapshot() []IntervalRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]IntervalRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Last returns the most recent record and true, or nil and false when empty.
func (h *History) Last() (IntervalRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return nil, false
	}
	return h.records[len(h.records)-1], true
}
