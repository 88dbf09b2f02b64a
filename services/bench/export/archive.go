// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// archiveKeyPrefix namespaces export records in the database.
const archiveKeyPrefix = "export/"

// ArchiveConfig configures the Badger-backed export archive.
type ArchiveConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives Badger's internal logs. Nil silences them.
	Logger *slog.Logger
}

// InMemoryArchiveConfig returns a config suitable for tests.
func InMemoryArchiveConfig() ArchiveConfig {
	return ArchiveConfig{InMemory: true}
}

// ArchiveEntry is the metadata of an archived export, without its body.
type ArchiveEntry struct {
	RunID     string `json:"run_id"`
	Mode      string `json:"mode"`
	Model     string `json:"model"`
	Intervals int    `json:"intervals"`
	Workers   int    `json:"workers"`
	CreatedAt string `json:"created_at"`
	Size      int    `json:"size"`
}

// Archive stores rendered exports in BadgerDB keyed by run ID.
//
// Archive implements Sink so it can sit behind an Exporter alongside the
// file sink.
//
// Thread Safety: Safe for concurrent use.
type Archive struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenArchive opens (creating if needed) the export archive.
//
// Outputs:
//
//	*Archive - The opened archive. Caller must Close it.
//	error - Non-nil if Path is missing or Badger cannot open.
func OpenArchive(cfg ArchiveConfig) (*Archive, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: archive path is required", ErrInvalidExport)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create archive directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With(slog.String("component", "archive"))})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open export archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Name returns "archive".
func (a *Archive) Name() string { return "archive" }

// Write stores exp under its run ID, replacing any previous export.
func (a *Archive) Write(_ context.Context, exp Export) error {
	if exp.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidExport)
	}
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrArchiveClosed
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(archiveKey(exp.RunID), data)
	})
}

// Get returns the archived export for runID, or ErrNotFound.
func (a *Archive) Get(runID string) (Export, error) {
	var exp Export

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return exp, ErrArchiveClosed
	}
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(archiveKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &exp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return exp, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return exp, fmt.Errorf("read export %s: %w", runID, err)
	}
	return exp, nil
}

// List returns metadata for every archived export, newest first.
func (a *Archive) List() ([]ArchiveEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrArchiveClosed
	}

	var entries []ArchiveEntry
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(archiveKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var exp Export
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &exp)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, ArchiveEntry{
				RunID:     exp.RunID,
				Mode:      exp.Mode.String(),
				Model:     exp.Model,
				Intervals: exp.Intervals,
				Workers:   exp.Workers,
				CreatedAt: exp.CreatedAt.UTC().Format(time.RFC3339),
				Size:      len(exp.Body),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// RFC 3339 in UTC sorts lexically.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
	return entries, nil
}

// Delete removes the export for runID, or returns ErrNotFound.
func (a *Archive) Delete(runID string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrArchiveClosed
	}
	return a.db.Update(func(txn *badger.Txn) error {
		key := archiveKey(runID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, runID)
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Close closes the database. Further calls return ErrArchiveClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func archiveKey(runID string) []byte {
	return []byte(archiveKeyPrefix + runID)
}
