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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(InMemoryArchiveConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchive_WriteGetDelete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	exp := Export{
		RunID:     "run-1",
		Mode:      ModeSingle,
		Model:     "Mac14,2",
		Intervals: 1,
		Workers:   1,
		CreatedAt: created,
		Body:      []byte(SingleHeader),
	}
	require.NoError(t, a.Write(ctx, exp))

	got, err := a.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, exp.RunID, got.RunID)
	assert.Equal(t, ModeSingle, got.Mode)
	assert.Equal(t, exp.Model, got.Model)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, exp.Body, got.Body)

	require.NoError(t, a.Delete("run-1"))
	_, err = a.Get("run-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, a.Delete("run-1"), ErrNotFound)
}

func TestArchive_ListNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "newest", "middle"} {
		offset := map[int]time.Duration{0: 0, 1: 2 * time.Hour, 2: time.Hour}[i]
		require.NoError(t, a.Write(ctx, Export{
			RunID:     id,
			CreatedAt: base.Add(offset),
			Workers:   4,
			Body:      []byte("abc"),
		}))
	}

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "newest", entries[0].RunID)
	assert.Equal(t, "middle", entries[1].RunID)
	assert.Equal(t, "old", entries[2].RunID)
	assert.Equal(t, 3, entries[0].Size)
	assert.Equal(t, "multi", entries[0].Mode)
	assert.Equal(t, "2025-06-01T02:00:00Z", entries[0].CreatedAt)
}

func TestArchive_Overwrite(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	require.NoError(t, a.Write(ctx, Export{RunID: "r", Body: []byte("one")}))
	require.NoError(t, a.Write(ctx, Export{RunID: "r", Body: []byte("two")}))

	got, err := a.Get("r")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got.Body))

	entries, err := a.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArchive_Validation(t *testing.T) {
	a := openTestArchive(t)
	err := a.Write(context.Background(), Export{})
	assert.ErrorIs(t, err, ErrInvalidExport)

	_, err = OpenArchive(ArchiveConfig{})
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func TestArchive_Closed(t *testing.T) {
	a, err := OpenArchive(InMemoryArchiveConfig())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Write(context.Background(), Export{RunID: "x"}), ErrArchiveClosed)
	_, err = a.Get("x")
	assert.ErrorIs(t, err, ErrArchiveClosed)
	_, err = a.List()
	assert.ErrorIs(t, err, ErrArchiveClosed)
	assert.ErrorIs(t, a.Delete("x"), ErrArchiveClosed)
}

func TestArchive_OnDiskReopen(t *testing.T) {
	dir := t.TempDir()
	a, err := OpenArchive(ArchiveConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, a.Write(context.Background(), Export{RunID: "persisted", Body: []byte("x")}))
	require.NoError(t, a.Close())

	b, err := OpenArchive(ArchiveConfig{Path: dir})
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got.Body))
}

func TestArchive_AsExporterSink(t *testing.T) {
	a := openTestArchive(t)
	e := NewExporter(ModeMulti, nil, a, nil)
	require.NoError(t, e.ExportRun(context.Background(), "via-exporter", "", twoByTwo()))

	got, err := a.Get("via-exporter")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Intervals)
	assert.Equal(t, "unknown", got.Model)
}
