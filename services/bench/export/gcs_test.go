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
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (o *fakeObject) Close() error {
	o.closed = true
	return o.closeErr
}

func newFakeGCS(cfg GCSConfig) (*GCSSink, map[string]*fakeObject) {
	objects := map[string]*fakeObject{}
	s := &GCSSink{cfg: cfg}
	s.open = func(_ context.Context, name string, _ Export) io.WriteCloser {
		o := &fakeObject{}
		objects[name] = o
		return o
	}
	return s, objects
}

func TestGCSSink_ObjectName(t *testing.T) {
	s, _ := newFakeGCS(GCSConfig{Bucket: "b"})
	assert.Equal(t, "powerbench_r.csv", s.ObjectName(Export{RunID: "r"}))

	s, _ = newFakeGCS(GCSConfig{Bucket: "b", Prefix: "bench/runs/"})
	assert.Equal(t, "bench/runs/powerbench_r.csv", s.ObjectName(Export{RunID: "r"}))
}

func TestGCSSink_Write(t *testing.T) {
	s, objects := newFakeGCS(GCSConfig{Bucket: "b", Prefix: "p"})
	require.NoError(t, s.Write(context.Background(), Export{RunID: "r", Body: []byte("csv")}))

	obj, ok := objects["p/powerbench_r.csv"]
	require.True(t, ok)
	assert.Equal(t, "csv", obj.String())
	assert.True(t, obj.closed)
	assert.Equal(t, "gcs", s.Name())
	assert.NoError(t, s.Close())
}

func TestGCSSink_FinalizeError(t *testing.T) {
	s := &GCSSink{cfg: GCSConfig{Bucket: "b"}}
	s.open = func(context.Context, string, Export) io.WriteCloser {
		return &fakeObject{closeErr: errors.New("precondition failed")}
	}
	err := s.Write(context.Background(), Export{RunID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gs://b/powerbench_r.csv")
}

func TestNewGCSSink_Validation(t *testing.T) {
	_, err := NewGCSSink(context.Background(), GCSConfig{})
	assert.ErrorIs(t, err, ErrInvalidExport)

	_, err = NewGCSSink(context.Background(), GCSConfig{
		Bucket:          "b",
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.Error(t, err)
}
