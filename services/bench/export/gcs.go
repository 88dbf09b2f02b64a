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
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures upload of exports to a Cloud Storage bucket.
type GCSConfig struct {
	// Bucket is the destination bucket. Required.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to object names, e.g. "powerbench/runs".
	Prefix string `yaml:"prefix"`

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// objectWriterFunc opens a writer for an object name. Swapped in tests.
type objectWriterFunc func(ctx context.Context, name string, exp Export) io.WriteCloser

// GCSSink uploads each export as "<prefix>/<filename>".
type GCSSink struct {
	cfg    GCSConfig
	client *storage.Client
	open   objectWriterFunc
}

// NewGCSSink creates a storage client and returns a sink for cfg.Bucket.
//
// Outputs:
//
//	*GCSSink - Ready sink. Call Close when done.
//	error - Non-nil if the bucket is missing, the credentials file does
//	        not exist, or the client cannot be created.
func NewGCSSink(ctx context.Context, cfg GCSConfig) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is required", ErrInvalidExport)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	s := &GCSSink{cfg: cfg, client: client}
	s.open = func(ctx context.Context, name string, exp Export) io.WriteCloser {
		w := client.Bucket(cfg.Bucket).Object(name).NewWriter(ctx)
		w.ContentType = "text/csv"
		w.CacheControl = "no-cache, no-store, must-revalidate"
		w.Metadata = map[string]string{
			"run_id":    exp.RunID,
			"mode":      exp.Mode.String(),
			"model":     exp.Model,
			"intervals": strconv.Itoa(exp.Intervals),
			"workers":   strconv.Itoa(exp.Workers),
		}
		return w
	}
	return s, nil
}

// Name returns "gcs".
func (s *GCSSink) Name() string { return "gcs" }

// ObjectName returns the object the export is uploaded to.
func (s *GCSSink) ObjectName(exp Export) string {
	if s.cfg.Prefix == "" {
		return exp.Filename()
	}
	return path.Join(s.cfg.Prefix, exp.Filename())
}

// Write uploads the body. The upload is committed by the writer's Close.
func (s *GCSSink) Write(ctx context.Context, exp Export) error {
	name := s.ObjectName(exp)
	w := s.open(ctx, name, exp)
	if _, err := io.Copy(w, bytes.NewReader(exp.Body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", s.cfg.Bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", s.cfg.Bucket, name, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
