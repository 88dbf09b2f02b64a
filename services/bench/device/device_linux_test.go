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

package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model")
	assert.NoError(t, os.WriteFile(path, []byte("Raspberry Pi 5 Model B Rev 1.0\x00"), 0600))

	assert.Equal(t, "Raspberry Pi 5 Model B Rev 1.0", Resolve(context.Background(), FileProvider(path)))
	assert.Equal(t, Unknown, Resolve(context.Background(), FileProvider(filepath.Join(dir, "missing"))))
}
