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
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnavailable is returned by NewClipboardSink when the platform
// has no clipboard tool (xclip, xsel, wl-copy, pbcopy, or the Windows API).
var ErrClipboardUnavailable = errors.New("system clipboard unavailable")

// ClipboardSink copies the export body to the system clipboard so the CSV
// can be pasted straight into a spreadsheet.
//
// Thread Safety: Safe for concurrent use; the clipboard keeps the last write.
type ClipboardSink struct {
	write func(string) error
}

// NewClipboardSink returns a sink over the system clipboard.
//
// Outputs:
//
//	*ClipboardSink - The sink.
//	error - ErrClipboardUnavailable when no clipboard tool was found.
func NewClipboardSink() (*ClipboardSink, error) {
	if clipboard.Unsupported {
		return nil, ErrClipboardUnavailable
	}
	return &ClipboardSink{write: clipboard.WriteAll}, nil
}

// Name returns "clipboard".
func (s *ClipboardSink) Name() string { return "clipboard" }

// Write replaces the clipboard contents with the export body. An empty
// export is not copied.
func (s *ClipboardSink) Write(_ context.Context, exp Export) error {
	if exp.Intervals == 0 {
		return nil
	}
	if err := s.write(string(exp.Body)); err != nil {
		return fmt.Errorf("copy run %s to clipboard: %w", exp.RunID, err)
	}
	return nil
}

var _ Sink = (*ClipboardSink)(nil)
