// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputEnv overrides the detected output level.
const OutputEnv = "POWERBENCH_OUTPUT"

// Level defines the richness of CLI output.
type Level string

const (
	// LevelRich enables colors, borders and progress bars.
	LevelRich Level = "rich"

	// LevelPlain keeps alignment but drops colors.
	LevelPlain Level = "plain"

	// LevelMachine outputs tab-separated text suitable for scripting.
	LevelMachine Level = "machine"
)

// ParseLevel converts a string to a Level. Unknown values map to LevelPlain.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return LevelRich
	case "machine", "quiet", "tsv", "q":
		return LevelMachine
	default:
		return LevelPlain
	}
}

// DetectLevel picks a level for w.
//
// Description:
//
//	The POWERBENCH_OUTPUT environment variable wins when set. Otherwise a
//	terminal gets LevelRich (LevelPlain when NO_COLOR is set) and anything
//	else, such as a pipe or file, gets LevelMachine.
func DetectLevel(w io.Writer) Level {
	if env := os.Getenv(OutputEnv); env != "" {
		return ParseLevel(env)
	}
	if !IsTerminal(w) {
		return LevelMachine
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return LevelPlain
	}
	return LevelRich
}

// IsTerminal reports whether w is a terminal, including Cygwin/MSYS ptys.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
