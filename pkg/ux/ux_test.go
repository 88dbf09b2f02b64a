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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"rich", LevelRich},
		{"FULL", LevelRich},
		{" machine ", LevelMachine},
		{"tsv", LevelMachine},
		{"plain", LevelPlain},
		{"whatever", LevelPlain},
		{"", LevelPlain},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectLevel(t *testing.T) {
	t.Run("non-terminal is machine", func(t *testing.T) {
		t.Setenv(OutputEnv, "")
		assert.Equal(t, LevelMachine, DetectLevel(&bytes.Buffer{}))
		assert.False(t, IsTerminal(&bytes.Buffer{}))
	})
	t.Run("env wins", func(t *testing.T) {
		t.Setenv(OutputEnv, "plain")
		assert.Equal(t, LevelPlain, DetectLevel(&bytes.Buffer{}))
	})
}

func TestPrinter_Levels(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelMachine, "OK: done\nWARN: careful\nERROR: broken\ninfo\n"},
		{LevelPlain, "title\n✓ done\n⚠ careful\n✗ broken\n│ info\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			p := NewPrinter(&buf, tt.level)
			p.Title("title")
			p.Success("done")
			p.Warning("careful")
			p.Error("broken")
			p.Info("info")
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrinter_Box(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, LevelPlain).Box("CSV", "/tmp/out.csv")
	assert.Equal(t, "CSV: /tmp/out.csv\n", buf.String())
}

func TestPrinter_ProgressBar(t *testing.T) {
	assert.Equal(t, "3/10", NewPrinter(&bytes.Buffer{}, LevelMachine).ProgressBar(3, 10, 20))

	plain := NewPrinter(&bytes.Buffer{}, LevelPlain)
	assert.Equal(t, "█████░░░░░  50%", plain.ProgressBar(5, 10, 10))
	assert.Equal(t, "██████████ 100%", plain.ProgressBar(12, 10, 10))
	assert.Equal(t, "0/0", plain.ProgressBar(0, 0, 10))
}

func TestTable_Plain(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(NewPrinter(&buf, LevelPlain),
		Column{Title: "Interval", Width: 8},
		Column{Title: "P GHz", Width: 7},
	)
	tbl.Header()
	tbl.Row("0", "3.20")
	tbl.Row("1")
	tbl.HighlightRow("mean", "3.10", "dropped")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"Interval    P GHz",
		strings.Repeat("─", 17),
		"       0     3.20",
		"       1         ",
		"    mean     3.10",
	}, lines)
}

func TestTable_Machine(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(NewPrinter(&buf, LevelMachine),
		Column{Title: "Interval", Width: 8},
		Column{Title: "P GHz", Width: 7},
	)
	tbl.Header()
	tbl.Row("0", "3.20")
	assert.Equal(t, "Interval\tP GHz\n0\t3.20\n", buf.String())
}
