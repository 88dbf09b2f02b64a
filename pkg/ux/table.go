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
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column describes one table column.
type Column struct {
	Title string
	Width int
}

// Table streams rows under a header, one line per row.
//
// Description:
//
//	Rows are printed as they arrive so a long benchmark shows progress
//	line by line. Rich and plain output right-align cells to the column
//	width; machine output is tab-separated with no padding.
type Table struct {
	p       *Printer
	columns []Column
}

// NewTable creates a table over p's writer.
func NewTable(p *Printer, columns ...Column) *Table {
	return &Table{p: p, columns: columns}
}

// Header prints the column titles and, except for machine output, a rule.
func (t *Table) Header() {
	titles := make([]string, len(t.columns))
	for i, c := range t.columns {
		titles[i] = c.Title
	}
	if t.p.level == LevelMachine {
		fmt.Fprintln(t.p.w, strings.Join(titles, "\t"))
		return
	}
	line := t.format(titles, Styles.Header)
	fmt.Fprintln(t.p.w, line)
	fmt.Fprintln(t.p.w, t.p.style(Styles.Muted, strings.Repeat("─", lipgloss.Width(line))))
}

// Row prints one row. Missing cells are blank; extra cells are dropped.
func (t *Table) Row(cells ...string) {
	t.row(lipgloss.NewStyle(), cells)
}

// HighlightRow prints a row in the highlight style, used for summaries.
func (t *Table) HighlightRow(cells ...string) {
	t.row(Styles.Highlight, cells)
}

func (t *Table) row(s lipgloss.Style, cells []string) {
	padded := make([]string, len(t.columns))
	copy(padded, cells)
	if t.p.level == LevelMachine {
		fmt.Fprintln(t.p.w, strings.Join(padded, "\t"))
		return
	}
	fmt.Fprintln(t.p.w, t.format(padded, s))
}

func (t *Table) format(cells []string, s lipgloss.Style) string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		cell := fmt.Sprintf("%*s", c.Width, cells[i])
		parts[i] = t.p.style(s, cell)
	}
	return strings.Join(parts, "  ")
}
