// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles the tab CLI's terminal output.
//
// # Description
//
// Thin wrappers over lipgloss with the Aleutian palette, plus a small
// column-aligned table renderer for the stats commands. Styling is
// dropped automatically when stdout is not a terminal or NO_COLOR is
// set, so piped output stays machine-friendly.
package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian brand palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders
	ColorWarning     = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError       = lipgloss.Color("#E74C3C") // Red for errors
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Ghost     lipgloss.Style
	Border    lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Ghost:     lipgloss.NewStyle().Foreground(ColorSlate).Italic(true),
	Border: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

var plain = detectPlain()

func detectPlain() bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// Plain reports whether styled output is disabled.
func Plain() bool { return plain }

// SetPlain overrides terminal detection, mainly for tests.
func SetPlain(v bool) { plain = v }

// Render applies st to text unless plain mode is on.
func Render(st lipgloss.Style, text string) string {
	if plain {
		return text
	}
	return st.Render(text)
}

// Title prints a styled heading line.
func Title(text string) {
	fmt.Println(Render(Styles.Title, text))
}

// Success prints a checkmarked confirmation line.
func Success(text string) {
	fmt.Println(Render(Styles.Success, "✓ "+text))
}

// Warning prints a flagged warning line.
func Warning(text string) {
	fmt.Println(Render(Styles.Warning, "⚠ "+text))
}

// Error prints a flagged error line.
func Error(text string) {
	fmt.Println(Render(Styles.Error, "✗ "+text))
}

// Muted prints a de-emphasized line.
func Muted(text string) {
	fmt.Println(Render(Styles.Muted, text))
}

// KeyValue prints an aligned "key: value" line.
func KeyValue(key, value string) {
	fmt.Printf("%s %s\n", Render(Styles.Muted, fmt.Sprintf("%-14s", key+":")), value)
}

// Table accumulates rows and renders them with aligned columns and a
// styled header.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// Row appends one row. Short rows are padded with empty cells.
func (t *Table) Row(cells ...string) {
	for len(cells) < len(t.headers) {
		cells = append(cells, "")
	}
	t.rows = append(t.rows, cells)
}

// Render returns the aligned table as a string.
func (t *Table) Render() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	b.WriteString(Render(Styles.Bold, alignRow(t.headers, widths)))
	b.WriteByte('\n')
	b.WriteString(Render(Styles.Muted, alignRow(rules(widths), widths)))
	b.WriteByte('\n')
	for _, row := range t.rows {
		b.WriteString(alignRow(row, widths))
		b.WriteByte('\n')
	}
	return b.String()
}

// Print renders the table to stdout.
func (t *Table) Print() {
	fmt.Print(t.Render())
}

func alignRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		parts[i] = fmt.Sprintf("%-*s", w, cell)
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

func rules(widths []int) []string {
	out := make([]string, len(widths))
	for i, w := range widths {
		out[i] = strings.Repeat("─", w)
	}
	return out
}
