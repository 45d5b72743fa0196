/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Render writes f as a human-readable table to w: one row per run, with
// errors/warnings deltas against the previous entry so a reader can see
// whether a run regressed without cross-referencing the raw JSON.
func Render(w io.Writer, f File) {
	table := newTable([]string{"timestamp", "total", "errors", "warnings", "Δerrors", "Δwarnings"}, w)

	var prevErrors, prevWarnings int
	for i, e := range f.Entries {
		deltaErrors, deltaWarnings := "-", "-"
		if i > 0 {
			deltaErrors = fmt.Sprintf("%+d", e.TotalErrors-prevErrors)
			deltaWarnings = fmt.Sprintf("%+d", e.TotalWarnings-prevWarnings)
		}
		_ = table.Append([]string{
			e.Timestamp.Format("2006-01-02T15:04:05Z"),
			fmt.Sprint(e.Total),
			fmt.Sprint(e.Errors),
			fmt.Sprint(e.Warnings),
			deltaErrors,
			deltaWarnings,
		})
		prevErrors, prevWarnings = e.TotalErrors, e.TotalWarnings
	}
	_ = table.Render()
}

// newTable builds a table writer with the formatting this module uses
// consistently for its one CLI report surface.
func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
