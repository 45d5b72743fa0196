/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report persists and renders the report-statistics file: an
// append-only, ascending-timestamp log of per-walk outcomes merged into a
// single JSON document.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// File is the on-disk shape of the report-statistics document.
type File struct {
	Entries []model.ReportEntry `json:"entries"`
}

// Load reads path. A missing file returns an empty File, not an error.
func Load(path string) (File, error) {
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("reading report file: %w", err)
	}
	var f File
	if err := json.Unmarshal(body, &f); err != nil {
		return File{}, fmt.Errorf("parsing report file: %w", err)
	}
	return f, nil
}

// Append adds entry to path's report file, keeping entries in ascending
// timestamp order, and writes the result back.
func Append(path string, entry model.ReportEntry) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	f.Entries = append(f.Entries, entry)
	sort.Slice(f.Entries, func(i, j int) bool {
		return f.Entries[i].Timestamp.Before(f.Entries[j].Timestamp)
	})

	body, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report file: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// Counter accumulates one walk's totals as items pass through the
// terminal sink; Entry snapshots it into a model.ReportEntry once the walk
// completes.
type Counter struct {
	Total         int
	Errors        int
	Warnings      int
	TotalErrors   int
	TotalWarnings int
}

// RecordItem folds one VerifiedItem outcome into the counter: a retrieval,
// validation, or verification-parse error counts as an error; a document
// forwarded with non-empty FailedChecks counts as a warning.
func (c *Counter) RecordItem(failed bool, checkFailures int) {
	c.Total++
	if failed {
		c.Errors++
		c.TotalErrors++
		return
	}
	if checkFailures > 0 {
		c.Warnings++
		c.TotalWarnings += checkFailures
	}
}

// Entry produces the persisted record for this walk, stamped at ts (the
// caller supplies the timestamp, since time.Now is a side effect this
// package leaves to its caller).
func (c *Counter) Entry(ts time.Time) model.ReportEntry {
	return model.ReportEntry{
		Timestamp:     ts,
		Total:         c.Total,
		Errors:        c.Errors,
		Warnings:      c.Warnings,
		TotalErrors:   c.TotalErrors,
		TotalWarnings: c.TotalWarnings,
	}
}
