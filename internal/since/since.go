/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package since loads and persists the "last successful run" cursor that
// bounds an incremental walk to items changed since the previous one.
package since

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// Load reads the cursor file at path. A missing file is not an error: it
// returns the zero Cursor, which callers treat as "no cutoff".
func Load(path string) (model.SinceCursor, error) {
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.SinceCursor{}, nil
	}
	if err != nil {
		return model.SinceCursor{}, fmt.Errorf("reading since file: %w", err)
	}

	var cursor model.SinceCursor
	if err := json.Unmarshal(body, &cursor); err != nil {
		return model.SinceCursor{}, fmt.Errorf("parsing since file: %w", err)
	}
	return cursor, nil
}

// Save writes cursor to path as a single JSON document, overwriting
// whatever was there before.
func Save(path string, cursor model.SinceCursor) error {
	body, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encoding since file: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing since file: %w", err)
	}
	return nil
}

// Cutoff applies offset (typically negative, to re-examine a trailing
// window) to cursor.LastRun and returns the instant a Walker should use as
// its since-cutoff. A zero cursor (no prior run) yields the zero Time,
// which disables since-filtering entirely.
func Cutoff(cursor model.SinceCursor, offset time.Duration) time.Time {
	if cursor.LastRun.IsZero() {
		return time.Time{}
	}
	return cursor.LastRun.Add(offset)
}
