/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changes parses the two publisher change-feed formats that a
// directory or ROLIE-feed Distribution exposes, and produces the
// DiscoveredItem shape the rest of the pipeline consumes.
package changes

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// ParseCSV parses a changes.csv body: two columns, no header,
// "<filename>,<ISO-8601-timestamp-with-offset>" per row. File names are
// resolved against baseURL. A malformed row aborts parsing for the whole
// distribution, per the distilled spec's error taxonomy (Parse errors are
// fatal for that distribution, not the whole walk).
func ParseCSV(baseURL string, body []byte) ([]model.DiscoveredItem, error) {
	r := csv.NewReader(strings.NewReader(string(body)))
	r.FieldsPerRecord = 2
	r.ReuseRecord = true

	var items []model.DiscoveredItem
	row := 0
	for {
		row++
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("changes.csv row %d: %w", row, err)
		}

		filename, ts := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		modified, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("changes.csv row %d: parsing timestamp %q: %w", row, ts, err)
		}

		resolved, err := resolve(baseURL, filename)
		if err != nil {
			return nil, fmt.Errorf("changes.csv row %d: %w", row, err)
		}

		items = append(items, model.DiscoveredItem{
			DistributionURL: baseURL,
			URL:             resolved,
			Modified:        &modified,
		})
	}
	return items, nil
}

func resolve(baseURL, filename string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing distribution base %q: %w", baseURL, err)
	}
	return base.JoinPath(filename).String(), nil
}

// Since filters items to those whose Modified is at or after the cutoff.
// Items without a Modified timestamp are always kept: absence of a change
// time is never grounds for exclusion.
func Since(items []model.DiscoveredItem, cutoff time.Time) []model.DiscoveredItem {
	if cutoff.IsZero() {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Modified == nil || !it.Modified.Before(cutoff) {
			out = append(out, it)
		}
	}
	return out
}
