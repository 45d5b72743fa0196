/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// rolieFeed is the subset of RFC 8322 Atom-JSON this pipeline parses:
// feed.entry[].link[].href and feed.entry[].updated.
type rolieFeed struct {
	Feed struct {
		Entry []rolieEntry `json:"entry"`
	} `json:"feed"`
}

type rolieEntry struct {
	Updated string      `json:"updated"`
	Link    []rolieLink `json:"link"`
}

type rolieLink struct {
	HREF string `json:"href"`
	Rel  string `json:"rel"`
}

// ParseROLIE parses a ROLIE feed document. Every link in every entry becomes
// one DiscoveredItem, inheriting the entry's updated timestamp; whether a
// link with rel="signature" (or similar) ought to be filtered out is left
// unresolved by the source material this was distilled from, so every link
// is emitted unless the caller filters it downstream.
func ParseROLIE(feedURL string, body []byte) ([]model.DiscoveredItem, error) {
	var feed rolieFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing ROLIE feed: %w", err)
	}

	var items []model.DiscoveredItem
	for i, entry := range feed.Feed.Entry {
		var updated *time.Time
		if entry.Updated != "" {
			t, err := time.Parse(time.RFC3339, entry.Updated)
			if err != nil {
				return nil, fmt.Errorf("ROLIE entry %d: parsing updated timestamp %q: %w", i, entry.Updated, err)
			}
			updated = &t
		}
		for _, link := range entry.Link {
			if link.HREF == "" {
				continue
			}
			items = append(items, model.DiscoveredItem{
				DistributionURL: feedURL,
				URL:             link.HREF,
				Modified:        updated,
			})
		}
	}
	return items, nil
}
