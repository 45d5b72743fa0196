/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package filter

import (
	"context"
	"sync"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
)

// DetectDuplicatesVisitor tracks every (distribution_url, relative_url) key
// seen during a walk, without altering what it forwards. It maintains two
// disjoint counters per spec.md §4.8/§8: `known`, inserted once per
// first-seen key, and `duplicates`, incremented only on a repeat insertion —
// so sum(duplicates.values) + |known| equals the total number of visited
// items. Safe for concurrent use by the bounded-parallel walker.
type DetectDuplicatesVisitor struct {
	mu         sync.Mutex
	known      map[model.DocumentKey]struct{}
	duplicates map[model.DocumentKey]int

	Next pipeline.DiscoveredSink
}

// NewDetectDuplicates builds a DetectDuplicatesVisitor forwarding to next.
func NewDetectDuplicates(next pipeline.DiscoveredSink) *DetectDuplicatesVisitor {
	return &DetectDuplicatesVisitor{
		known:      map[model.DocumentKey]struct{}{},
		duplicates: map[model.DocumentKey]int{},
		Next:       next,
	}
}

func (v *DetectDuplicatesVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *DetectDuplicatesVisitor) VisitDiscovered(ctx context.Context, item model.DiscoveredItem) error {
	key := item.Key()

	v.mu.Lock()
	if _, exists := v.known[key]; exists {
		v.duplicates[key]++
	} else {
		v.known[key] = struct{}{}
	}
	v.mu.Unlock()

	return v.Next.VisitDiscovered(ctx, item)
}

// DuplicateCount returns how many repeat visits key has had beyond its first
// (i.e. visits - 1). Zero means key has been seen at most once so far.
func (v *DetectDuplicatesVisitor) DuplicateCount(key model.DocumentKey) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duplicates[key]
}

// Duplicates returns the total number of repeat visits across all keys,
// i.e. sum(duplicates.values).
func (v *DetectDuplicatesVisitor) Duplicates() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, count := range v.duplicates {
		n += count
	}
	return n
}

// Known returns the number of distinct keys seen, i.e. |known|.
func (v *DetectDuplicatesVisitor) Known() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.known)
}
