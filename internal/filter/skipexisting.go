/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package filter

import (
	"context"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
)

// ExistenceChecker reports whether a discovered item's destination already
// exists, and if so, the modification time to compare against. Implemented
// by the store package against its on-disk mirror; kept as an interface
// here so filter does not import store.
type ExistenceChecker interface {
	Exists(item model.DiscoveredItem) (modTime time.Time, ok bool)
}

// SkipExistingVisitor drops a discovered item when its destination already
// exists and is at least as new as the item's own modification time. The
// comparison timestamp is the configured Since cutoff if set, else the
// destination's own filesystem mtime — matching the distilled spec's rule
// that a stored copy is current if nothing has visibly changed since it was
// written, or since the caller last synced.
type SkipExistingVisitor struct {
	Checker ExistenceChecker
	Since   time.Time

	Next pipeline.DiscoveredSink
}

// NewSkipExisting builds a SkipExistingVisitor forwarding to next.
func NewSkipExisting(checker ExistenceChecker, since time.Time, next pipeline.DiscoveredSink) *SkipExistingVisitor {
	return &SkipExistingVisitor{Checker: checker, Since: since, Next: next}
}

func (v *SkipExistingVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *SkipExistingVisitor) VisitDiscovered(ctx context.Context, item model.DiscoveredItem) error {
	if v.isUpToDate(item) {
		return nil
	}
	return v.Next.VisitDiscovered(ctx, item)
}

func (v *SkipExistingVisitor) isUpToDate(item model.DiscoveredItem) bool {
	destMTime, exists := v.Checker.Exists(item)
	if !exists {
		return false
	}
	if item.Modified == nil {
		// No authoritative change time to compare against: always refresh.
		return false
	}

	compareTo := v.Since
	if compareTo.IsZero() {
		compareTo = destMTime
	}
	return !item.Modified.After(compareTo)
}
