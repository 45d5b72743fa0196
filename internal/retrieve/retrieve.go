/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retrieve implements the RetrievingVisitor: the pipeline stage that
// turns a DiscoveredItem into a RetrievedItem by loading its bytes and
// sidecars through a Source.
package retrieve

import (
	"context"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/advisory-sync/internal/source"
	"github.com/chainguard-dev/clog"
)

// RetrievingVisitor loads each discovered item's bytes and sidecars and
// forwards the outcome to Next. A load failure never aborts the walk: it is
// attached to the item's Result and passed downstream so later stages (and
// ultimately the report) can account for it.
type RetrievingVisitor struct {
	Source source.Source
	Next   pipeline.RetrievedSink
}

// New builds a RetrievingVisitor that loads documents through src and
// forwards every outcome to next.
func New(src source.Source, next pipeline.RetrievedSink) *RetrievingVisitor {
	return &RetrievingVisitor{Source: src, Next: next}
}

func (v *RetrievingVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *RetrievingVisitor) VisitDiscovered(ctx context.Context, item model.DiscoveredItem) error {
	retrieved, err := v.Source.LoadAdvisory(ctx, item)
	if err != nil {
		clog.FromContext(ctx).With("url", item.URL).Warnf("retrieving document: %v", err)
		return v.Next.VisitRetrieved(ctx, pipeline.Fail[model.RetrievedItem](err))
	}
	return v.Next.VisitRetrieved(ctx, pipeline.Ok(retrieved))
}
