/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package filter

import (
	"context"
	"errors"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/advisory-sync/internal/validate"
	"github.com/chainguard-dev/clog"
)

// SkipMode selects which failures SkipFailedVisitor drops instead of
// forwarding. The distilled spec calls out two distinct call sites for this
// visitor with slightly different behavior; rather than merge them into one
// ambiguous mode, both are modeled explicitly and the caller picks.
type SkipMode int

const (
	// SkipAllFailures drops every failed Result, regardless of cause.
	SkipAllFailures SkipMode = iota
	// SkipValidationFailuresOnly forwards retrieval errors unchanged (so a
	// later stage or the report can still account for them) but drops
	// digest-mismatch and signature failures produced by ValidationVisitor.
	SkipValidationFailuresOnly
)

// SkipFailedVisitor optionally drops failed items instead of forwarding
// them downstream as errors.
type SkipFailedVisitor struct {
	Mode SkipMode
	Next pipeline.ValidatedSink
}

// NewSkipFailed builds a SkipFailedVisitor in mode, forwarding to next.
func NewSkipFailed(mode SkipMode, next pipeline.ValidatedSink) *SkipFailedVisitor {
	return &SkipFailedVisitor{Mode: mode, Next: next}
}

func (v *SkipFailedVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *SkipFailedVisitor) VisitValidated(ctx context.Context, item pipeline.Result[model.ValidatedItem]) error {
	if item.OK() {
		return v.Next.VisitValidated(ctx, item)
	}

	drop := v.Mode == SkipAllFailures || (v.Mode == SkipValidationFailuresOnly && isValidationFailure(item.Err))
	if drop {
		clog.FromContext(ctx).Warnf("dropping failed item: %v", item.Err)
		return nil
	}
	return v.Next.VisitValidated(ctx, item)
}

// isValidationFailure reports whether err was produced by ValidationVisitor
// (a digest mismatch or signature failure) rather than by an earlier stage
// such as retrieval.
func isValidationFailure(err error) bool {
	var mismatch *validate.DigestMismatch
	var sigErr *validate.SignatureError
	return errors.As(err, &mismatch) || errors.As(err, &sigErr)
}
