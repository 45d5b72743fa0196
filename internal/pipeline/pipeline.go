/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline defines the layered visitor interfaces that the walker
// drives an item through, and the small error-as-value envelope each layer
// uses to forward a per-item failure to the next layer without aborting the
// walk.
//
// The set of stages is closed (discovered, retrieved, validated, verified),
// so each stage gets its own named interface rather than a generic Visitor
// type: this keeps call sites readable and lets each stage's VisitContext
// take the type it actually needs.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// Result carries either a value or an error for one item as it moves
// through the chain. Per-item errors are values, not panics: a visitor that
// fails for one document still lets the walk continue with the next one.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a per-item error.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// OK reports whether this result carries a value rather than an error.
func (r Result[T]) OK() bool { return r.Err == nil }

// FatalError marks an error that must abort the entire walk rather than
// just the current item: a trust-anchor fingerprint mismatch, or discovery
// returning NotFound. The Walker unwraps every item-level error with
// errors.As looking for this type and stops the walk if found.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Cause) }
func (e *FatalError) Unwrap() error { return e.Cause }

// Fatal wraps cause as a walk-aborting error.
func Fatal(cause error) error { return &FatalError{Cause: cause} }

// IsFatal reports whether err (or something it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// DiscoveredSink receives one DiscoveredItem at a time, in addition to a
// one-time VisitContext call carrying the shared provider metadata for the
// walk.
type DiscoveredSink interface {
	VisitContext(ctx context.Context, md *model.ProviderMetadata) error
	VisitDiscovered(ctx context.Context, item model.DiscoveredItem) error
}

// RetrievedSink receives the outcome of attempting to load a document's
// bytes and sidecars.
type RetrievedSink interface {
	VisitContext(ctx context.Context, md *model.ProviderMetadata) error
	VisitRetrieved(ctx context.Context, item Result[model.RetrievedItem]) error
}

// ValidatedSink receives the outcome of digest/signature validation.
type ValidatedSink interface {
	VisitContext(ctx context.Context, md *model.ProviderMetadata) error
	VisitValidated(ctx context.Context, item Result[model.ValidatedItem]) error
}

// VerifiedSink receives the outcome of structural verification. This is
// typically the terminal stage of the chain (Store, Send, or a user
// callback).
type VerifiedSink interface {
	VisitContext(ctx context.Context, md *model.ProviderMetadata) error
	VisitVerified(ctx context.Context, item Result[model.VerifiedItem]) error
}

// PassThroughVerified adapts a ValidatedSink to a VerifiedSink: every
// VerifiedItem is forwarded as its embedded ValidatedItem (its check table
// is dropped), and a failure is forwarded with the same error.
type PassThroughVerified struct {
	Next ValidatedSink
}

func (p PassThroughVerified) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return p.Next.VisitContext(ctx, md)
}

func (p PassThroughVerified) VisitVerified(ctx context.Context, item Result[model.VerifiedItem]) error {
	if !item.OK() {
		return p.Next.VisitValidated(ctx, Fail[model.ValidatedItem](item.Err))
	}
	return p.Next.VisitValidated(ctx, Ok(item.Value.ValidatedItem))
}
