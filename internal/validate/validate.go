/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package validate implements the ValidationVisitor: digest comparison
// followed by detached OpenPGP signature verification against a publisher's
// trust ring.
package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/clog"
)

// V3SignatureDate is the compatibility-date sentinel: pinning verification
// to this instant accepts the older v3 signature packet format that a
// policy pinned to "now" would otherwise reject.
var V3SignatureDate = time.Date(2007, 1, 1, 0, 0, 0, 0, time.UTC)

// DigestMismatch is returned when a present sidecar digest does not match
// the digest computed over the retrieved bytes.
type DigestMismatch struct {
	Algorithm string
	Expected  string
	Actual    string
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("%s mismatch: expected %s, got %s", e.Algorithm, e.Expected, e.Actual)
}

// SignatureError wraps a failure to verify a detached signature against the
// ring: no entity in the ring produced a valid signature.
type SignatureError struct {
	Cause error
}

func (e *SignatureError) Error() string { return fmt.Sprintf("signature verification: %v", e.Cause) }
func (e *SignatureError) Unwrap() error { return e.Cause }

// ValidationVisitor compares digests and, if present, verifies a detached
// signature against Ring. A retrieval error is forwarded unchanged; a
// missing signature is not itself an error (digest-only acceptance is
// permitted), matching the distilled spec's validation order.
type ValidationVisitor struct {
	Ring openpgp.EntityList

	// ValidationDate pins the OpenPGP verification policy. The zero value
	// means "now". Use V3SignatureDate to accept v3 signature packets.
	ValidationDate time.Time

	Next pipeline.ValidatedSink
}

// New builds a ValidationVisitor backed by ring, forwarding to next.
func New(ring openpgp.EntityList, next pipeline.ValidatedSink) *ValidationVisitor {
	return &ValidationVisitor{Ring: ring, Next: next}
}

func (v *ValidationVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *ValidationVisitor) VisitRetrieved(ctx context.Context, item pipeline.Result[model.RetrievedItem]) error {
	if !item.OK() {
		return v.Next.VisitValidated(ctx, pipeline.Fail[model.ValidatedItem](item.Err))
	}

	retrieved := item.Value
	validated, err := v.validate(ctx, retrieved)
	if err != nil {
		clog.FromContext(ctx).With("url", retrieved.URL).Warnf("validation failed: %v", err)
		return v.Next.VisitValidated(ctx, pipeline.Fail[model.ValidatedItem](err))
	}
	return v.Next.VisitValidated(ctx, pipeline.Ok(validated))
}

func (v *ValidationVisitor) validate(ctx context.Context, retrieved model.RetrievedItem) (model.ValidatedItem, error) {
	if retrieved.HasSHA256() {
		if !strings.EqualFold(retrieved.ExpectedSHA256, retrieved.ComputedSHA256) {
			return model.ValidatedItem{}, &DigestMismatch{
				Algorithm: "sha256", Expected: retrieved.ExpectedSHA256, Actual: retrieved.ComputedSHA256,
			}
		}
	}
	if retrieved.HasSHA512() {
		if !strings.EqualFold(retrieved.ExpectedSHA512, retrieved.ComputedSHA512) {
			return model.ValidatedItem{}, &DigestMismatch{
				Algorithm: "sha512", Expected: retrieved.ExpectedSHA512, Actual: retrieved.ComputedSHA512,
			}
		}
	}

	if !retrieved.HasSignature() {
		return model.ValidatedItem{RetrievedItem: retrieved}, nil
	}

	signer, err := v.checkSignature(retrieved)
	if err != nil {
		return model.ValidatedItem{}, &SignatureError{Cause: err}
	}
	clog.FromContext(ctx).With("url", retrieved.URL).With("signer", signer).Info("signature verified")

	return model.ValidatedItem{RetrievedItem: retrieved, SignatureVerified: true}, nil
}

// checkSignature verifies retrieved.SignatureText as a detached, armored
// OpenPGP signature over retrieved.Bytes, returning the signer's key id.
func (v *ValidationVisitor) checkSignature(retrieved model.RetrievedItem) (string, error) {
	at := v.ValidationDate
	if at.IsZero() {
		at = time.Now()
	}
	cfg := &packet.Config{Time: func() time.Time { return at }}

	signer, err := openpgp.CheckArmoredDetachedSignature(
		v.Ring,
		strings.NewReader(string(retrieved.Bytes)),
		strings.NewReader(retrieved.SignatureText),
		cfg,
	)
	if err != nil {
		return "", err
	}
	if signer == nil {
		return "", fmt.Errorf("no matching signer in ring")
	}
	return signer.PrimaryKey.KeyIdString(), nil
}
