/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package verify implements the VerifyingVisitor: JSON parsing followed by a
// fixed table of named structural checks for CSAF, SPDX, and CycloneDX
// documents. A check that returns messages is non-fatal (the document is
// still forwarded, with its failures recorded); a check that cannot even run
// because the payload does not parse is fatal for that one document.
package verify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/clog"
)

// Check is one named structural rule. It returns a (possibly empty) list of
// human-readable failure messages; it never itself errors — malformed input
// it cannot reason about should simply produce a failure message.
type Check struct {
	ID string
	Run func(doc map[string]any) []string
}

// VerifyingVisitor parses each validated item's bytes as JSON and runs the
// check table appropriate to the detected document format.
type VerifyingVisitor struct {
	Next pipeline.VerifiedSink
}

// New builds a VerifyingVisitor forwarding to next.
func New(next pipeline.VerifiedSink) *VerifyingVisitor {
	return &VerifyingVisitor{Next: next}
}

func (v *VerifyingVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *VerifyingVisitor) VisitValidated(ctx context.Context, item pipeline.Result[model.ValidatedItem]) error {
	if !item.OK() {
		return v.Next.VisitVerified(ctx, pipeline.Fail[model.VerifiedItem](item.Err))
	}

	validated := item.Value

	var doc map[string]any
	if err := json.Unmarshal(validated.Bytes, &doc); err != nil {
		clog.FromContext(ctx).With("url", validated.URL).Warnf("document did not parse as JSON: %v", err)
		return v.Next.VisitVerified(ctx, pipeline.Fail[model.VerifiedItem](fmt.Errorf("parsing document: %w", err)))
	}

	checks := checkTableFor(doc)
	passed, failed := runChecks(checks, doc)

	verified := model.VerifiedItem{
		ValidatedItem: validated,
		Document:      doc,
		PassedChecks:  passed,
		FailedChecks:  failed,
	}
	return v.Next.VisitVerified(ctx, pipeline.Ok(verified))
}

func runChecks(checks []Check, doc map[string]any) (passed []string, failed model.CheckFailures) {
	for _, c := range checks {
		messages := c.Run(doc)
		if len(messages) == 0 {
			passed = append(passed, c.ID)
			continue
		}
		if failed == nil {
			failed = model.CheckFailures{}
		}
		failed[c.ID] = messages
	}
	return passed, failed
}

// checkTableFor detects the document format from shape rather than an
// out-of-band content-type, and returns the matching check table. An
// unrecognized document gets an empty table: it is forwarded unverified
// rather than rejected.
func checkTableFor(doc map[string]any) []Check {
	switch {
	case hasKey(doc, "document") && hasKey(doc, "vulnerabilities") || hasPath(doc, "document", "csaf_version"):
		return csafChecks
	case hasKey(doc, "spdxVersion"):
		return spdxChecks
	case str(doc, "bomFormat") == "CycloneDX":
		return cyclonedxChecks
	default:
		return nil
	}
}
