/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package verify

import (
	"context"
	"testing"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/stretchr/testify/require"
)

type recordingVerifiedSink struct {
	results []pipeline.Result[model.VerifiedItem]
}

func (r *recordingVerifiedSink) VisitContext(context.Context, *model.ProviderMetadata) error {
	return nil
}

func (r *recordingVerifiedSink) VisitVerified(_ context.Context, item pipeline.Result[model.VerifiedItem]) error {
	r.results = append(r.results, item)
	return nil
}

func TestVerifyingVisitorPassesThroughValidationError(t *testing.T) {
	sink := &recordingVerifiedSink{}
	v := New(sink)

	require.NoError(t, v.VisitValidated(context.Background(), pipeline.Fail[model.ValidatedItem](errBoom)))
	require.Len(t, sink.results, 1)
	require.False(t, sink.results[0].OK())
}

func TestVerifyingVisitorFailsOnInvalidJSON(t *testing.T) {
	sink := &recordingVerifiedSink{}
	v := New(sink)

	validated := model.ValidatedItem{RetrievedItem: model.RetrievedItem{Bytes: []byte("not json")}}
	require.NoError(t, v.VisitValidated(context.Background(), pipeline.Ok(validated)))
	require.Len(t, sink.results, 1)
	require.False(t, sink.results[0].OK())
}

const validCSAF = `{
	"document": {
		"category": "csaf_vex",
		"title": "Example Advisory",
		"publisher": {"name": "Example Publisher"},
		"tracking": {"id": "EX-2024-0001", "revision_history": [{"number": "1", "date": "2024-01-01T00:00:00Z"}]}
	},
	"product_tree": {
		"branches": [{"product": {"product_id": "P1"}}],
		"relationships": []
	},
	"vulnerabilities": [
		{"cve": "CVE-2024-0001", "product_status": {"known_affected": ["P1"]}}
	]
}`

func TestVerifyingVisitorRunsCSAFChecks(t *testing.T) {
	sink := &recordingVerifiedSink{}
	v := New(sink)

	validated := model.ValidatedItem{RetrievedItem: model.RetrievedItem{Bytes: []byte(validCSAF)}}
	require.NoError(t, v.VisitValidated(context.Background(), pipeline.Ok(validated)))

	require.Len(t, sink.results, 1)
	require.True(t, sink.results[0].OK())
	verified := sink.results[0].Value
	require.Empty(t, verified.FailedChecks)
	require.NotEmpty(t, verified.PassedChecks)
}

const brokenCSAF = `{
	"document": {"category": "csaf_vex", "title": "", "publisher": {"name": ""}, "tracking": {"id": "", "revision_history": []}},
	"product_tree": {"branches": [], "relationships": []},
	"vulnerabilities": [{"product_status": {"known_affected": ["MISSING"]}}]
}`

func TestVerifyingVisitorCollectsCSAFFailures(t *testing.T) {
	sink := &recordingVerifiedSink{}
	v := New(sink)

	validated := model.ValidatedItem{RetrievedItem: model.RetrievedItem{Bytes: []byte(brokenCSAF)}}
	require.NoError(t, v.VisitValidated(context.Background(), pipeline.Ok(validated)))

	verified := sink.results[0].Value
	require.Contains(t, verified.FailedChecks, "csaf.title")
	require.Contains(t, verified.FailedChecks, "csaf.publisher_name")
	require.Contains(t, verified.FailedChecks, "csaf.tracking_id")
	require.Contains(t, verified.FailedChecks, "csaf.revision_history")
	require.Contains(t, verified.FailedChecks, "csaf.product_ids_resolve")
	require.Contains(t, verified.FailedChecks, "csaf.vulnerability_identifiers")
}

const spdxDoc = `{
	"spdxVersion": "SPDX-2.3",
	"SPDXID": "SPDXRef-DOCUMENT",
	"packages": [{"SPDXID": "SPDXRef-pkg-a"}, {"SPDXID": "SPDXRef-pkg-a"}],
	"relationships": [{"spdxElementId": "SPDXRef-DOCUMENT", "relatedSpdxElement": "SPDXRef-missing", "relationshipType": "DESCRIBES"}]
}`

func TestVerifyingVisitorRunsSPDXChecks(t *testing.T) {
	sink := &recordingVerifiedSink{}
	v := New(sink)

	validated := model.ValidatedItem{RetrievedItem: model.RetrievedItem{Bytes: []byte(spdxDoc)}}
	require.NoError(t, v.VisitValidated(context.Background(), pipeline.Ok(validated)))

	verified := sink.results[0].Value
	require.Contains(t, verified.FailedChecks, "spdx.no_duplicate_ids")
	require.Contains(t, verified.FailedChecks, "spdx.relationship_endpoints_known")
}

const cyclonedxDoc = `{
	"bomFormat": "CycloneDX",
	"components": [{"bom-ref": "comp-a"}, {"bom-ref": "comp-a"}],
	"dependencies": [{"ref": "comp-a", "dependsOn": ["comp-missing"]}]
}`

func TestVerifyingVisitorRunsCycloneDXChecks(t *testing.T) {
	sink := &recordingVerifiedSink{}
	v := New(sink)

	validated := model.ValidatedItem{RetrievedItem: model.RetrievedItem{Bytes: []byte(cyclonedxDoc)}}
	require.NoError(t, v.VisitValidated(context.Background(), pipeline.Ok(validated)))

	verified := sink.results[0].Value
	require.Contains(t, verified.FailedChecks, "cyclonedx.bom_ref_unique")
	require.Contains(t, verified.FailedChecks, "cyclonedx.dependency_refs_resolve")
}

var errBoom = errBoomT("boom")

type errBoomT string

func (e errBoomT) Error() string { return string(e) }
