/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package validate

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func newSigningKey(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("test", "", "test@example.test", nil)
	require.NoError(t, err)
	return entity
}

func sign(t *testing.T, signer *openpgp.Entity, message []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&buf, signer, bytes.NewReader(message), nil))
	return buf.String()
}

type recordingValidatedSink struct {
	results []pipeline.Result[model.ValidatedItem]
}

func (r *recordingValidatedSink) VisitContext(context.Context, *model.ProviderMetadata) error {
	return nil
}

func (r *recordingValidatedSink) VisitValidated(_ context.Context, item pipeline.Result[model.ValidatedItem]) error {
	r.results = append(r.results, item)
	return nil
}

func TestValidationVisitorPassesThroughRetrievalError(t *testing.T) {
	sink := &recordingValidatedSink{}
	v := New(nil, sink)

	require.NoError(t, v.VisitRetrieved(context.Background(), pipeline.Fail[model.RetrievedItem](assertErr)))
	require.Len(t, sink.results, 1)
	require.False(t, sink.results[0].OK())
	require.ErrorIs(t, sink.results[0].Err, assertErr)
}

func TestValidationVisitorDigestMismatch(t *testing.T) {
	sink := &recordingValidatedSink{}
	v := New(nil, sink)

	retrieved := model.RetrievedItem{
		Bytes:          []byte("payload"),
		ExpectedSHA256: "deadbeef",
		ComputedSHA256: "cafebabe",
	}
	require.NoError(t, v.VisitRetrieved(context.Background(), pipeline.Ok(retrieved)))

	require.Len(t, sink.results, 1)
	require.False(t, sink.results[0].OK())
	var mismatch *DigestMismatch
	require.ErrorAs(t, sink.results[0].Err, &mismatch)
	require.Equal(t, "sha256", mismatch.Algorithm)
}

func TestValidationVisitorAcceptsDigestOnly(t *testing.T) {
	sink := &recordingValidatedSink{}
	v := New(nil, sink)

	retrieved := model.RetrievedItem{
		Bytes:          []byte("payload"),
		ExpectedSHA256: "DEADBEEF",
		ComputedSHA256: "deadbeef",
	}
	require.NoError(t, v.VisitRetrieved(context.Background(), pipeline.Ok(retrieved)))

	require.Len(t, sink.results, 1)
	require.True(t, sink.results[0].OK())
	require.False(t, sink.results[0].Value.SignatureVerified)
}

func TestValidationVisitorVerifiesSignature(t *testing.T) {
	signer := newSigningKey(t)
	message := []byte(`{"document":"csaf"}`)
	armored := sign(t, signer, message)

	sink := &recordingValidatedSink{}
	v := New(openpgp.EntityList{signer}, sink)

	retrieved := model.RetrievedItem{Bytes: message, SignatureText: armored}
	require.NoError(t, v.VisitRetrieved(context.Background(), pipeline.Ok(retrieved)))

	require.Len(t, sink.results, 1)
	require.True(t, sink.results[0].OK())
	require.True(t, sink.results[0].Value.SignatureVerified)
}

func TestValidationVisitorRejectsUnknownSigner(t *testing.T) {
	signer := newSigningKey(t)
	other := newSigningKey(t)
	message := []byte(`{"document":"csaf"}`)
	armored := sign(t, signer, message)

	sink := &recordingValidatedSink{}
	v := New(openpgp.EntityList{other}, sink)

	retrieved := model.RetrievedItem{Bytes: message, SignatureText: armored}
	require.NoError(t, v.VisitRetrieved(context.Background(), pipeline.Ok(retrieved)))

	require.Len(t, sink.results, 1)
	require.False(t, sink.results[0].OK())
	var sigErr *SignatureError
	require.ErrorAs(t, sink.results[0].Err, &sigErr)
}

var assertErr = errDummy("fetch failed")

type errDummy string

func (e errDummy) Error() string { return string(e) }

func TestArmoredSignatureSurvivesIntegrityCheck(t *testing.T) {
	signer := newSigningKey(t)
	armored := sign(t, signer, []byte("hello"))
	require.True(t, strings.Contains(armored, "BEGIN PGP SIGNATURE"))
}
