/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func TestVisitVerifiedWritesDocumentAndSidecars(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	verified := model.VerifiedItem{
		ValidatedItem: model.ValidatedItem{
			RetrievedItem: model.RetrievedItem{
				DiscoveredItem: model.DiscoveredItem{
					DistributionURL: "https://acme.test/advisories",
					URL:             "https://acme.test/advisories/rhsa-2021.json",
				},
				Bytes:          []byte(`{"a":1}`),
				ExpectedSHA256: "deadbeef",
				ComputedSHA256: "deadbeef",
				SignatureText:  "-----BEGIN PGP SIGNATURE-----\n...\n",
			},
		},
	}

	require.NoError(t, s.VisitVerified(context.Background(), pipeline.Ok(verified)))

	dir := filepath.Join(root, "https%3A%2F%2Facme%2Etest%2Fadvisories")
	body, err := os.ReadFile(filepath.Join(dir, "rhsa-2021.json"))
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(body))

	sha, err := os.ReadFile(filepath.Join(dir, "rhsa-2021.json.sha256"))
	require.NoError(t, err)
	require.Equal(t, "deadbeef\n", string(sha))

	asc, err := os.ReadFile(filepath.Join(dir, "rhsa-2021.json.asc"))
	require.NoError(t, err)
	require.Contains(t, string(asc), "BEGIN PGP SIGNATURE")

	_, err = os.ReadFile(filepath.Join(dir, "rhsa-2021.json.sha512"))
	require.Error(t, err, "no sha512 sidecar was present upstream, so none should be written")
}

func TestVisitVerifiedDropsFailedItems(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	require.NoError(t, s.VisitVerified(context.Background(), pipeline.Fail[model.VerifiedItem](assertErr{})))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestExistsReportsStoredMTime(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	item := model.DiscoveredItem{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/a.json"}
	_, exists := s.Exists(item)
	require.False(t, exists)

	verified := model.VerifiedItem{ValidatedItem: model.ValidatedItem{RetrievedItem: model.RetrievedItem{
		DiscoveredItem: item,
		Bytes:          []byte("x"),
	}}}
	require.NoError(t, s.VisitVerified(context.Background(), pipeline.Ok(verified)))

	mtime, exists := s.Exists(item)
	require.True(t, exists)
	require.WithinDuration(t, time.Now(), mtime, time.Minute)
}

func TestWriteMetadataWritesProviderMetadata(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	md := &model.ProviderMetadata{
		CanonicalURL: "https://acme.test/provider-metadata.json",
		Publisher:    "Acme",
		Role:         model.RolePublisher,
		Distributions: []model.Distribution{
			{DirectoryURL: "https://acme.test/advisories"},
			{FeedURL: "https://acme.test/feed.json"},
		},
		PublicKeys: []model.PublicKeyRef{{URL: "https://acme.test/key.asc", Fingerprint: "abc"}},
	}
	require.NoError(t, s.WriteMetadata(md))

	body, err := os.ReadFile(filepath.Join(root, "metadata", "provider-metadata.json"))
	require.NoError(t, err)
	require.Contains(t, string(body), "Acme")
	require.Contains(t, string(body), "feed_url")
}
