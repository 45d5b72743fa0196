/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package store implements the StoreVisitor: the terminal sink that
// persists a verified document tree to disk in the layout FileSource reads
// back, including digest/signature sidecars, mtime, and (where supported)
// the upstream ETag as an extended attribute.
package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/chainguard-dev/advisory-sync/internal/layout"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/clog"
)

// Store writes the full validated tree to Root, mirroring the layout a
// FileSource later reads back.
type Store struct {
	Root string

	// SuppressMTime disables setting the stored file's mtime from retrieval
	// metadata / the feed's modified timestamp.
	SuppressMTime bool
	// SuppressXattr disables writing the upstream ETag as an extended
	// attribute.
	SuppressXattr bool
}

// New builds a Store rooted at root.
func New(root string) *Store {
	return &Store{Root: root}
}

// WriteMetadata serializes md to Root/metadata/provider-metadata.json.
func (s *Store) WriteMetadata(md *model.ProviderMetadata) error {
	dir := filepath.Join(s.Root, "metadata")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating metadata dir: %w", err)
	}

	body, err := json.MarshalIndent(toProviderMetadataJSON(md), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding provider metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "provider-metadata.json"), body, 0o644); err != nil {
		return fmt.Errorf("writing provider metadata: %w", err)
	}
	return nil
}

// WriteKeys ASCII-armors every entity in ring and writes it to
// Root/metadata/keys/{fingerprint}.txt, one file per entity.
func (s *Store) WriteKeys(ring openpgp.EntityList) error {
	dir := filepath.Join(s.Root, "metadata", "keys")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating keys dir: %w", err)
	}

	for _, entity := range ring {
		fp := hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])

		var buf bytes.Buffer
		w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
		if err != nil {
			return fmt.Errorf("armoring key %s: %w", fp, err)
		}
		if err := entity.Serialize(w); err != nil {
			return fmt.Errorf("serializing key %s: %w", fp, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("closing armor for key %s: %w", fp, err)
		}

		if err := os.WriteFile(filepath.Join(dir, fp+".txt"), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing key %s: %w", fp, err)
		}
	}
	return nil
}

// VisitContext is a no-op: the metadata snapshot and key ring are written
// once by the Runner via WriteMetadata/WriteKeys, not per walk-context
// visit, because the ring itself (not just the PublicKeyRef list on
// ProviderMetadata) is only available to the code that built it.
func (s *Store) VisitContext(context.Context, *model.ProviderMetadata) error { return nil }

// VisitVerified persists the document and its present sidecars, mirroring
// the distribution's on-disk layout. A verification-stage or earlier error
// is logged and dropped: nothing is written for an item that never reached
// an accepted state.
func (s *Store) VisitVerified(ctx context.Context, item pipeline.Result[model.VerifiedItem]) error {
	if !item.OK() {
		clog.FromContext(ctx).Warnf("not storing failed item: %v", item.Err)
		return nil
	}
	verified := item.Value

	if len(verified.FailedChecks) > 0 {
		clog.FromContext(ctx).With("url", verified.URL).With("failed_checks", len(verified.FailedChecks)).
			Warnf("storing item with structural check failures")
	}

	if err := s.write(verified); err != nil {
		clog.FromContext(ctx).With("url", verified.URL).Warnf("storing item: %v", err)
		return fmt.Errorf("storing %s: %w", verified.URL, err)
	}
	return nil
}

func (s *Store) write(item model.VerifiedItem) error {
	dir := filepath.Join(s.Root, layout.EncodeDistDir(item.DistributionURL))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating distribution dir: %w", err)
	}

	path := filepath.Join(dir, filename(item.URL))
	if err := os.WriteFile(path, item.Bytes, 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}

	if item.HasSHA256() {
		if err := os.WriteFile(path+".sha256", []byte(item.ComputedSHA256+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing sha256 sidecar: %w", err)
		}
	}
	if item.HasSHA512() {
		if err := os.WriteFile(path+".sha512", []byte(item.ComputedSHA512+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing sha512 sidecar: %w", err)
		}
	}
	if item.HasSignature() {
		if err := os.WriteFile(path+".asc", []byte(item.SignatureText), 0o644); err != nil {
			return fmt.Errorf("writing signature sidecar: %w", err)
		}
	}

	if !s.SuppressMTime {
		mtime := item.RetrievalMetadata.LastModified
		if mtime == nil {
			mtime = item.Modified
		}
		if mtime != nil {
			if err := os.Chtimes(path, time.Now(), *mtime); err != nil {
				return fmt.Errorf("setting mtime: %w", err)
			}
		}
	}

	if !s.SuppressXattr && item.RetrievalMetadata.ETag != "" {
		if err := setETagXattr(path, item.RetrievalMetadata.ETag); err != nil {
			clog.FromContext(context.Background()).With("url", item.URL).Warnf("setting etag xattr: %v", err)
		}
	}

	return nil
}

// Exists implements filter.ExistenceChecker against this store's tree.
func (s *Store) Exists(item model.DiscoveredItem) (time.Time, bool) {
	dir := filepath.Join(s.Root, layout.EncodeDistDir(item.DistributionURL))
	path := filepath.Join(dir, filename(item.URL))

	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

func filename(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return url
}

type providerMetadataJSON struct {
	CanonicalURL string `json:"canonical_url"`
	LastUpdated  string `json:"last_updated,omitempty"`
	Publisher    struct {
		Name string `json:"name"`
	} `json:"publisher"`
	Role          string                    `json:"role"`
	Distributions []distributionJSON        `json:"distributions"`
	PublicKeys    []publicKeyRefJSON        `json:"public_openpgp_keys,omitempty"`
}

type distributionJSON struct {
	DirectoryURL string           `json:"directory_url,omitempty"`
	Rolie        *rolieFeedURLRef `json:"rolie,omitempty"`
}

type rolieFeedURLRef struct {
	FeedURL string `json:"feed_url"`
}

type publicKeyRefJSON struct {
	URL         string `json:"url"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func toProviderMetadataJSON(md *model.ProviderMetadata) providerMetadataJSON {
	out := providerMetadataJSON{
		CanonicalURL: md.CanonicalURL,
		Role:         string(md.Role),
	}
	out.Publisher.Name = md.Publisher
	if !md.LastUpdated.IsZero() {
		out.LastUpdated = md.LastUpdated.Format(time.RFC3339)
	}
	for _, d := range md.Distributions {
		if d.IsFeed() {
			out.Distributions = append(out.Distributions, distributionJSON{Rolie: &rolieFeedURLRef{FeedURL: d.FeedURL}})
		} else {
			out.Distributions = append(out.Distributions, distributionJSON{DirectoryURL: d.DirectoryURL})
		}
	}
	for _, k := range md.PublicKeys {
		out.PublicKeys = append(out.PublicKeys, publicKeyRefJSON{URL: k.URL, Fingerprint: k.Fingerprint})
	}
	return out
}
