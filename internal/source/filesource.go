/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/changes"
	"github.com/chainguard-dev/advisory-sync/internal/layout"
	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// FileSource reads a publisher tree previously written by the store
// package: metadata/provider-metadata.json, metadata/keys/*.txt, and one
// percent-encoded directory per distribution.
type FileSource struct {
	Root string
}

// NewFile builds a FileSource rooted at root. root is resolved to an
// absolute path so the file:// URLs this source constructs map back to the
// same local paths regardless of the working directory.
func NewFile(root string) *FileSource {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &FileSource{Root: root}
}

// LoadMetadata reads metadata/provider-metadata.json and rewrites every
// distribution's directory URL to a local file:// URL so that LoadIndex and
// LoadAdvisory can resolve it without re-deriving the on-disk layout.
func (f *FileSource) LoadMetadata(_ context.Context) (*model.ProviderMetadata, error) {
	body, err := os.ReadFile(filepath.Join(f.Root, "metadata", "provider-metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("reading provider metadata: %w", err)
	}
	md, err := parseProviderMetadata(body)
	if err != nil {
		return nil, fmt.Errorf("parsing provider metadata: %w", err)
	}

	for i, d := range md.Distributions {
		original := d.URL()
		localDir := filepath.Join(f.Root, layout.EncodeDistDir(original))
		if d.IsFeed() {
			md.Distributions[i].FeedURL = "file://" + localDir
		} else {
			md.Distributions[i].DirectoryURL = "file://" + localDir
		}
	}

	keysDir := filepath.Join(f.Root, "metadata", "keys")
	entries, err := os.ReadDir(keysDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("scanning key store: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		fingerprint := strings.TrimSuffix(e.Name(), ".txt")
		md.PublicKeys = append(md.PublicKeys, model.PublicKeyRef{
			URL:         "file://" + filepath.Join(keysDir, e.Name()),
			Fingerprint: fingerprint,
		})
	}

	return md, nil
}

// LoadIndex reads changes.csv (directory distributions) or the stored ROLIE
// feed document from the local directory the distribution's URL was
// rewritten to point at.
func (f *FileSource) LoadIndex(_ context.Context, dist model.Distribution, since time.Time) ([]model.DiscoveredItem, error) {
	var items []model.DiscoveredItem
	var err error

	if dist.IsFeed() {
		body, rerr := os.ReadFile(localPath(dist.FeedURL))
		if rerr != nil {
			return nil, fmt.Errorf("reading stored ROLIE feed: %w", rerr)
		}
		items, err = changes.ParseROLIE(dist.FeedURL, body)
	} else {
		csvPath := filepath.Join(localPath(dist.DirectoryURL), "changes.csv")
		body, rerr := os.ReadFile(csvPath)
		if rerr != nil {
			return nil, fmt.Errorf("reading stored changes.csv: %w", rerr)
		}
		items, err = changes.ParseCSV(dist.DirectoryURL, body)
	}
	if err != nil {
		return nil, err
	}
	return changes.Since(items, since), nil
}

// LoadAdvisory reads item's document and any present sidecars from disk,
// computing digests over the bytes read.
func (f *FileSource) LoadAdvisory(_ context.Context, item model.DiscoveredItem) (model.RetrievedItem, error) {
	bodyPath := localPath(item.URL)

	result := model.RetrievedItem{DiscoveredItem: item}

	bytesRead, err := os.ReadFile(bodyPath)
	if err != nil {
		return model.RetrievedItem{}, fmt.Errorf("reading document: %w", err)
	}
	result.Bytes = bytesRead
	result.ComputedSHA256 = sha256Hex(bytesRead)
	result.ComputedSHA512 = sha512Hex(bytesRead)

	if sig, ok := readOptional(bodyPath + ".asc"); ok {
		result.SignatureText = string(sig)
	}
	if d, ok := readOptional(bodyPath + ".sha256"); ok {
		result.ExpectedSHA256 = firstToken(d)
	}
	if d, ok := readOptional(bodyPath + ".sha512"); ok {
		result.ExpectedSHA512 = firstToken(d)
	}

	if fi, err := os.Stat(bodyPath); err == nil {
		mt := fi.ModTime()
		result.RetrievalMetadata.LastModified = &mt
	}

	return result, nil
}

func readOptional(path string) ([]byte, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return b, true
}

func localPath(fileURL string) string {
	if p, ok := strings.CutPrefix(fileURL, "file://"); ok {
		return p
	}
	return fileURL
}
