/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package keysource fetches and parses the OpenPGP trust anchors advertised
// in a publisher's provider metadata.
package keysource

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/clog"
)

// FingerprintMismatch is returned when a PublicKeyRef pins a fingerprint
// that a fetched cert does not match. It is always fatal to the walk.
type FingerprintMismatch struct {
	URL      string
	Expected string
	Actual   string
}

func (e *FingerprintMismatch) Error() string {
	return fmt.Sprintf("key %s: fingerprint mismatch: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// KeySource fetches and parses public-key trust anchors.
type KeySource struct {
	Fetcher *fetcher.Fetcher
}

// New builds a KeySource backed by f.
func New(f *fetcher.Fetcher) *KeySource {
	return &KeySource{Fetcher: f}
}

// LoadPublicKey fetches the key material at ref.URL (a file:// URL, as
// FileSource produces, is read from local disk) and parses it as an
// OpenPGP certificate stream (ASCII-armoured or binary). If ref.Fingerprint
// is set, every parsed cert must match it, or this returns
// *FingerprintMismatch.
func (k *KeySource) LoadPublicKey(ctx context.Context, ref model.PublicKeyRef) (*model.PublicKey, error) {
	var raw []byte
	var err error
	if p, ok := strings.CutPrefix(ref.URL, "file://"); ok {
		raw, err = os.ReadFile(p)
	} else {
		raw, err = k.Fetcher.FetchBytes(ctx, ref.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching key %s: %w", ref.URL, err)
	}

	certs, err := parseCertStream(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", ref.URL, err)
	}

	if ref.Fingerprint != "" {
		want := normalizeFingerprint(ref.Fingerprint)
		for _, c := range certs {
			got := hex.EncodeToString(c.PrimaryKey.Fingerprint[:])
			if got != want {
				return nil, &FingerprintMismatch{URL: ref.URL, Expected: want, Actual: got}
			}
		}
	}

	clog.FromContext(ctx).With("url", ref.URL).With("certs", len(certs)).Info("loaded public key")

	return &model.PublicKey{
		Certs:               certs,
		Raw:                 raw,
		ExpectedFingerprint: ref.Fingerprint,
	}, nil
}

// LoadAll fetches every key reference in md.PublicKeys and deduplicates the
// resulting certs by fingerprint.
func (k *KeySource) LoadAll(ctx context.Context, md *model.ProviderMetadata) (openpgp.EntityList, error) {
	seen := map[string]bool{}
	var ring openpgp.EntityList

	for _, ref := range md.PublicKeys {
		pk, err := k.LoadPublicKey(ctx, ref)
		if err != nil {
			return nil, err
		}
		for _, c := range pk.Certs {
			fp := hex.EncodeToString(c.PrimaryKey.Fingerprint[:])
			if seen[fp] {
				continue
			}
			seen[fp] = true
			ring = append(ring, c)
		}
	}
	return ring, nil
}

func parseCertStream(raw []byte) (openpgp.EntityList, error) {
	if looksArmored(raw) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(raw))
}

func looksArmored(raw []byte) bool {
	return bytes.Contains(raw[:min(len(raw), 64)], []byte("-----BEGIN PGP"))
}

func normalizeFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(fp, " ", ""))
}
