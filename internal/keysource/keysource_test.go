/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package keysource

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) (*openpgp.Entity, string) {
	t.Helper()
	entity, err := openpgp.NewEntity("test", "", "test@example.test", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	return entity, buf.String()
}

func serveKey(t *testing.T, armored string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(armored))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLoadPublicKeyNoFingerprintPin(t *testing.T) {
	entity, armored := newTestKey(t)
	url := serveKey(t, armored)

	ks := New(fetcher.New(fetcher.Config{}))
	pk, err := ks.LoadPublicKey(context.Background(), model.PublicKeyRef{URL: url})
	require.NoError(t, err)
	require.Len(t, pk.Certs, 1)
	require.Equal(t, hex.EncodeToString(entity.PrimaryKey.Fingerprint[:]), hex.EncodeToString(pk.Certs[0].PrimaryKey.Fingerprint[:]))
}

func TestLoadPublicKeyFingerprintMatch(t *testing.T) {
	entity, armored := newTestKey(t)
	url := serveKey(t, armored)
	fp := hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])

	ks := New(fetcher.New(fetcher.Config{}))
	_, err := ks.LoadPublicKey(context.Background(), model.PublicKeyRef{URL: url, Fingerprint: fp})
	require.NoError(t, err)
}

func TestLoadPublicKeyFingerprintMismatch(t *testing.T) {
	_, armored := newTestKey(t)
	url := serveKey(t, armored)

	ks := New(fetcher.New(fetcher.Config{}))
	_, err := ks.LoadPublicKey(context.Background(), model.PublicKeyRef{URL: url, Fingerprint: "0000000000000000000000000000000000000000"})
	require.Error(t, err)
	var mismatch *FingerprintMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestLoadAllDeduplicatesByFingerprint(t *testing.T) {
	_, armored := newTestKey(t)
	url := serveKey(t, armored)

	md := &model.ProviderMetadata{
		PublicKeys: []model.PublicKeyRef{{URL: url}, {URL: url}},
	}

	ks := New(fetcher.New(fetcher.Config{}))
	ring, err := ks.LoadAll(context.Background(), md)
	require.NoError(t, err)
	require.Len(t, ring, 1)
}
