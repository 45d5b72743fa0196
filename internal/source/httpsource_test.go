/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/stretchr/testify/require"
)

const sampleMetadata = `{
	"canonical_url": "https://example.test/provider-metadata.json",
	"last_updated": "2024-01-01T00:00:00Z",
	"publisher": {"name": "Example Publisher"},
	"role": "provider",
	"distributions": [{"directory_url": "https://example.test/advisories"}],
	"public_openpgp_keys": [{"url": "https://example.test/key.asc", "fingerprint": "ABCD"}]
}`

func TestDiscoverDirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleMetadata))
	}))
	t.Cleanup(srv.Close)

	s := New(srv.URL, fetcher.New(fetcher.Config{}))
	md, err := s.LoadMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Example Publisher", md.Publisher)
	require.Len(t, md.Distributions, 1)
	require.Len(t, md.PublicKeys, 1)
}

func TestDiscoverDirectURLSkipsBareHost(t *testing.T) {
	// discoverDirectURL only fires for an http(s)://-prefixed publisher
	// string; a bare domain falls through to the remaining approaches.
	s := New("example.test", fetcher.New(fetcher.Config{}))
	md, err := s.discoverDirectURL(context.Background())
	require.NoError(t, err)
	require.Nil(t, md)
}

func TestDiscoverViaSecurityTXTParsesCSAFField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/security.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Contact: mailto:security@example.test\nCSAF: https://unreachable.invalid/provider-metadata.json\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := &HTTPSource{Publisher: "example.test", Fetcher: fetcher.New(fetcher.Config{MaxRetries: 1})}
	// The referenced CSAF URL is unreachable, so fetchOptionalMetadata
	// swallows the error and this returns a nil, nil fallthrough rather
	// than surfacing a network error to the caller.
	md, err := s.discoverViaSecurityTXT(context.Background(), srv.URL+"/.well-known/security.txt")
	require.NoError(t, err)
	require.Nil(t, md)
}

func TestDiscoverViaSecurityTXTNoField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/security.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Contact: mailto:security@example.test\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := &HTTPSource{Publisher: "example.test", Fetcher: fetcher.New(fetcher.Config{})}
	md, err := s.discoverViaSecurityTXT(context.Background(), srv.URL+"/.well-known/security.txt")
	require.NoError(t, err)
	require.Nil(t, md)
}

func TestFindCSAFExtensionIgnoresNonHTTPS(t *testing.T) {
	body := []byte("Contact: mailto:security@example.test\nCSAF: http://insecure.test/x\nCSAF: https://good.test/x\n")
	url, ok := findCSAFExtension(body)
	require.True(t, ok)
	require.Equal(t, "https://good.test/x", url)
}

func TestLoadIndexDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/advisories/changes.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a.json,2023-01-01T00:00:00Z\nb.json,2024-01-01T00:00:00Z\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := New(srv.URL, fetcher.New(fetcher.Config{}))
	dist := model.Distribution{DirectoryURL: srv.URL + "/advisories"}

	items, err := s.LoadIndex(context.Background(), dist, time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	since := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	filtered, err := s.LoadIndex(context.Background(), dist, since)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestLoadAdvisoryStreamsDigest(t *testing.T) {
	payload := []byte("hello world")
	sum := sha256.Sum256(payload)
	expected := hex.EncodeToString(sum[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/doc.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/doc.json.sha256", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(expected + "  doc.json\n"))
	})
	mux.HandleFunc("/doc.json.sha512", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/doc.json.asc", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := New(srv.URL, fetcher.New(fetcher.Config{}))
	item := model.DiscoveredItem{DistributionURL: srv.URL, URL: srv.URL + "/doc.json"}

	retrieved, err := s.LoadAdvisory(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, expected, retrieved.ExpectedSHA256)
	require.Equal(t, expected, retrieved.ComputedSHA256)
	require.Equal(t, "", retrieved.ExpectedSHA512)
	require.Equal(t, "", retrieved.SignatureText)
	require.Equal(t, payload, retrieved.Bytes)
}
