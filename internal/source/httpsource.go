/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/changes"
	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// HTTPSource discovers and fetches a publisher's documents over HTTP.
type HTTPSource struct {
	// Publisher is either a full URL or a bare domain, per §6 of the spec.
	Publisher string
	Fetcher   *fetcher.Fetcher
}

// New builds an HTTPSource for the given publisher string.
func New(publisher string, f *fetcher.Fetcher) *HTTPSource {
	return &HTTPSource{Publisher: publisher, Fetcher: f}
}

// discoveryApproach is one of the five fallback strategies in §4.2.
type discoveryApproach func(s *HTTPSource, ctx context.Context) (*model.ProviderMetadata, error)

var discoveryApproaches = []discoveryApproach{
	(*HTTPSource).discoverDirectURL,
	(*HTTPSource).discoverWellKnown,
	(*HTTPSource).discoverSecurityTXTWellKnown,
	(*HTTPSource).discoverSecurityTXTLegacy,
	(*HTTPSource).discoverDNS,
}

// LoadMetadata attempts each discovery approach in order until one
// succeeds, per §4.2.
func (s *HTTPSource) LoadMetadata(ctx context.Context) (*model.ProviderMetadata, error) {
	for i, approach := range discoveryApproaches {
		md, err := approach(s, ctx)
		if err != nil {
			return nil, fmt.Errorf("discovery approach %d: %w", i+1, err)
		}
		if md != nil {
			clog.FromContext(ctx).With("publisher", s.Publisher).With("approach", i+1).Info("discovered provider metadata")
			return md, nil
		}
	}
	return nil, &NotFoundError{Publisher: s.Publisher}
}

// domain returns the bare host component of s.Publisher, whether it was
// given as a full URL or already a bare domain.
func (s *HTTPSource) domain() string {
	if u, err := url.Parse(s.Publisher); err == nil && u.Host != "" {
		return u.Host
	}
	return s.Publisher
}

// fetchOptionalMetadata fetches url and parses it as provider metadata,
// treating any failure (404, connection refused, malformed JSON) as "not
// found" so the caller can fall through to the next discovery approach.
func (s *HTTPSource) fetchOptionalMetadata(ctx context.Context, url string) (*model.ProviderMetadata, error) {
	body, ok, err := s.Fetcher.FetchOptionalBytes(ctx, url)
	if err != nil || !ok {
		return nil, nil //nolint:nilerr // fallthrough to next discovery approach is intentional
	}
	md, err := parseProviderMetadata(body)
	if err != nil {
		clog.FromContext(ctx).With("url", url).Warnf("ignoring malformed provider metadata: %v", err)
		return nil, nil
	}
	return md, nil
}

func (s *HTTPSource) discoverDirectURL(ctx context.Context) (*model.ProviderMetadata, error) {
	if !strings.HasPrefix(s.Publisher, "https://") && !strings.HasPrefix(s.Publisher, "http://") {
		return nil, nil
	}
	return s.fetchOptionalMetadata(ctx, s.Publisher)
}

func (s *HTTPSource) discoverWellKnown(ctx context.Context) (*model.ProviderMetadata, error) {
	return s.fetchOptionalMetadata(ctx, "https://"+s.domain()+"/.well-known/csaf/provider-metadata.json")
}

func (s *HTTPSource) discoverSecurityTXTWellKnown(ctx context.Context) (*model.ProviderMetadata, error) {
	return s.discoverViaSecurityTXT(ctx, "https://"+s.domain()+"/.well-known/security.txt")
}

func (s *HTTPSource) discoverSecurityTXTLegacy(ctx context.Context) (*model.ProviderMetadata, error) {
	return s.discoverViaSecurityTXT(ctx, "https://"+s.domain()+"/security.txt")
}

func (s *HTTPSource) discoverViaSecurityTXT(ctx context.Context, securityTXTURL string) (*model.ProviderMetadata, error) {
	body, ok, err := s.Fetcher.FetchOptionalBytes(ctx, securityTXTURL)
	if err != nil || !ok {
		return nil, nil //nolint:nilerr
	}
	csafURL, ok := findCSAFExtension(body)
	if !ok {
		return nil, nil
	}
	return s.fetchOptionalMetadata(ctx, csafURL)
}

func (s *HTTPSource) discoverDNS(ctx context.Context) (*model.ProviderMetadata, error) {
	dnsURL := "https://csaf.data.security." + s.domain() + "/provider-metadata.json"
	body, ok, err := s.Fetcher.FetchOptionalBytes(ctx, dnsURL)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	md, err := parseProviderMetadata(body)
	if err != nil {
		return nil, fmt.Errorf("parsing provider metadata from %s: %w", dnsURL, err)
	}
	return md, nil
}

// findCSAFExtension parses a security.txt body per RFC 9116 and returns the
// first "CSAF:" field value that parses as an https:// URL.
func findCSAFExtension(body []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "CSAF") {
			continue
		}
		value = strings.TrimSpace(value)
		if u, err := url.Parse(value); err == nil && u.Scheme == "https" {
			return value, true
		}
	}
	return "", false
}

type providerMetadataJSON struct {
	CanonicalURL string `json:"canonical_url"`
	LastUpdated  string `json:"last_updated"`
	Publisher    struct {
		Name string `json:"name"`
	} `json:"publisher"`
	Role          string `json:"role"`
	Distributions []struct {
		DirectoryURL string `json:"directory_url"`
		Rolie        *struct {
			FeedURL string `json:"feed_url"`
		} `json:"rolie"`
	} `json:"distributions"`
	PublicOpenPGPKeys []struct {
		URL         string `json:"url"`
		Fingerprint string `json:"fingerprint"`
	} `json:"public_openpgp_keys"`
}

func parseProviderMetadata(body []byte) (*model.ProviderMetadata, error) {
	var raw providerMetadataJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	md := &model.ProviderMetadata{
		CanonicalURL: raw.CanonicalURL,
		Publisher:    raw.Publisher.Name,
		Role:         model.Role(raw.Role),
	}
	if raw.LastUpdated != "" {
		t, err := time.Parse(time.RFC3339, raw.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("parsing last_updated: %w", err)
		}
		md.LastUpdated = t
	}
	for _, d := range raw.Distributions {
		if d.Rolie != nil && d.Rolie.FeedURL != "" {
			md.Distributions = append(md.Distributions, model.Distribution{FeedURL: d.Rolie.FeedURL})
		}
		if d.DirectoryURL != "" {
			md.Distributions = append(md.Distributions, model.Distribution{DirectoryURL: d.DirectoryURL})
		}
	}
	for _, k := range raw.PublicOpenPGPKeys {
		md.PublicKeys = append(md.PublicKeys, model.PublicKeyRef{URL: k.URL, Fingerprint: k.Fingerprint})
	}
	return md, nil
}

// LoadIndex enumerates dist's documents, applying the since filter.
func (s *HTTPSource) LoadIndex(ctx context.Context, dist model.Distribution, since time.Time) ([]model.DiscoveredItem, error) {
	var items []model.DiscoveredItem
	var err error

	if dist.IsFeed() {
		body, ferr := s.Fetcher.FetchBytes(ctx, dist.FeedURL)
		if ferr != nil {
			return nil, fmt.Errorf("fetching ROLIE feed: %w", ferr)
		}
		items, err = changes.ParseROLIE(dist.FeedURL, body)
	} else {
		csvURL := strings.TrimSuffix(dist.DirectoryURL, "/") + "/changes.csv"
		body, ferr := s.Fetcher.FetchBytes(ctx, csvURL)
		if ferr != nil {
			return nil, fmt.Errorf("fetching changes.csv: %w", ferr)
		}
		items, err = changes.ParseCSV(dist.DirectoryURL, body)
	}
	if err != nil {
		return nil, err
	}
	return changes.Since(items, since), nil
}

// LoadAdvisory fetches item's document and sidecars concurrently, computing
// digests over the document bytes as they stream in.
func (s *HTTPSource) LoadAdvisory(ctx context.Context, item model.DiscoveredItem) (model.RetrievedItem, error) {
	result := model.RetrievedItem{DiscoveredItem: item}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		body, ok, err := s.Fetcher.FetchOptionalBytes(ctx, item.URL+".asc")
		if err != nil {
			return fmt.Errorf("fetching signature sidecar: %w", err)
		}
		if ok {
			result.SignatureText = string(body)
		}
		return nil
	})
	g.Go(func() error {
		digest, err := fetchDigestSidecar(ctx, s.Fetcher, item.URL+".sha256")
		if err != nil {
			return fmt.Errorf("fetching sha256 sidecar: %w", err)
		}
		result.ExpectedSHA256 = digest
		return nil
	})
	g.Go(func() error {
		digest, err := fetchDigestSidecar(ctx, s.Fetcher, item.URL+".sha512")
		if err != nil {
			return fmt.Errorf("fetching sha512 sidecar: %w", err)
		}
		result.ExpectedSHA512 = digest
		return nil
	})
	g.Go(func() error {
		stream, err := s.Fetcher.FetchStream(ctx, item.URL)
		if err != nil {
			return fmt.Errorf("fetching document: %w", err)
		}
		defer stream.Close()

		h256 := sha256.New()
		h512 := sha512.New()
		var buf bytes.Buffer
		if _, err := io.Copy(io.MultiWriter(&buf, h256, h512), stream); err != nil {
			return fmt.Errorf("streaming document: %w", err)
		}

		result.Bytes = buf.Bytes()
		result.ComputedSHA256 = hex.EncodeToString(h256.Sum(nil))
		result.ComputedSHA512 = hex.EncodeToString(h512.Sum(nil))
		result.RetrievalMetadata = model.RetrievalMetadata{
			ETag:         stream.ETag,
			LastModified: stream.LastModified,
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.RetrievedItem{}, err
	}
	return result, nil
}

// fetchDigestSidecar fetches an optional digest sidecar and extracts the
// first whitespace-delimited token of its first line, lowercased.
func fetchDigestSidecar(ctx context.Context, f *fetcher.Fetcher, url string) (string, error) {
	body, ok, err := f.FetchOptionalBytes(ctx, url)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return firstToken(body), nil
}

func firstToken(body []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(body))
	if !sc.Scan() {
		return ""
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
