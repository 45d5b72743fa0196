/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package model holds the data types that flow through the mirroring and
// verification pipeline: provider metadata, distributions, and the four
// progressively enriched item shapes (discovered, retrieved, validated,
// verified) described by the pipeline's visitor chain.
package model

import (
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Role is a publisher's declared role in its provider metadata.
type Role string

// Roles recognized in CSAF provider metadata.
const (
	RolePublisher       Role = "publisher"
	RoleProvider        Role = "provider"
	RoleTrustedProvider Role = "trusted_provider"
)

// PublicKeyRef is a pointer to a trust anchor advertised in provider
// metadata: a URL to fetch the key material from, and an optional
// fingerprint the fetched certs must match.
type PublicKeyRef struct {
	URL         string
	Fingerprint string // empty if the publisher did not pin a fingerprint
}

// Distribution is one source of documents for a publisher: either a
// directory of JSON files with a changes.csv sibling, or a ROLIE feed. Only
// one of DirectoryURL/FeedURL is set.
type Distribution struct {
	DirectoryURL string
	FeedURL      string
}

// IsFeed reports whether this distribution is a ROLIE feed rather than a
// directory listing.
func (d Distribution) IsFeed() bool {
	return d.FeedURL != ""
}

// URL returns whichever of DirectoryURL/FeedURL is set, for logging and
// DocumentKey construction.
func (d Distribution) URL() string {
	if d.IsFeed() {
		return d.FeedURL
	}
	return d.DirectoryURL
}

// ProviderMetadata is the discovery document for one publisher: its
// canonical location, identity, and the distributions/keys it advertises.
// Materialized once per walk and shared immutably thereafter.
type ProviderMetadata struct {
	CanonicalURL  string
	LastUpdated   time.Time
	Publisher     string
	Role          Role
	Distributions []Distribution
	PublicKeys    []PublicKeyRef
}

// DiscoveredItem is one document found during index enumeration. URL is
// always absolute. Modified is the authoritative last-change time from the
// feed (never the server's Last-Modified header) and is nil when the source
// did not provide one.
type DiscoveredItem struct {
	DistributionURL string
	URL             string
	Modified        *time.Time
}

// Key identifies a document for deduplication and reporting purposes: the
// distribution it came from plus its URL relative to nothing in particular —
// just the pair that makes an item unique within a walk.
func (d DiscoveredItem) Key() DocumentKey {
	return DocumentKey{DistributionURL: d.DistributionURL, RelativeURL: d.URL}
}

// DocumentKey uniquely identifies a document within a walk.
type DocumentKey struct {
	DistributionURL string
	RelativeURL     string
}

// RetrievalMetadata carries the upstream caching headers observed while
// fetching a document.
type RetrievalMetadata struct {
	ETag         string
	LastModified *time.Time
}

// RetrievedItem is a DiscoveredItem enriched with the fetched bytes and
// whatever sidecars were present. A present digest's Computed value was
// accumulated over exactly the bytes stored in Bytes — no buffering path
// may exist in which bytes escape the hash.
type RetrievedItem struct {
	DiscoveredItem

	Bytes []byte

	SignatureText string // empty if no .asc sidecar was present

	ExpectedSHA256 string // empty if no .sha256 sidecar was present
	ComputedSHA256 string
	ExpectedSHA512 string // empty if no .sha512 sidecar was present
	ComputedSHA512 string

	RetrievalMetadata RetrievalMetadata
}

// HasSHA256 reports whether a .sha256 sidecar was present.
func (r RetrievedItem) HasSHA256() bool { return r.ExpectedSHA256 != "" }

// HasSHA512 reports whether a .sha512 sidecar was present.
func (r RetrievedItem) HasSHA512() bool { return r.ExpectedSHA512 != "" }

// HasSignature reports whether a .asc sidecar was present.
func (r RetrievedItem) HasSignature() bool { return r.SignatureText != "" }

// ValidatedItem is a RetrievedItem that passed digest comparison and, if a
// signature was present, signature verification.
type ValidatedItem struct {
	RetrievedItem

	SignatureVerified bool // true only if a signature was present and verified
}

// CheckFailures maps a structural check's id to the human-readable messages
// it produced. An id with no entry here passed.
type CheckFailures map[string][]string

// VerifiedItem is a ValidatedItem whose payload was parsed and run through
// the structural check table. Structural failures are non-fatal: they are
// recorded here, not rejected.
type VerifiedItem struct {
	ValidatedItem

	Document map[string]any

	PassedChecks []string
	FailedChecks CheckFailures
}

// PublicKey is a parsed OpenPGP trust anchor. If ExpectedFingerprint is set,
// every entry in Certs must have a matching fingerprint — enforced by the
// KeySource at load time, not here.
type PublicKey struct {
	Certs               openpgp.EntityList
	Raw                 []byte
	ExpectedFingerprint string
}

// SinceCursor is the persisted "last successful run" marker.
type SinceCursor struct {
	LastRun time.Time `json:"last_run"`
}

// ReportEntry is one row of the report-statistics file: a single walk's
// outcome. Entries are maintained in ascending Timestamp order.
type ReportEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Total         int       `json:"total"`
	Errors        int       `json:"errors"`
	Warnings      int       `json:"warnings"`
	TotalErrors   int       `json:"total_errors"`
	TotalWarnings int       `json:"total_warnings"`
}
