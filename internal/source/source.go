/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package source implements the two publisher Source variants: HTTPSource,
// which discovers a publisher's metadata over the network and fetches
// documents with their sidecars, and FileSource, which reads an on-disk
// mirror written by the store package.
package source

import (
	"context"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
)

// Source abstracts a publisher's metadata, index, and document storage,
// regardless of whether it lives over HTTP or on local disk.
type Source interface {
	// LoadMetadata discovers and returns the publisher's provider metadata.
	LoadMetadata(ctx context.Context) (*model.ProviderMetadata, error)

	// LoadIndex enumerates the documents available in dist, filtered to
	// those modified at or after since (the zero Time disables filtering).
	LoadIndex(ctx context.Context, dist model.Distribution, since time.Time) ([]model.DiscoveredItem, error)

	// LoadAdvisory fetches item's bytes and whatever sidecars are present,
	// computing digests over the bytes as they are read.
	LoadAdvisory(ctx context.Context, item model.DiscoveredItem) (model.RetrievedItem, error)
}

// NotFoundError is returned by HTTPSource.LoadMetadata when every discovery
// approach fails to locate provider metadata.
type NotFoundError struct {
	Publisher string
}

func (e *NotFoundError) Error() string {
	return "no provider metadata found for " + e.Publisher
}
