/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package filter implements the pre-retrieval Discovered-stage filters
// (skip-if-up-to-date, block/allow by name, duplicate detection) and the
// post-validation SkipFailedVisitor.
package filter

import (
	"context"
	"strings"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
)

// FilteringVisitor drops discovered items by distribution URL or filename
// prefix. An allow-prefix list wins over the block list: if any allow
// prefixes are configured, only items matching one of them pass, regardless
// of the block lists.
type FilteringVisitor struct {
	BlockDistributionURLs []string
	BlockFilenamePrefixes []string
	AllowFilenamePrefixes []string

	Next pipeline.DiscoveredSink
}

// New builds a FilteringVisitor forwarding to next.
func New(next pipeline.DiscoveredSink) *FilteringVisitor {
	return &FilteringVisitor{Next: next}
}

func (v *FilteringVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return v.Next.VisitContext(ctx, md)
}

func (v *FilteringVisitor) VisitDiscovered(ctx context.Context, item model.DiscoveredItem) error {
	if !v.allows(item) {
		return nil
	}
	return v.Next.VisitDiscovered(ctx, item)
}

func (v *FilteringVisitor) allows(item model.DiscoveredItem) bool {
	name := filename(item.URL)

	if len(v.AllowFilenamePrefixes) > 0 {
		return hasAnyPrefix(name, v.AllowFilenamePrefixes)
	}
	for _, blocked := range v.BlockDistributionURLs {
		if item.DistributionURL == blocked {
			return false
		}
	}
	if hasAnyPrefix(name, v.BlockFilenamePrefixes) {
		return false
	}
	return true
}

func filename(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
