/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package walker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	md    *model.ProviderMetadata
	index map[string][]model.DiscoveredItem
}

func (f *fakeSource) LoadMetadata(context.Context) (*model.ProviderMetadata, error) {
	return f.md, nil
}

func (f *fakeSource) LoadIndex(_ context.Context, dist model.Distribution, since time.Time) ([]model.DiscoveredItem, error) {
	items := f.index[dist.URL()]
	if since.IsZero() {
		return items, nil
	}
	var out []model.DiscoveredItem
	for _, it := range items {
		if it.Modified == nil || !it.Modified.Before(since) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeSource) LoadAdvisory(_ context.Context, item model.DiscoveredItem) (model.RetrievedItem, error) {
	return model.RetrievedItem{DiscoveredItem: item}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	ctxCalls int
	urls     []string
}

func (r *recordingSink) VisitContext(context.Context, *model.ProviderMetadata) error {
	r.ctxCalls++
	return nil
}

func (r *recordingSink) VisitDiscovered(_ context.Context, item model.DiscoveredItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, item.URL)
	return nil
}

func TestWalkerSequentialVisitsEveryItem(t *testing.T) {
	src := &fakeSource{
		md: &model.ProviderMetadata{
			Publisher:     "acme",
			Distributions: []model.Distribution{{DirectoryURL: "https://acme.test/advisories"}},
		},
		index: map[string][]model.DiscoveredItem{
			"https://acme.test/advisories": {
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/a.json"},
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/b.json"},
			},
		},
	}
	sink := &recordingSink{}
	w := New(src, sink, Config{})

	require.NoError(t, w.Walk(context.Background()))
	require.Equal(t, 1, sink.ctxCalls)
	require.Equal(t, []string{
		"https://acme.test/advisories/a.json",
		"https://acme.test/advisories/b.json",
	}, sink.urls)
}

func TestWalkerParallelVisitsEveryItemRegardlessOfOrder(t *testing.T) {
	var items []model.DiscoveredItem
	for i := 0; i < 20; i++ {
		items = append(items, model.DiscoveredItem{
			DistributionURL: "https://acme.test/advisories",
			URL:             fmt.Sprintf("https://acme.test/advisories/%d.json", i),
		})
	}
	src := &fakeSource{
		md: &model.ProviderMetadata{
			Distributions: []model.Distribution{{DirectoryURL: "https://acme.test/advisories"}},
		},
		index: map[string][]model.DiscoveredItem{"https://acme.test/advisories": items},
	}
	sink := &recordingSink{}
	w := New(src, sink, Config{Concurrency: 4})

	require.NoError(t, w.Walk(context.Background()))

	got := append([]string(nil), sink.urls...)
	sort.Strings(got)
	var want []string
	for _, it := range items {
		want = append(want, it.URL)
	}
	sort.Strings(want)
	require.Equal(t, want, got)
}

func TestWalkerSinceFiltersOlderItems(t *testing.T) {
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		md: &model.ProviderMetadata{
			Distributions: []model.Distribution{{DirectoryURL: "https://acme.test/advisories"}},
		},
		index: map[string][]model.DiscoveredItem{
			"https://acme.test/advisories": {
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/old.json", Modified: &older},
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/new.json", Modified: &newer},
			},
		},
	}
	sink := &recordingSink{}
	since := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	w := New(src, sink, Config{Since: since})

	require.NoError(t, w.Walk(context.Background()))
	require.Equal(t, []string{"https://acme.test/advisories/new.json"}, sink.urls)
}

func TestWalkerDistributionFilterExcludesWholeDistribution(t *testing.T) {
	src := &fakeSource{
		md: &model.ProviderMetadata{
			Distributions: []model.Distribution{
				{DirectoryURL: "https://acme.test/keep"},
				{DirectoryURL: "https://acme.test/skip"},
			},
		},
		index: map[string][]model.DiscoveredItem{
			"https://acme.test/keep": {{DistributionURL: "https://acme.test/keep", URL: "https://acme.test/keep/a.json"}},
			"https://acme.test/skip": {{DistributionURL: "https://acme.test/skip", URL: "https://acme.test/skip/a.json"}},
		},
	}
	sink := &recordingSink{}
	w := New(src, sink, Config{DistributionFilter: func(d model.Distribution) bool {
		return d.URL() == "https://acme.test/keep"
	}})

	require.NoError(t, w.Walk(context.Background()))
	require.Equal(t, []string{"https://acme.test/keep/a.json"}, sink.urls)
}

type fatalSink struct{ recordingSink }

func (f *fatalSink) VisitDiscovered(ctx context.Context, item model.DiscoveredItem) error {
	_ = f.recordingSink.VisitDiscovered(ctx, item)
	if item.URL == "https://acme.test/advisories/bad.json" {
		return pipeline.Fatal(fmt.Errorf("trust anchor mismatch"))
	}
	return nil
}

func TestWalkerAbortsOnFatalError(t *testing.T) {
	src := &fakeSource{
		md: &model.ProviderMetadata{
			Distributions: []model.Distribution{{DirectoryURL: "https://acme.test/advisories"}},
		},
		index: map[string][]model.DiscoveredItem{
			"https://acme.test/advisories": {
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/bad.json"},
			},
		},
	}
	sink := &fatalSink{}
	w := New(src, sink, Config{})

	err := w.Walk(context.Background())
	require.Error(t, err)
	require.True(t, pipeline.IsFatal(err))
}

func TestWalkerRecordsMetrics(t *testing.T) {
	src := &fakeSource{
		md: &model.ProviderMetadata{
			Distributions: []model.Distribution{{DirectoryURL: "https://acme.test/advisories"}},
		},
		index: map[string][]model.DiscoveredItem{
			"https://acme.test/advisories": {
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/a.json"},
				{DistributionURL: "https://acme.test/advisories", URL: "https://acme.test/advisories/bad.json"},
			},
		},
	}
	sink := &fatalSink{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	w := New(src, sink, Config{Metrics: metrics})

	_ = w.Walk(context.Background())

	require.Equal(t, float64(2), testutil.ToFloat64(metrics.documentsTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.errorsTotal))
}
