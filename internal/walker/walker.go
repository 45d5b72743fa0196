/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package walker drives a top-level walk over a publisher's distributions,
// feeding every discovered item into a DiscoveredSink. It is the one place
// in the pipeline that knows about sequential vs. bounded-parallel
// scheduling; every visitor downstream is written against one item at a
// time and does not care which mode produced it.
package walker

import (
	"context"
	"sync"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/advisory-sync/internal/source"
	"github.com/chainguard-dev/clog"
)

// ProgressObserver receives at most one Tick per item processed, plus a
// SetMessage carrying the document's leaf file name before the item enters
// the visitor chain. Implementations must be safe for concurrent use: the
// bounded-parallel Walker calls both methods from multiple goroutines.
type ProgressObserver interface {
	Tick()
	SetMessage(name string)
}

// noopProgress discards every call; used when the caller does not supply an
// observer.
type noopProgress struct{}

func (noopProgress) Tick()          {}
func (noopProgress) SetMessage(string) {}

// Config tunes a walk.
type Config struct {
	// Concurrency is the number of items processed at once. 0 or 1 means
	// sequential processing (the default); the delivery order to Sink is
	// only stable when Concurrency <= 1.
	Concurrency int

	// Since filters discovered items to those modified at or after this
	// instant. The zero value disables filtering.
	Since time.Time

	// DistributionFilter, if set, excludes an entire distribution from
	// enumeration when it returns false.
	DistributionFilter func(model.Distribution) bool

	Progress ProgressObserver

	// Metrics, if set, records per-item counts and durations. Nil disables
	// metrics entirely.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Progress == nil {
		c.Progress = noopProgress{}
	}
	return c
}

// Walker drives discovery for a Source's metadata against a DiscoveredSink.
type Walker struct {
	Source source.Source
	Sink   pipeline.DiscoveredSink
	Config Config
}

// New builds a Walker over src, feeding sink, configured by cfg.
func New(src source.Source, sink pipeline.DiscoveredSink, cfg Config) *Walker {
	return &Walker{Source: src, Sink: sink, Config: cfg.withDefaults()}
}

// Walk discovers the publisher's metadata, then enumerates and visits every
// distribution's items. A discovery NotFound or any fatal error returned by
// the visitor chain aborts the whole walk; a per-item error returned by the
// chain (already downgraded to a Result by earlier stages) does not. A
// distribution whose index fails to load is logged and skipped.
func (w *Walker) Walk(ctx context.Context) error {
	md, err := w.Source.LoadMetadata(ctx)
	if err != nil {
		return pipeline.Fatal(err)
	}
	if err := w.Sink.VisitContext(ctx, md); err != nil {
		return err
	}

	distributions := md.Distributions
	if w.Config.DistributionFilter != nil {
		var kept []model.Distribution
		for _, d := range distributions {
			if w.Config.DistributionFilter(d) {
				kept = append(kept, d)
			}
		}
		distributions = kept
	}

	items, err := w.enumerate(ctx, distributions)
	if err != nil {
		return err
	}

	clog.FromContext(ctx).With("publisher", md.Publisher).With("items", len(items)).Info("enumerated items")

	if w.Config.Concurrency <= 1 {
		return w.visitSequential(ctx, items)
	}
	return w.visitParallel(ctx, items)
}

func (w *Walker) enumerate(ctx context.Context, distributions []model.Distribution) ([]model.DiscoveredItem, error) {
	var all []model.DiscoveredItem
	for _, dist := range distributions {
		items, err := w.Source.LoadIndex(ctx, dist, w.Config.Since)
		if err != nil {
			clog.FromContext(ctx).With("distribution", dist.URL()).Warnf("loading index, skipping distribution: %v", err)
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}

func (w *Walker) visitSequential(ctx context.Context, items []model.DiscoveredItem) error {
	for _, item := range items {
		w.Config.Progress.SetMessage(leafName(item.URL))
		start := time.Now()
		err := w.Sink.VisitDiscovered(ctx, item)
		w.Config.Metrics.observe(start, err != nil)
		if err != nil {
			if pipeline.IsFatal(err) {
				return err
			}
			clog.FromContext(ctx).With("url", item.URL).Warnf("visiting item: %v", err)
		}
		w.Config.Progress.Tick()
	}
	return nil
}

// visitParallel fans out items across Config.Concurrency workers. Delivery
// order to Sink is unspecified; the first fatal error cancels the
// remaining work and is returned once every in-flight item has finished.
func (w *Walker) visitParallel(ctx context.Context, items []model.DiscoveredItem) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan model.DiscoveredItem)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for i := 0; i < w.Config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				w.Config.Progress.SetMessage(leafName(item.URL))
				start := time.Now()
				err := w.Sink.VisitDiscovered(ctx, item)
				w.Config.Metrics.observe(start, err != nil)
				w.Config.Progress.Tick()
				if err == nil {
					continue
				}
				if pipeline.IsFatal(err) {
					mu.Lock()
					if fatal == nil {
						fatal = err
						cancel()
					}
					mu.Unlock()
					continue
				}
				clog.FromContext(ctx).With("url", item.URL).Warnf("visiting item: %v", err)
			}
		}()
	}

	for _, item := range items {
		select {
		case work <- item:
		case <-ctx.Done():
		}
	}
	close(work)
	wg.Wait()

	return fatal
}

func leafName(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return url
}
