/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runner wires Source, KeySource, Walker, and the full visitor
// chain together end to end from a single Config, so that callers (the CLI
// entrypoint, tests, other programs embedding this module) do not have to
// hand-assemble every layer themselves.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
	"github.com/chainguard-dev/advisory-sync/internal/filter"
	"github.com/chainguard-dev/advisory-sync/internal/keysource"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/advisory-sync/internal/retrieve"
	"github.com/chainguard-dev/advisory-sync/internal/send"
	"github.com/chainguard-dev/advisory-sync/internal/source"
	"github.com/chainguard-dev/advisory-sync/internal/store"
	"github.com/chainguard-dev/advisory-sync/internal/validate"
	"github.com/chainguard-dev/advisory-sync/internal/verify"
	"github.com/chainguard-dev/advisory-sync/internal/walker"
	"github.com/chainguard-dev/clog"
)

// Sink selects where accepted documents end up. Exactly one of Store/Send
// should be set; Callback, if set, additionally observes every outcome
// (success and failure) regardless of which terminal sink is configured.
type Sink struct {
	// StoreRoot, if non-empty, writes accepted documents to this local
	// directory via the store package.
	StoreRoot string
	// Send, if non-nil, POSTs accepted documents to a remote endpoint.
	Send *send.Config
	// Callback, if non-nil, additionally receives every VerifiedItem
	// outcome (useful for embedding this module in another program).
	Callback pipeline.VerifiedSink
}

// Config configures one end-to-end walk.
type Config struct {
	// Publisher is a full URL, bare domain, or local directory path, per
	// the HTTPSource discovery rules / FileSource.
	Publisher string

	Fetcher fetcher.Config

	// Since bounds the walk to items modified at or after this instant.
	// The zero value disables filtering.
	Since time.Time

	// ValidationDate pins the OpenPGP verification policy; the zero value
	// means "now". Use validate.V3SignatureDate for v3-signature
	// compatibility.
	ValidationDate time.Time

	// DisableVerify skips the structural VerifyingVisitor entirely: every
	// ValidatedItem is forwarded as a VerifiedItem with an empty check
	// table, matching §4.7's contract that structural checks are optional
	// enrichment, not a gate.
	DisableVerify bool

	// SkipFailed, if set, drops failed items instead of forwarding them to
	// the terminal sink; SkipFailMode picks which failures are dropped (the
	// zero value, SkipAllFailures, drops every failure).
	SkipFailed   bool
	SkipFailMode filter.SkipMode

	BlockDistributionURLs []string
	BlockFilenamePrefixes []string
	AllowFilenamePrefixes []string

	// Concurrency bounds the number of items processed in parallel. 0 or 1
	// means sequential.
	Concurrency int

	Progress walker.ProgressObserver

	// Metrics, if set, records per-item walk metrics; see walker.Metrics.
	Metrics *walker.Metrics

	Sink Sink
}

// Runner assembles and drives one walk.
type Runner struct {
	cfg Config
	src source.Source
	f   *fetcher.Fetcher
	st  *store.Store
}

// New builds a Runner from cfg.
func New(cfg Config) *Runner {
	f := fetcher.New(cfg.Fetcher)
	r := &Runner{cfg: cfg, f: f, src: source.NewFromPublisher(cfg.Publisher, f)}
	if cfg.Sink.StoreRoot != "" {
		r.st = store.New(cfg.Sink.StoreRoot)
	}
	return r
}

// Run loads the publisher's metadata and trust anchors, persists them to
// the store (if configured), then walks every distribution through the
// full discovery -> retrieval -> validation -> verification -> sink chain.
func (r *Runner) Run(ctx context.Context) error {
	md, err := r.src.LoadMetadata(ctx)
	if err != nil {
		return pipeline.Fatal(fmt.Errorf("loading provider metadata: %w", err))
	}

	ks := keysource.New(r.f)
	ring, err := ks.LoadAll(ctx, md)
	if err != nil {
		return pipeline.Fatal(fmt.Errorf("loading trust anchors: %w", err))
	}

	if r.st != nil {
		if err := r.st.WriteMetadata(md); err != nil {
			return fmt.Errorf("storing provider metadata: %w", err)
		}
		if err := r.st.WriteKeys(ring); err != nil {
			return fmt.Errorf("storing keys: %w", err)
		}
	}

	chain, err := r.buildChain(ring)
	if err != nil {
		return err
	}

	w := walker.New(r.src, chain, walker.Config{
		Concurrency:        r.cfg.Concurrency,
		Since:              r.cfg.Since,
		DistributionFilter: r.distributionFilter(),
		Progress:           r.cfg.Progress,
		Metrics:            r.cfg.Metrics,
	})

	clog.FromContext(ctx).With("publisher", md.Publisher).With("distributions", len(md.Distributions)).Info("starting walk")
	return w.Walk(ctx)
}

func (r *Runner) distributionFilter() func(model.Distribution) bool {
	if len(r.cfg.BlockDistributionURLs) == 0 {
		return nil
	}
	blocked := map[string]bool{}
	for _, u := range r.cfg.BlockDistributionURLs {
		blocked[u] = true
	}
	return func(d model.Distribution) bool { return !blocked[d.URL()] }
}

// buildChain assembles the DiscoveredSink chain leaves-first: filtering and
// skip-existing run before retrieval even starts, duplicate detection runs
// just before retrieval so it counts every item the rest of the chain will
// see, and the terminal sink(s) sit behind validation/verification.
func (r *Runner) buildChain(ring openpgp.EntityList) (pipeline.DiscoveredSink, error) {
	terminal, err := r.buildTerminal()
	if err != nil {
		return nil, err
	}

	var verified pipeline.VerifiedSink = terminal
	var validated pipeline.ValidatedSink
	if r.cfg.DisableVerify {
		validated = passThroughValidated{next: verified}
	} else {
		validated = verify.New(verified)
	}

	if r.cfg.SkipFailed {
		validated = filter.NewSkipFailed(r.cfg.SkipFailMode, validated)
	}

	validation := validate.New(ring, validated)
	validation.ValidationDate = r.cfg.ValidationDate

	retrieved := retrieve.New(r.src, validation)

	var discovered pipeline.DiscoveredSink = retrieved
	discovered = filter.NewDetectDuplicates(discovered)
	if r.st != nil {
		discovered = filter.NewSkipExisting(r.st, r.cfg.Since, discovered)
	}
	// BlockDistributionURLs is already applied as a pre-enumeration
	// DistributionFilter on the Walker (see distributionFilter); passing it
	// here too would be redundant since no item from a blocked
	// distribution ever reaches this visitor.
	discovered = &filter.FilteringVisitor{
		BlockFilenamePrefixes: r.cfg.BlockFilenamePrefixes,
		AllowFilenamePrefixes: r.cfg.AllowFilenamePrefixes,
		Next:                  discovered,
	}

	return discovered, nil
}

// buildTerminal wires Config.Sink into a single VerifiedSink: Store and/or
// Send run first (in that order when both are configured), then Callback
// additionally observes the same outcome.
func (r *Runner) buildTerminal() (pipeline.VerifiedSink, error) {
	var sinks []pipeline.VerifiedSink
	if r.st != nil {
		sinks = append(sinks, r.st)
	}
	if r.cfg.Sink.Send != nil {
		sinks = append(sinks, send.New(*r.cfg.Sink.Send, nil))
	}
	if r.cfg.Sink.Callback != nil {
		sinks = append(sinks, r.cfg.Sink.Callback)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sink configured: set Sink.StoreRoot, Sink.Send, or Sink.Callback")
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return multiSink(sinks), nil
}

// multiSink fans one VerifiedItem outcome out to every configured sink,
// in order, stopping at (and returning) the first error.
type multiSink []pipeline.VerifiedSink

func (m multiSink) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	for _, s := range m {
		if err := s.VisitContext(ctx, md); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) VisitVerified(ctx context.Context, item pipeline.Result[model.VerifiedItem]) error {
	for _, s := range m {
		if err := s.VisitVerified(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// passThroughValidated adapts a VerifiedSink into a ValidatedSink by
// wrapping each ValidatedItem in an empty-checks VerifiedItem, used when
// structural verification is disabled but the terminal sink is written
// against the VerifiedSink shape.
type passThroughValidated struct {
	next pipeline.VerifiedSink
}

func (p passThroughValidated) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	return p.next.VisitContext(ctx, md)
}

func (p passThroughValidated) VisitValidated(ctx context.Context, item pipeline.Result[model.ValidatedItem]) error {
	if !item.OK() {
		return p.next.VisitVerified(ctx, pipeline.Fail[model.VerifiedItem](item.Err))
	}
	return p.next.VisitVerified(ctx, pipeline.Ok(model.VerifiedItem{ValidatedItem: item.Value}))
}
