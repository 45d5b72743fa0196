/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command advisory-sync mirrors and verifies a publisher's CSAF/SBOM
// distribution: it discovers the provider metadata, walks every
// distribution, validates each document's digests and signature, optionally
// runs structural checks, and stores or forwards the accepted documents.
//
// This is a thin wrapper around internal/runner; flag parsing and progress
// reporting are the only concerns that live here, per the out-of-scope
// collaborators named in the specification.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
	"github.com/chainguard-dev/advisory-sync/internal/filter"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/advisory-sync/internal/report"
	"github.com/chainguard-dev/advisory-sync/internal/runner"
	"github.com/chainguard-dev/advisory-sync/internal/send"
	"github.com/chainguard-dev/advisory-sync/internal/send/oidcauth"
	sincepkg "github.com/chainguard-dev/advisory-sync/internal/since"
	"github.com/chainguard-dev/advisory-sync/internal/validate"
	"github.com/chainguard-dev/advisory-sync/internal/walker"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
)

// envConfig is the ambient, environment-driven half of the configuration:
// the pieces that rarely change between invocations of the same deployment.
// Per-run arguments (the publisher, the since-cursor path) stay on the flag
// line, matching the distilled spec's "thin flag-based entrypoint".
type envConfig struct {
	LogFormat   string `env:"LOG_FORMAT,default=text"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	MetricsPort int    `env:"METRICS_PORT,default=0"`

	SendAuthIssuer string `env:"SEND_AUTH_ISSUER"`
	SendAuthClient string `env:"SEND_AUTH_CLIENT_ID"`
	SendAuthSecret string `env:"SEND_AUTH_CLIENT_SECRET"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: advisory-sync <walk|report> [flags]")
		os.Exit(2)
	}

	var env envConfig
	if err := envconfig.Process(ctx, &env); err != nil {
		fmt.Fprintf(os.Stderr, "processing environment config: %v\n", err)
		os.Exit(2)
	}
	ctx = clog.WithLogger(ctx, newLogger(env))

	var err error
	switch cmd := os.Args[1]; cmd {
	case "walk":
		err = runWalk(ctx, env, os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q: want walk or report\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		clog.FromContext(ctx).Errorf("%v", err)
		os.Exit(1)
	}
}

// newLogger builds the process-wide clog.Logger, text or JSON depending on
// env.LogFormat, generalizing the teacher's `clog/gcp/init` side-effect
// import into an explicit, locally-useful default.
func newLogger(env envConfig) *clog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(env.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return clog.New(handler)
}

// walkConfig is the per-run half of the configuration: a single walk's
// publisher, destination, and filters.
type walkConfig struct {
	publisher string
	storeRoot string
	sendURL   string

	sincePath   string
	sinceOffset time.Duration

	validationDate string

	disableVerify bool
	skipFailed    bool
	skipFailedAll bool

	blockDistributions string
	blockPrefixes      string
	allowPrefixes      string

	concurrency int
	reportPath  string
}

func runWalk(ctx context.Context, env envConfig, args []string) error {
	var cfg walkConfig
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	fs.StringVar(&cfg.publisher, "publisher", "", "publisher URL, bare domain, or local directory (required)")
	fs.StringVar(&cfg.storeRoot, "store", "", "local directory to mirror accepted documents into")
	fs.StringVar(&cfg.sendURL, "send", "", "remote endpoint to POST accepted documents to")
	fs.StringVar(&cfg.sincePath, "since-file", "", "path to the since-cursor JSON file")
	fs.DurationVar(&cfg.sinceOffset, "since-offset", 0, "offset (typically negative) applied to the loaded since-cursor")
	fs.StringVar(&cfg.validationDate, "validation-date", "", `OpenPGP validation date (RFC 3339), or "v3" for the v3-signature compatibility date; default "now"`)
	fs.BoolVar(&cfg.disableVerify, "disable-verify", false, "skip structural verification checks")
	fs.BoolVar(&cfg.skipFailed, "skip-failed", false, "drop failed items instead of forwarding them to the sink")
	fs.BoolVar(&cfg.skipFailedAll, "skip-failed-all", false, "when -skip-failed is set, drop every failure rather than only validation failures")
	fs.StringVar(&cfg.blockDistributions, "block-distributions", "", "comma-separated distribution URLs to exclude")
	fs.StringVar(&cfg.blockPrefixes, "block-prefixes", "", "comma-separated filename prefixes to exclude")
	fs.StringVar(&cfg.allowPrefixes, "allow-prefixes", "", "comma-separated filename prefixes to allow (if set, only these pass)")
	fs.IntVar(&cfg.concurrency, "concurrency", 1, "number of items processed in parallel; 1 means sequential")
	fs.StringVar(&cfg.reportPath, "report-file", "", "path to append this walk's statistics to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.publisher == "" {
		return fmt.Errorf("-publisher is required")
	}

	var cursor model.SinceCursor
	var err error
	if cfg.sincePath != "" {
		cursor, err = sincepkg.Load(cfg.sincePath)
		if err != nil {
			return err
		}
	}
	cutoff := sincepkg.Cutoff(cursor, cfg.sinceOffset)

	validationDate, err := parseValidationDate(cfg.validationDate)
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	var metrics *walker.Metrics
	if env.MetricsPort != 0 {
		reg = prometheus.NewRegistry()
		metrics = walker.NewMetrics(reg)
		serveMetrics(ctx, reg, env.MetricsPort)
	}

	counter := &report.Counter{}
	rcfg := runner.Config{
		Publisher:             cfg.publisher,
		Fetcher:               fetcher.Config{},
		Since:                 cutoff,
		ValidationDate:        validationDate,
		DisableVerify:         cfg.disableVerify,
		SkipFailed:            cfg.skipFailed,
		SkipFailMode:          skipMode(cfg.skipFailedAll),
		BlockDistributionURLs: splitCSV(cfg.blockDistributions),
		BlockFilenamePrefixes: splitCSV(cfg.blockPrefixes),
		AllowFilenamePrefixes: splitCSV(cfg.allowPrefixes),
		Concurrency:           cfg.concurrency,
		Metrics:               metrics,
		Sink: runner.Sink{
			StoreRoot: cfg.storeRoot,
			Send:      sendConfig(cfg.sendURL, env),
			Callback:  countingSink{counter: counter},
		},
	}

	runStart := time.Now()
	if err := runner.New(rcfg).Run(ctx); err != nil {
		return fmt.Errorf("walk failed: %w", err)
	}

	if cfg.reportPath != "" {
		if err := report.Append(cfg.reportPath, counter.Entry(runStart)); err != nil {
			return fmt.Errorf("appending report: %w", err)
		}
	}
	if cfg.sincePath != "" {
		if err := sincepkg.Save(cfg.sincePath, model.SinceCursor{LastRun: runStart}); err != nil {
			return fmt.Errorf("saving since-cursor: %w", err)
		}
	}
	return nil
}

func runReport(args []string) error {
	var asJSON bool
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	fs.BoolVar(&asJSON, "json", false, "print the raw report-statistics JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: advisory-sync report [-json] <report-file>")
	}

	f, err := report.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	}
	report.Render(os.Stdout, f)
	return nil
}

func skipMode(all bool) filter.SkipMode {
	if all {
		return filter.SkipAllFailures
	}
	return filter.SkipValidationFailuresOnly
}

func sendConfig(url string, env envConfig) *send.Config {
	if url == "" {
		return nil
	}
	cfg := &send.Config{URL: url}
	if env.SendAuthIssuer != "" {
		cfg.Auth = oidcauth.New(oidcauth.Config{
			IssuerURL:    env.SendAuthIssuer,
			ClientID:     env.SendAuthClient,
			ClientSecret: env.SendAuthSecret,
		})
	}
	return cfg
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseValidationDate(s string) (time.Time, error) {
	switch {
	case s == "":
		return time.Time{}, nil
	case s == "v3":
		return validate.V3SignatureDate, nil
	default:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing -validation-date: %w", err)
		}
		return t, nil
	}
}

// countingSink is a pipeline.VerifiedSink that folds every outcome into a
// report.Counter; wired as Runner's Callback so a walk always produces
// statistics regardless of which terminal sink (store/send) is configured.
type countingSink struct {
	counter *report.Counter
}

func (countingSink) VisitContext(context.Context, *model.ProviderMetadata) error { return nil }

func (c countingSink) VisitVerified(_ context.Context, item pipeline.Result[model.VerifiedItem]) error {
	c.counter.RecordItem(!item.OK(), len(item.Value.FailedChecks))
	return nil
}

func serveMetrics(ctx context.Context, reg *prometheus.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			clog.FromContext(ctx).Errorf("metrics server: %v", err)
		}
	}()
}
