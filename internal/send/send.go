/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package send implements the SendVisitor: the terminal sink that POSTs
// each accepted document to a remote endpoint, retrying transient failures
// with exponential backoff and distinguishing them from permanent 4xx
// rejections.
package send

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chainguard-dev/advisory-sync/internal/model"
	"github.com/chainguard-dev/advisory-sync/internal/pipeline"
	"github.com/chainguard-dev/advisory-sync/internal/send/oidcauth"
	"github.com/chainguard-dev/clog"
)

// ClientError is a permanent 4xx rejection from the sink. It is never
// retried.
type ClientError struct{ Status int }

func (e *ClientError) Error() string { return fmt.Sprintf("client error: %d", e.Status) }

// UnexpectedStatusError is any non-2xx/4xx/5xx status the sink returned.
type UnexpectedStatusError struct{ Status int }

func (e *UnexpectedStatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Status) }

// Config tunes the SendVisitor's retry behavior.
type Config struct {
	// URL is the upload endpoint.
	URL string
	// MinDelay/MaxDelay bound the exponential backoff applied between
	// retries of a temporary failure. Defaults: 1s / 30s.
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxRetries bounds the number of retry attempts. Default 5.
	MaxRetries int

	// Auth supplies an optional bearer token injected as an Authorization
	// header. Nil means no Authorization header is sent.
	Auth oidcauth.TokenProvider
}

func (c Config) withDefaults() Config {
	if c.MinDelay == 0 {
		c.MinDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	return c
}

// SendVisitor POSTs each verified document to Config.URL.
type SendVisitor struct {
	cfg    Config
	client *http.Client
	next   pipeline.VerifiedSink
}

// New builds a SendVisitor. next, if non-nil, receives every item after it
// has been sent (success or failure) so a caller can chain further sinks;
// pass nil when Send is the terminal stage, in which case a send failure is
// returned from VisitVerified.
func New(cfg Config, next pipeline.VerifiedSink) *SendVisitor {
	return &SendVisitor{cfg: cfg.withDefaults(), client: &http.Client{}, next: next}
}

func (v *SendVisitor) VisitContext(ctx context.Context, md *model.ProviderMetadata) error {
	if v.next == nil {
		return nil
	}
	return v.next.VisitContext(ctx, md)
}

func (v *SendVisitor) VisitVerified(ctx context.Context, item pipeline.Result[model.VerifiedItem]) error {
	if !item.OK() {
		clog.FromContext(ctx).Warnf("not sending failed item: %v", item.Err)
		return v.forward(ctx, item)
	}

	if err := v.send(ctx, item.Value); err != nil {
		clog.FromContext(ctx).With("url", item.Value.URL).Warnf("sending document: %v", err)
		if v.next == nil {
			return err
		}
		return v.forward(ctx, pipeline.Fail[model.VerifiedItem](err))
	}
	return v.forward(ctx, item)
}

func (v *SendVisitor) forward(ctx context.Context, item pipeline.Result[model.VerifiedItem]) error {
	if v.next == nil {
		return nil
	}
	return v.next.VisitVerified(ctx, item)
}

func (v *SendVisitor) send(ctx context.Context, item model.VerifiedItem) error {
	target := v.cfg.URL
	if isSBOM(item.Document) {
		u, err := url.Parse(target)
		if err != nil {
			return fmt.Errorf("parsing send url: %w", err)
		}
		q := u.Query()
		q.Set("id", filename(item.URL))
		u.RawQuery = q.Encode()
		target = u.String()
	}

	b := backoff.WithContext(newBackOff(v.cfg), ctx)
	attempt := 0
	return backoff.RetryNotify(func() error {
		return v.post(ctx, target, item)
	}, b, func(err error, wait time.Duration) {
		attempt++
		clog.FromContext(ctx).With("url", item.URL).With("attempt", attempt).With("wait", wait).
			Warnf("retrying send after temporary error: %v", err)
	})
}

func (v *SendVisitor) post(ctx context.Context, target string, item model.VerifiedItem) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(item.Bytes))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.HasSuffix(item.URL, ".bz2") {
		req.Header.Set("Content-Encoding", "bzip2")
	}
	if v.cfg.Auth != nil {
		token, err := v.cfg.Auth.Token(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquiring bearer token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err // network errors are temporary
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining lets the connection be reused

	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode/100 == 5:
		return fmt.Errorf("temporary status %d", resp.StatusCode)
	case resp.StatusCode/100 == 4:
		return backoff.Permanent(&ClientError{Status: resp.StatusCode})
	default:
		return backoff.Permanent(&UnexpectedStatusError{Status: resp.StatusCode})
	}
}

func newBackOff(cfg Config) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.MinDelay
	eb.MaxInterval = cfg.MaxDelay
	return backoff.WithMaxRetries(eb, uint64(cfg.MaxRetries))
}

// isSBOM reports whether doc looks like an SPDX or CycloneDX document
// rather than a CSAF advisory, per the distilled spec's "?id=" query
// parameter rule for SBOM uploads.
func isSBOM(doc map[string]any) bool {
	if doc == nil {
		return false
	}
	if _, ok := doc["spdxVersion"]; ok {
		return true
	}
	if bf, ok := doc["bomFormat"].(string); ok && bf == "CycloneDX" {
		return true
	}
	return false
}

func filename(rawURL string) string {
	for i := len(rawURL) - 1; i >= 0; i-- {
		if rawURL[i] == '/' {
			return rawURL[i+1:]
		}
	}
	return rawURL
}
