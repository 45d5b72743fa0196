/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fetcher wraps an *http.Client with timeouts and exponential
// backoff retries. It carries no application semantics: callers that need a
// 404-tolerant fetch ask for one explicitly; everything else surfaces a
// FetchError.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chainguard-dev/clog"
)

// Config tunes the Fetcher's timeouts and retry behavior.
type Config struct {
	// Timeout bounds a single HTTP exchange, including redirects and body
	// read. Defaults to 30s.
	Timeout time.Duration
	// ConnectTimeout bounds TCP+TLS handshake. Defaults to 10s.
	ConnectTimeout time.Duration
	// MaxRetries is the maximum number of retry attempts after the first
	// try. Defaults to 5.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	return c
}

// FetchError wraps the underlying cause of a failed fetch. The Fetcher never
// returns an error of any other type.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetching %s: %v", e.URL, e.Cause) }
func (e *FetchError) Unwrap() error { return e.Cause }

// Fetcher issues retried, timeout-bounded HTTP GETs.
type Fetcher struct {
	client *http.Client
	cfg    Config
}

// New builds a Fetcher from cfg, applying defaults for zero fields.
func New(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
	}
}

// FetchBytes issues a GET and returns the full response body. A non-2xx
// status (other than via retry exhaustion) is surfaced as a FetchError.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	body, _, err := f.do(ctx, url, false)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchOptionalBytes is like FetchBytes but treats a 404 as success with no
// value, returning ok=false rather than an error.
func (f *Fetcher) FetchOptionalBytes(ctx context.Context, url string) (body []byte, ok bool, err error) {
	body, found, err := f.do(ctx, url, true)
	if err != nil {
		return nil, false, err
	}
	return body, found, nil
}

// FetchString is a convenience wrapper over FetchBytes.
func (f *Fetcher) FetchString(ctx context.Context, url string) (string, error) {
	b, err := f.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Stream is an open response body plus the caching headers observed on it.
// Callers must Close it.
type Stream struct {
	io.ReadCloser
	ETag         string
	LastModified *time.Time
}

// FetchStream issues a GET and returns the response body unread, so the
// caller can stream-process it (e.g. accumulate digests) without buffering
// the whole document in memory. Retries apply to establishing the response
// (connection errors, 5xx, timeouts before any body is read); once headers
// are received the stream is handed to the caller as-is.
func (f *Fetcher) FetchStream(ctx context.Context, url string) (*Stream, error) {
	var resp *http.Response
	op := func() error {
		r, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		if isRetryableStatus(r.StatusCode) {
			r.Body.Close()
			return fmt.Errorf("retryable status %d", r.StatusCode)
		}
		if r.StatusCode/100 != 2 {
			r.Body.Close()
			return backoff.Permanent(&unexpectedStatus{code: r.StatusCode})
		}
		resp = r
		return nil
	}
	if err := f.retry(ctx, url, op); err != nil {
		return nil, err
	}
	return &Stream{
		ReadCloser:   resp.Body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: parseLastModified(resp.Header.Get("Last-Modified")),
	}, nil
}

func (f *Fetcher) do(ctx context.Context, url string, optional bool) ([]byte, bool, error) {
	var body []byte
	var notFound bool
	op := func() error {
		r, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		defer r.Body.Close()

		if optional && r.StatusCode == http.StatusNotFound {
			notFound = true
			return nil
		}
		if isRetryableStatus(r.StatusCode) {
			return fmt.Errorf("retryable status %d", r.StatusCode)
		}
		if r.StatusCode/100 != 2 {
			return backoff.Permanent(&unexpectedStatus{code: r.StatusCode})
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	if err := f.retry(ctx, url, op); err != nil {
		return nil, false, err
	}
	return body, !notFound, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		// A malformed URL is never retried.
		return nil, backoff.Permanent(err)
	}
	return f.client.Do(req)
}

func (f *Fetcher) retry(ctx context.Context, url string, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.cfg.MaxRetries)), ctx)
	attempt := 0
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		attempt++
		clog.FromContext(ctx).With("url", url).With("attempt", attempt).With("wait", wait).
			Warnf("retrying fetch after error: %v", err)
	})
	if err != nil {
		return &FetchError{URL: url, Cause: err}
	}
	return nil
}

// isRetryableStatus reports whether status is a transient server error or a
// client error we still consider worth retrying (408 Request Timeout, 429
// Too Many Requests).
func isRetryableStatus(status int) bool {
	if status/100 == 5 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

type unexpectedStatus struct{ code int }

func (e *unexpectedStatus) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

// StatusCode extracts the HTTP status code from err if it (or something it
// wraps) is an unexpected-status error produced by this package.
func StatusCode(err error) (int, bool) {
	if e, ok := err.(*FetchError); ok {
		err = e.Cause
	}
	if u, ok := err.(*unexpectedStatus); ok {
		return u.code, true
	}
	return 0, false
}

func parseLastModified(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return nil
	}
	return &t
}
