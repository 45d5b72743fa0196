/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package oidcauth provides the bearer-token provider chain the SendVisitor
// uses to authenticate its uploads: a static token, and an OpenID-Connect
// client-credentials provider that refreshes ahead of expiry using a
// single-flight, read-preferring cache so concurrent senders never trigger
// a thundering herd of refreshes.
package oidcauth

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// TokenProvider returns the bearer token to attach to an upload request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token; used
// when the sink is authenticated out of band.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Config configures the OIDC client-credentials provider.
type Config struct {
	// IssuerURL is the OIDC discovery issuer, e.g. "https://auth.example.com".
	IssuerURL string
	ClientID  string
	ClientSecret string
	// Scopes requested in the client-credentials grant.
	Scopes []string
	// ExpiryMargin is how far ahead of a token's actual expiry it is
	// considered stale and due for refresh. Defaults to 60s.
	ExpiryMargin time.Duration
}

func (c Config) withDefaults() Config {
	if c.ExpiryMargin == 0 {
		c.ExpiryMargin = 60 * time.Second
	}
	return c
}

// Provider is an OIDC client-credentials TokenProvider that caches the
// current token and coalesces concurrent refreshes: when the cached token is
// absent or within ExpiryMargin of expiry, only the first caller performs the
// refresh while the rest wait on the same in-flight call and receive its
// result. A token that arrives already inside ExpiryMargin is returned but
// not cached.
type Provider struct {
	cfg   Config
	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

const cacheKey = "token"

// New builds a Provider that discovers cfg.IssuerURL's token endpoint lazily
// on first use.
func New(cfg Config) *Provider {
	cfg = cfg.withDefaults()
	p := &Provider{
		cfg:   cfg,
		cache: ttlcache.New[string, string](ttlcache.WithDisableTouchOnHit[string, string]()),
	}
	return p
}

// Token returns the current bearer token, refreshing it if it is absent or
// within ExpiryMargin of expiring. Concurrent callers that observe the same
// stale state are coalesced onto one upstream token exchange.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if item := p.cache.Get(cacheKey); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}

	v, err, _ := p.group.Do(cacheKey, func() (any, error) {
		// Re-check under the singleflight key: another goroutine may have
		// refreshed while we were waiting to enter Do.
		if item := p.cache.Get(cacheKey); item != nil && !item.IsExpired() {
			return item.Value(), nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provider) refresh(ctx context.Context) (string, error) {
	provider, err := oidc.NewProvider(ctx, p.cfg.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("discovering OIDC issuer %s: %w", p.cfg.IssuerURL, err)
	}

	ccCfg := &clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       p.cfg.Scopes,
	}

	token, err := ccCfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("client-credentials token exchange: %w", err)
	}

	if token.Expiry.IsZero() {
		p.cache.Set(cacheKey, token.AccessToken, time.Minute)
	} else if ttl := time.Until(token.Expiry) - p.cfg.ExpiryMargin; ttl > 0 {
		p.cache.Set(cacheKey, token.AccessToken, ttl)
	}

	clog.FromContext(ctx).With("issuer", p.cfg.IssuerURL).With("expiry", token.Expiry).Info("refreshed OIDC bearer token")

	return token.AccessToken, nil
}
