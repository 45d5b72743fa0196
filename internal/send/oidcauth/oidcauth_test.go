/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package oidcauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestIssuer serves minimal OIDC discovery + token endpoints. tokenCalls
// counts how many times the token endpoint was hit, so tests can assert on
// single-flight coalescing.
func newTestIssuer(t *testing.T, tokenCalls *int32, expiresIn int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewUnstartedServer(mux)
	srv.Start()
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":         srv.URL,
			"token_endpoint": srv.URL + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
		})
	})
	return srv
}

func TestProviderFetchesAndCachesToken(t *testing.T) {
	var calls int32
	srv := newTestIssuer(t, &calls, 3600)

	p := New(Config{IssuerURL: srv.URL, ClientID: "id", ClientSecret: "secret"})

	tok1, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", tok1)

	tok2, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", tok2, "cached token should be reused, not re-fetched")
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProviderRefreshesNearExpiry(t *testing.T) {
	var calls int32
	srv := newTestIssuer(t, &calls, 1) // expires almost immediately

	p := New(Config{IssuerURL: srv.URL, ClientID: "id", ClientSecret: "secret", ExpiryMargin: 0})

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	tok2, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-2", tok2)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStaticTokenReturnsConfiguredValue(t *testing.T) {
	tok, err := StaticToken("fixed-token").Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fixed-token", tok)
}
