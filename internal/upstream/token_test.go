package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/card-connector/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCandidates(t *testing.T) {
	got := TokenCandidates("https://skaleet.test/api/v2/admin/", "")
	require.Equal(t, []string{
		"https://skaleet.test/api/v2/admin/oauth/token",
		"https://skaleet.test/api/v2/admin/oauth2/token",
		"https://skaleet.test/api/v2/admin/token",
		"https://skaleet.test/api/v2/oauth/token",
		"https://skaleet.test/api/v2/oauth2/token",
		"https://skaleet.test/api/v2/token",
	}, got)
}

func TestTokenCandidatesExplicitFirstAndDeduplicated(t *testing.T) {
	got := TokenCandidates("https://skaleet.test", "https://skaleet.test/token")
	require.Equal(t, []string{
		"https://skaleet.test/token",
		"https://skaleet.test/oauth/token",
		"https://skaleet.test/oauth2/token",
	}, got)
	require.Empty(t, TokenCandidates("", ""))
}

func writeToken(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestEndpointFetcherFallsBackAcrossEndpointsAndAuthStyles(t *testing.T) {
	var formAttempts, basicAttempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/admin/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "CardUpdate", r.PostForm.Get("scope"))
		user, pass, ok := r.BasicAuth()
		if !ok {
			formAttempts.Add(1)
			assert.Equal(t, "client", r.PostForm.Get("client_id"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		basicAttempts.Add(1)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		writeToken(w, map[string]any{"access_token": "tok-basic", "token_type": "bearer", "expires_in": 3600})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := NewEndpointFetcher(config.UpstreamConfig{
		AdminBaseURL: srv.URL + "/admin",
		ClientID:     "client",
		ClientSecret: "secret",
		Scope:        "CardUpdate",
	}, srv.Client())

	tok, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-basic", tok.AccessToken)
	require.True(t, tok.ExpiresAt.After(time.Now().Add(50*time.Minute)))
	require.Equal(t, int32(1), formAttempts.Load())
	require.Equal(t, int32(1), basicAttempts.Load())
}

func TestEndpointFetcherReadsJWTExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, map[string]any{"access_token": signed, "token_type": "bearer"})
	}))
	defer srv.Close()

	fetcher := NewEndpointFetcher(config.UpstreamConfig{AdminBaseURL: srv.URL, ClientID: "c", ClientSecret: "s"}, srv.Client())
	tok, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.True(t, tok.ExpiresAt.Equal(exp), "expected %s, got %s", exp, tok.ExpiresAt)
}

func TestEndpointFetcherDefaultTTL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, map[string]any{"access_token": "opaque", "token_type": "bearer"})
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fetcher := NewEndpointFetcher(config.UpstreamConfig{
		AdminBaseURL:    srv.URL,
		ClientID:        "c",
		ClientSecret:    "s",
		TokenDefaultTTL: 10 * time.Minute,
	}, srv.Client())
	fetcher.now = func() time.Time { return now }

	tok, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, now.Add(10*time.Minute), tok.ExpiresAt)
}

func TestEndpointFetcherCombinesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fetcher := NewEndpointFetcher(config.UpstreamConfig{AdminBaseURL: srv.URL, ClientID: "c", ClientSecret: "s"}, srv.Client())
	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "/oauth/token (form)")
	require.Contains(t, err.Error(), "/token (basic)")
}
