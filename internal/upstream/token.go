// Package upstream reports card operation outcomes to the upstream card
// platform's admin API.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/card-connector/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/multierr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var tokenPaths = []string{"/oauth/token", "/oauth2/token", "/token"}

var authStyles = []struct {
	name  string
	style oauth2.AuthStyle
}{
	{"form", oauth2.AuthStyleInParams},
	{"basic", oauth2.AuthStyleInHeader},
}

// Token is an access token with its computed expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token is usable at now given a safety skew.
func (t Token) Valid(now time.Time, skew time.Duration) bool {
	return t.AccessToken != "" && now.Add(skew).Before(t.ExpiresAt)
}

// TokenFetcher acquires a fresh access token.
type TokenFetcher interface {
	Fetch(ctx context.Context) (Token, error)
}

// EndpointFetcher obtains client-credentials tokens by walking candidate
// token endpoints with form then basic client authentication.
type EndpointFetcher struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	scopes       []string
	candidates   []string
	defaultTTL   time.Duration
	now          func() time.Time
}

// NewEndpointFetcher builds a fetcher from the upstream settings.
func NewEndpointFetcher(cfg config.UpstreamConfig, httpClient *http.Client) *EndpointFetcher {
	if httpClient == nil {
		timeout := cfg.TokenTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var scopes []string
	if scope := strings.TrimSpace(cfg.Scope); scope != "" {
		scopes = []string{scope}
	}
	ttl := cfg.TokenDefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EndpointFetcher{
		httpClient:   httpClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       scopes,
		candidates:   TokenCandidates(cfg.AdminBaseURL, cfg.TokenURL),
		defaultTTL:   ttl,
		now:          time.Now,
	}
}

// TokenCandidates lists the token endpoints to try, in order, without duplicates.
// An explicit token URL comes first, then the well-known paths under the admin
// base URL, then the same paths with the /admin segment removed.
func TokenCandidates(adminBaseURL, explicit string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(candidate string) {
		if candidate == "" {
			return
		}
		if _, ok := seen[candidate]; ok {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	add(strings.TrimSpace(explicit))
	base := strings.TrimRight(strings.TrimSpace(adminBaseURL), "/")
	if base == "" {
		return out
	}
	for _, path := range tokenPaths {
		add(base + path)
	}
	if strings.Contains(base, "/admin") {
		stripped := strings.TrimRight(strings.ReplaceAll(base, "/admin", ""), "/")
		for _, path := range tokenPaths {
			add(stripped + path)
		}
	}
	return out
}

// Fetch returns the first token any candidate grants.
func (f *EndpointFetcher) Fetch(ctx context.Context) (Token, error) {
	if len(f.candidates) == 0 {
		return Token{}, errors.New("no token endpoint configured")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	var errs error
	for _, endpoint := range f.candidates {
		for _, auth := range authStyles {
			cc := clientcredentials.Config{
				ClientID:     f.clientID,
				ClientSecret: f.clientSecret,
				TokenURL:     endpoint,
				Scopes:       f.scopes,
				AuthStyle:    auth.style,
			}
			tok, err := cc.Token(ctx)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s (%s): %w", endpoint, auth.name, err))
				if ctx.Err() != nil {
					return Token{}, errs
				}
				continue
			}
			if tok.AccessToken == "" {
				errs = multierr.Append(errs, fmt.Errorf("%s (%s): empty access token", endpoint, auth.name))
				continue
			}
			return Token{AccessToken: tok.AccessToken, ExpiresAt: f.expiry(tok)}, nil
		}
	}
	return Token{}, errs
}

func (f *EndpointFetcher) expiry(tok *oauth2.Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return exp
	}
	return f.now().Add(f.defaultTTL)
}

// jwtExpiry reads the exp claim of a JWT access token without verifying it.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
