package upstream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// SharedStore lets several instances share one access token.
type SharedStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CredentialCache hands out a bearer token, fetching a new one only when the
// cached token is missing or within the skew of its expiry. Concurrent misses
// share a single fetch.
type CredentialCache struct {
	fetcher TokenFetcher
	skew    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	token Token
	group singleflight.Group

	store    SharedStore
	storeKey string

	metrics *metrics.SyncMetrics
	logg    *logger.Logger
}

// CacheOption configures the credential cache.
type CacheOption func(*CredentialCache)

// WithSharedStore persists tokens under key in store.
func WithSharedStore(store SharedStore, key string) CacheOption {
	return func(c *CredentialCache) {
		if store != nil && key != "" {
			c.store = store
			c.storeKey = key
		}
	}
}

// WithCacheClock overrides the clock.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CredentialCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheMetrics counts token fetches.
func WithCacheMetrics(m *metrics.SyncMetrics) CacheOption {
	return func(c *CredentialCache) {
		c.metrics = m
	}
}

// WithCacheLogger attaches a logger.
func WithCacheLogger(logg *logger.Logger) CacheOption {
	return func(c *CredentialCache) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// NewCredentialCache wraps a fetcher with expiry tracking.
func NewCredentialCache(fetcher TokenFetcher, skew time.Duration, opts ...CacheOption) *CredentialCache {
	if skew < 0 {
		skew = 0
	}
	c := &CredentialCache{
		fetcher: fetcher,
		skew:    skew,
		now:     time.Now,
		logg:    logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Token returns a valid access token.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token.Valid(c.now(), c.skew) {
		token := c.token.AccessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (any, error) {
		c.mu.Lock()
		current := c.token
		c.mu.Unlock()
		if current.Valid(c.now(), c.skew) {
			return current, nil
		}

		if shared, ok := c.loadShared(ctx); ok {
			c.remember(shared)
			return shared, nil
		}

		fresh, err := c.fetcher.Fetch(ctx)
		c.metrics.IncTokenFetch(err == nil)
		if err != nil {
			return Token{}, err
		}
		c.remember(fresh)
		c.saveShared(ctx, fresh)
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(Token).AccessToken, nil
}

// Invalidate drops rejected if it is still the cached token. A token that
// replaced it in the meantime is kept.
func (c *CredentialCache) Invalidate(ctx context.Context, rejected string) {
	if rejected == "" {
		return
	}
	c.mu.Lock()
	if c.token.AccessToken == rejected {
		c.token = Token{}
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	raw, err := c.store.Get(ctx, c.storeKey)
	if err != nil || raw == "" {
		return
	}
	var shared Token
	if err := json.Unmarshal([]byte(raw), &shared); err == nil && shared.AccessToken != rejected {
		return
	}
	if err := c.store.Del(ctx, c.storeKey); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "failed to drop shared upstream token")
	}
}

func (c *CredentialCache) remember(token Token) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *CredentialCache) loadShared(ctx context.Context) (Token, bool) {
	if c.store == nil {
		return Token{}, false
	}
	raw, err := c.store.Get(ctx, c.storeKey)
	if err != nil || raw == "" {
		return Token{}, false
	}
	var token Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return Token{}, false
	}
	if !token.Valid(c.now(), c.skew) {
		return Token{}, false
	}
	return token, true
}

func (c *CredentialCache) saveShared(ctx context.Context, token Token) {
	if c.store == nil {
		return
	}
	ttl := token.ExpiresAt.Sub(c.now()) - c.skew
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.storeKey, string(raw), ttl); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "failed to share upstream token")
	}
}
