package crawler

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
)

var detailPathRegex = regexp.MustCompile(`/result/\d+$`)

// PageCache stores page bodies by URL.
type PageCache interface {
	Get(ctx context.Context, rawURL string) (string, bool, error)
	Set(ctx context.Context, rawURL, body string, ttl time.Duration) error
}

// CachedFetcher serves detail pages from a cache before going to the network.
// Listing pages always go to the network since their content shifts as new
// results are posted.
type CachedFetcher struct {
	next  Fetcher
	cache PageCache
	ttl   time.Duration
}

func NewCachedFetcher(next Fetcher, cache PageCache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}
}

func (f *CachedFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !detailPathRegex.MatchString(rawURL) {
		return f.next.Fetch(ctx, rawURL)
	}

	body, ok, err := f.cache.Get(ctx, rawURL)
	if err != nil {
		slog.Warn("Detail cache read failed", "url", rawURL, "error", err)
	} else if ok {
		slog.Debug("Detail cache hit", "url", rawURL)
		return body, nil
	}

	body, err = f.next.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if err := f.cache.Set(ctx, rawURL, body, f.ttl); err != nil {
		slog.Warn("Detail cache write failed", "url", rawURL, "error", err)
	}
	return body, nil
}

type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, prefix: "gradcafe:detail:"}
}

func (c *RedisCache) Get(ctx context.Context, rawURL string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+rawURL).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, rawURL, body string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+rawURL, body, ttl).Err()
}
