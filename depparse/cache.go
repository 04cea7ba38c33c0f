package depparse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/brunobiangulo/depfacts/extract"
	backend "github.com/redis/go-redis/v9"
)

const defaultCachePrefix = "depfacts:deps:"

// CacheOption configures a Cached source.
type CacheOption func(*Cached)

// WithCacheTTL sets the expiration of cached annotations. Zero keeps them
// forever.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cached) { c.ttl = ttl }
}

// WithCachePrefix sets the key prefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cached) { c.prefix = prefix }
}

// Cached wraps a Source with a Redis cache of annotations keyed by scheme and
// the SHA-256 of the text. Redis failures are logged and the wrapped source is
// used directly. Failed annotations are never cached.
type Cached struct {
	next   Source
	client *backend.Client
	scheme string
	prefix string
	ttl    time.Duration
}

// NewCached wraps next. scheme is part of the key so that switching schemes
// does not return stale edges.
func NewCached(next Source, client *backend.Client, scheme string, opts ...CacheOption) *Cached {
	c := &Cached{
		next:   next,
		client: client,
		scheme: scheme,
		prefix: defaultCachePrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects to a Redis server.
func NewRedisClient(addr, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + c.scheme + ":" + hex.EncodeToString(sum[:])
}

// Parse returns cached edges for text or annotates it with the wrapped source.
func (c *Cached) Parse(ctx context.Context, text string) ([]extract.Edge, error) {
	key := c.key(text)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var edges []extract.Edge
		jerr := json.Unmarshal(data, &edges)
		if jerr == nil {
			slog.Debug("depparse: cache hit", "key", key, "edges", len(edges))
			return edges, nil
		}
		slog.Warn("depparse: dropping corrupt cache entry", "key", key, "error", jerr)
	case errors.Is(err, backend.Nil):
	default:
		slog.Warn("depparse: cache read failed", "error", err)
	}

	edges, err := c.next.Parse(ctx, text)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(edges)
	if err != nil {
		return edges, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("depparse: cache write failed", "error", err)
	}
	return edges, nil
}
