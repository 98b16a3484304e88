package redis

// Package redis provides the Redis-backed persistent local cache for storefront visitors.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/storefront-api/internal/ports"
)

const (
	defaultPrefix = "storefront:visitor:"
	defaultTTL    = 30 * 24 * time.Hour
)

// LocalCacheStore keeps one namespace per visitor: <prefix><visitorID>:<key>.
// Every write refreshes the key's TTL so active visitors keep their cart and session.
type LocalCacheStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ ports.LocalCacheFactory = (*LocalCacheStore)(nil)

// LocalCacheOptions configures a LocalCacheStore. Zero values use defaults.
type LocalCacheOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewLocalCacheStore creates a Redis-based cache store.
func NewLocalCacheStore(client redis.UniversalClient, opts LocalCacheOptions) *LocalCacheStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LocalCacheStore{client: client, prefix: prefix, ttl: ttl}
}

// ForVisitor returns the cache namespace of a visitor.
func (s *LocalCacheStore) ForVisitor(visitorID string) ports.LocalCache {
	return &VisitorCache{store: s, visitorID: visitorID}
}

// Dump returns every key stored for a visitor. Used by operator tooling.
func (s *LocalCacheStore) Dump(ctx context.Context, visitorID string) (map[string][]byte, error) {
	if visitorID == "" {
		return nil, errors.New("visitor ID cannot be empty")
	}
	base := s.prefix + visitorID + ":"
	out := make(map[string][]byte)
	iter := s.client.Scan(ctx, 0, base+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		data, err := s.client.Get(ctx, full).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get: %w", err)
		}
		out[strings.TrimPrefix(full, base)] = data
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

// VisitorCache implements ports.LocalCache for a single visitor.
type VisitorCache struct {
	store     *LocalCacheStore
	visitorID string
}

var _ ports.LocalCache = (*VisitorCache)(nil)

func (c *VisitorCache) key(k string) (string, error) {
	if c.visitorID == "" {
		return "", errors.New("visitor ID cannot be empty")
	}
	if k == "" {
		return "", errors.New("cache key cannot be empty")
	}
	return c.store.prefix + c.visitorID + ":" + k, nil
}

func (c *VisitorCache) Read(ctx context.Context, k string) ([]byte, error) {
	key, err := c.key(k)
	if err != nil {
		return nil, err
	}
	data, err := c.store.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (c *VisitorCache) Write(ctx context.Context, k string, blob []byte) error {
	key, err := c.key(k)
	if err != nil {
		return err
	}
	return c.store.client.Set(ctx, key, blob, c.store.ttl).Err()
}

func (c *VisitorCache) Erase(ctx context.Context, k string) error {
	key, err := c.key(k)
	if err != nil {
		return err
	}
	return c.store.client.Del(ctx, key).Err()
}
