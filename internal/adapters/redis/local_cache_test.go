package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/storefront-api/internal/ports"
	"github.com/target/storefront-api/internal/testutil"
)

func TestLocalCache_WriteAndRead(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewLocalCacheStore(client, LocalCacheOptions{})
	cache := store.ForVisitor("visitor-1")
	ctx := context.Background()

	blob := []byte(`{"user":"u@example.com","role":"user","isAuthenticated":true}`)
	require.NoError(t, cache.Write(ctx, ports.CacheKeyAuth, blob))

	got, err := cache.Read(ctx, ports.CacheKeyAuth)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestLocalCache_ReadMissing(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	cache := NewLocalCacheStore(client, LocalCacheOptions{}).ForVisitor("visitor-1")

	_, err := cache.Read(context.Background(), ports.CacheKeyCart)
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestLocalCache_KeysAreIndependent(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	cache := NewLocalCacheStore(client, LocalCacheOptions{}).ForVisitor("visitor-1")
	ctx := context.Background()

	require.NoError(t, cache.Write(ctx, ports.CacheKeyAuth, []byte(`auth`)))
	require.NoError(t, cache.Write(ctx, ports.CacheKeyCart, []byte(`cart`)))
	require.NoError(t, cache.Erase(ctx, ports.CacheKeyAuth))

	_, err := cache.Read(ctx, ports.CacheKeyAuth)
	require.ErrorIs(t, err, ports.ErrCacheMiss)

	got, err := cache.Read(ctx, ports.CacheKeyCart)
	require.NoError(t, err)
	assert.Equal(t, []byte(`cart`), got)
}

func TestLocalCache_VisitorsAreIsolated(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewLocalCacheStore(client, LocalCacheOptions{})
	ctx := context.Background()

	require.NoError(t, store.ForVisitor("a").Write(ctx, ports.CacheKeyCart, []byte(`a-cart`)))

	_, err := store.ForVisitor("b").Read(ctx, ports.CacheKeyCart)
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestLocalCache_CustomPrefix(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewLocalCacheStore(client, LocalCacheOptions{Prefix: "test-prefix:"})
	ctx := context.Background()

	require.NoError(t, store.ForVisitor("v").Write(ctx, ports.CacheKeyCart, []byte(`[]`)))
	assert.Equal(t, int64(1), client.Exists(ctx, "test-prefix:v:cart").Val())
}

func TestLocalCache_TTLExpiration(t *testing.T) {
	mr, client := testutil.StartMiniRedis(t)
	cache := NewLocalCacheStore(client, LocalCacheOptions{TTL: time.Minute}).ForVisitor("v")
	ctx := context.Background()

	require.NoError(t, cache.Write(ctx, ports.CacheKeyCart, []byte(`[]`)))
	mr.FastForward(2 * time.Minute)

	_, err := cache.Read(ctx, ports.CacheKeyCart)
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestLocalCache_EmptyVisitorOrKey(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewLocalCacheStore(client, LocalCacheOptions{})
	ctx := context.Background()

	err := store.ForVisitor("").Write(ctx, ports.CacheKeyCart, []byte(`[]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visitor ID cannot be empty")

	_, err = store.ForVisitor("v").Read(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache key cannot be empty")
}

func TestLocalCacheStore_Dump(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewLocalCacheStore(client, LocalCacheOptions{})
	ctx := context.Background()
	cache := store.ForVisitor("v")

	require.NoError(t, cache.Write(ctx, ports.CacheKeyAuth, []byte(`a`)))
	require.NoError(t, cache.Write(ctx, ports.CacheKeyCart, []byte(`c`)))
	require.NoError(t, store.ForVisitor("other").Write(ctx, ports.CacheKeyCart, []byte(`x`)))

	dump, err := store.Dump(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"auth": []byte(`a`), "cart": []byte(`c`)}, dump)
}
