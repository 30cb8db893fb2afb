package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryCacheWithConfig(t *testing.T) {
	config := CacheConfig{
		DefaultTTL: 10 * time.Minute,
		Prefix:     "test:",
	}
	cache := NewMemoryCacheWithConfig(config)
	defer cache.Close()

	assert.Equal(t, config.DefaultTTL, cache.config.DefaultTTL)
	assert.Equal(t, config.Prefix, cache.config.Prefix)
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := cache.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))

	ok, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_DeletePrefix(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	for _, key := range []string{"billing:plans:1", "billing:plans:2", "billing:plansx", "users:1"} {
		require.NoError(t, cache.Set(ctx, key, []byte("v"), time.Minute))
	}

	removed, err := cache.DeletePrefix(ctx, "billing:plans:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ok, _ := cache.Exists(ctx, "billing:plansx")
	assert.True(t, ok)
	ok, _ = cache.Exists(ctx, "users:1")
	assert.True(t, ok)
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, cache.Clear(ctx))

	ok, _ := cache.Exists(ctx, "a")
	assert.False(t, ok)
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, 0), context.Canceled)
	_, err = cache.DeletePrefix(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "billing:plans:t1", JoinKey("billing", "plans", "t1"))
	assert.Equal(t, "a%3Ab:c", JoinKey("a:b", "c"))
	assert.Equal(t, "100%25", JoinKey("100%"))
	assert.Equal(t, "billing:", ChildPrefix("billing"))
}
