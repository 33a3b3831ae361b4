package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/awehrman/peas/internal/common"
	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir, err := os.MkdirTemp("", "cache-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(nil, common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db.Badger(), "cache:", nil)
}

func TestGetOrSetCachesFallback(t *testing.T) {
	c := newTestCache(t)
	calls := 0
	fallback := func(ctx context.Context) (any, error) {
		calls++
		return "value", nil
	}

	v, err := c.GetOrSet(context.Background(), "key1", fallback, interfaces.CacheOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.Equal(t, "value", v)

	v, err = c.GetOrSet(context.Background(), "key1", fallback, interfaces.CacheOptions{TTL: time.Minute})
	require.NoError(t, err)
	require.Equal(t, "value", v)
	require.Equal(t, 1, calls)
}

func TestSweepEvictsExpiredMemoryEntries(t *testing.T) {
	c := newTestCache(t)
	c.setMemory("stale", "v", time.Nanosecond)
	c.setMemory("fresh", "v", time.Hour)
	time.Sleep(time.Millisecond)

	removed := c.Sweep()
	require.Equal(t, 1, removed)

	_, ok := c.getMemory("fresh")
	require.True(t, ok)
}

func TestInvalidateByTagRemovesSharedEntries(t *testing.T) {
	c := newTestCache(t)
	_, err := c.GetOrSet(context.Background(), "tagged", func(ctx context.Context) (any, error) {
		return "v", nil
	}, interfaces.CacheOptions{Tags: []string{"note:1"}})
	require.NoError(t, err)

	n, err := c.InvalidateByTag(context.Background(), "note:1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok := c.getShared("tagged")
	require.False(t, ok)
}
