package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setupTestEnvironment(t *testing.T) (*Cache, func()) {
	t.Helper()

	cache := NewCache(0, 0)

	cleanup := func() {
		cache.Flush()
	}

	return cache, cleanup
}

func TestCache_SetGet(t *testing.T) {
	cache, cleanup := setupTestEnvironment(t)
	defer cleanup()

	cache.Set(CacheKeyUnreadBlogs("u1"), 3)

	v, ok := cache.Get(CacheKeyUnreadBlogs("u1"))
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = cache.Get(CacheKeyUnreadBlogs("u2"))
	assert.False(t, ok)
}

func TestCache_Expiration(t *testing.T) {
	cache, cleanup := setupTestEnvironment(t)
	defer cleanup()

	cache.Set("key", "value", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Get("key")
	assert.False(t, ok, "expected key to expire")
}

func TestCache_Delete(t *testing.T) {
	cache, cleanup := setupTestEnvironment(t)
	defer cleanup()

	cache.Set("key", "value")
	cache.Delete("key")

	_, ok := cache.Get("key")
	assert.False(t, ok, "expected key to be deleted")
}

func TestCache_Flush(t *testing.T) {
	cache, cleanup := setupTestEnvironment(t)
	defer cleanup()

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Flush()

	assert.Equal(t, 0, cache.ItemCount())
}
