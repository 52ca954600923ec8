package cache

import (
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Level:  hclog.Debug,
		Output: os.Stderr,
		Name:   "test.postreview",
	})
}

func TestCache_StoreAndGet(t *testing.T) {
	t.Parallel()

	c, err := NewCache(newTestLogger(), WithDirectory(t.TempDir()))
	require.NoError(t, err)

	const key = "https://reviews.example.com/api/"
	payload := []byte(`{"stat":"ok"}`)

	_, ok := c.Get(key)
	assert.False(t, ok, "missing entries are a miss")

	require.NoError(t, c.Store(key, payload))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	// Overwriting replaces the entry.
	require.NoError(t, c.Store(key, []byte(`{"stat":"ok","v":2}`)))

	got, ok = c.Get(key)
	require.True(t, ok)
	assert.Contains(t, string(got), `"v":2`)
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()

	c, err := NewCache(newTestLogger(),
		WithDirectory(t.TempDir()),
		WithTTL(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, c.Store("key", []byte("data")))

	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok, "expired entries are a miss")
}

func TestCache_Disabled(t *testing.T) {
	t.Parallel()

	c, err := NewCache(newTestLogger(),
		WithDirectory(t.TempDir()),
		WithCaching(false),
	)
	require.NoError(t, err)

	require.NoError(t, c.Store("key", []byte("data")))

	_, ok := c.Get("key")
	assert.False(t, ok, "disabled cache never hits")
}

func TestCache_Refresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c, err := NewCache(newTestLogger(), WithDirectory(dir))
	require.NoError(t, err)
	require.NoError(t, c.Store("key", []byte("data")))

	refreshing, err := NewCache(newTestLogger(), WithDirectory(dir), WithRefresh(true))
	require.NoError(t, err)

	_, ok := refreshing.Get("key")
	assert.False(t, ok, "refresh bypasses existing entries")
}

func TestCache_KeysDoNotCollide(t *testing.T) {
	t.Parallel()

	c, err := NewCache(newTestLogger(), WithDirectory(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, c.Store("https://a.example.com/api/", []byte("a")))
	require.NoError(t, c.Store("https://b.example.com/api/", []byte("b")))

	got, ok := c.Get("https://a.example.com/api/")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)
}
