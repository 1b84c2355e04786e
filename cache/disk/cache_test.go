package disk

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	content := []byte("hello")
	key := digest.FromString("entry-1")
	require.NoError(t, c.Put(key, content))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), c.SizeBytes())

	path := filepath.Join(dir, key.Encoded()[:defaultShardPrefixLen], "sha256-"+key.Encoded())
	_, err = os.Stat(path)
	require.NoError(t, err, "expected cache file at %s", path)

	// A second Put of an existing key is a no-op.
	require.NoError(t, c.Put(key, []byte("other")))
	got, _ = c.Get(key)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), c.SizeBytes())
}

func TestCacheMiss(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	_, ok := c.Get(digest.FromString("absent"))
	assert.False(t, ok)

	_, ok = c.Get(digest.Digest("not-a-digest"))
	assert.False(t, ok)
	require.Error(t, c.Put(digest.Digest("sha256:short"), []byte("x")))
}

func TestCacheShardDisable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithShardPrefixLen(0))
	require.NoError(t, err)

	key := digest.FromString("flat")
	require.NoError(t, c.Put(key, []byte("flat")))

	_, err = os.Stat(filepath.Join(dir, "sha256-"+key.Encoded()))
	require.NoError(t, err)
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	key := digest.FromString("gone")
	require.NoError(t, c.Put(key, []byte("gone")))
	require.NoError(t, c.Delete(key))
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Zero(t, c.SizeBytes())

	require.NoError(t, c.Delete(key), "deleting a missing key is a no-op")
}

func TestCacheMaxBytes(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), WithMaxBytes(10))
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.MaxBytes())

	oldKey := digest.FromString("old")
	require.NoError(t, c.Put(oldKey, []byte("123456")))
	// Make the first entry strictly older so pruning order is deterministic.
	past := time.Now().Add(-time.Hour)
	path, err := c.path(oldKey)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, past, past))

	newKey := digest.FromString("new")
	require.NoError(t, c.Put(newKey, []byte("abcdef")))

	_, ok := c.Get(oldKey)
	assert.False(t, ok, "oldest entry should be pruned")
	_, ok = c.Get(newKey)
	assert.True(t, ok)
	assert.LessOrEqual(t, c.SizeBytes(), int64(10))

	// Content larger than the limit is declined without error.
	bigKey := digest.FromString("big")
	require.NoError(t, c.Put(bigKey, make([]byte, 11)))
	_, ok = c.Get(bigKey)
	assert.False(t, ok)
}

func TestCachePrune(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), WithShardPrefixLen(1))
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put(digest.FromString(s), []byte("1234")))
	}
	assert.Equal(t, int64(12), c.SizeBytes())

	freed, err := c.Prune(4)
	require.NoError(t, err)
	assert.Equal(t, int64(8), freed)
	assert.Equal(t, int64(4), c.SizeBytes())

	freed, err = c.Prune(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), freed)
	assert.Zero(t, c.SizeBytes())
}

func TestNewRecoversSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(digest.FromString("kept"), []byte("persisted")))

	reopened, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(len("persisted")), reopened.SizeBytes())
	got, ok := reopened.Get(digest.FromString("kept"))
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)
}

func TestNewInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
	_, err = New(t.TempDir(), WithShardPrefixLen(-1))
	require.Error(t, err)
	_, err = New(t.TempDir(), WithMaxBytes(-1))
	require.Error(t, err)
}

func TestCacheConcurrentPut(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)
	key := digest.FromString("shared")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Put(key, []byte("same")))
		}()
	}
	wg.Wait()

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("same"), got)
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), WithMaxBytes(8))
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	keys := []digest.Digest{digest.FromString("first"), digest.FromString("second")}
	for i, key := range keys {
		require.NoError(t, c.Put(key, []byte("1234")))
		path, err := c.path(key)
		require.NoError(t, err)
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}

	_, ok := c.Get(keys[0])
	require.True(t, ok)

	require.NoError(t, c.Put(digest.FromString("third"), []byte("5678")))
	_, ok = c.Get(keys[0])
	assert.True(t, ok, "recently read entry should survive")
	_, ok = c.Get(keys[1])
	assert.False(t, ok, "least recently used entry should be evicted")
}

func TestScanSkipsTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tempPrefix+"partial"), []byte("xxxx"), 0o600))
	c, err := New(dir)
	require.NoError(t, err)
	assert.Zero(t, c.SizeBytes())
}
