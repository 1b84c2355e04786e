// Package disk provides a disk-backed cache of decoded archive entries.
//
// Each entry is one file named after its key digest, optionally sharded into
// subdirectories by the leading hex characters of the digest. Reads refresh
// the file's modification time, and pruning evicts the oldest files first, so
// a size-limited cache behaves as an LRU.
package disk

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dat/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	filePerm              = 0o600
	tempPrefix            = ".tmp-"
)

var _ cache.Cache = (*Cache)(nil)

// Cache implements cache.Cache on the local filesystem.
// It is safe for concurrent use, including by several processes sharing dir.
type Cache struct {
	dir      string
	shardLen int
	dirPerm  os.FileMode
	maxBytes int64 // 0 = unlimited

	used    atomic.Int64 // bytes held, as far as this process knows
	pruneMu sync.Mutex
}

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets how many hex characters of the digest name the
// shard directory. Use 0 to keep every entry directly in dir. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) { c.shardLen = n }
}

// WithDirPerm sets the permissions of created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) { c.dirPerm = mode }
}

// WithMaxBytes bounds the total size of cached content. 0 disables the bound.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) { c.maxBytes = n }
}

// New opens or creates a cache rooted at dir.
// The size of content already present in dir counts towards WithMaxBytes.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("disk cache: empty directory")
	}
	c := &Cache{dir: dir, shardLen: defaultShardPrefixLen, dirPerm: defaultDirPerm}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.shardLen < 0:
		return nil, fmt.Errorf("disk cache: negative shard prefix length %d", c.shardLen)
	case c.maxBytes < 0:
		return nil, fmt.Errorf("disk cache: negative size limit %d", c.maxBytes)
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	used, err := dirSize(dir)
	if err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	c.used.Store(used)
	return c, nil
}

// Get returns the content stored under key.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	content, err := os.ReadFile(path) //nolint:gosec // path is built from a validated digest
	if err != nil {
		return nil, false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now) //nolint:errcheck // recency is advisory
	return content, true
}

// Put stores content under key. Content that alone exceeds the size limit
// is dropped without error, as is content for a key already present.
func (c *Cache) Put(key digest.Digest, content []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	n := int64(len(content))
	fits, err := c.reserve(n)
	if err != nil || !fits {
		return err
	}
	if err := c.writeFile(path, content); err != nil {
		return err
	}
	c.used.Add(n)
	return nil
}

// Delete removes the content stored under key. A missing key is not an error.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	c.used.Add(-info.Size())
	return nil
}

// MaxBytes returns the size limit, 0 meaning unlimited.
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

// SizeBytes returns the bytes of content currently held.
func (c *Cache) SizeBytes() int64 { return c.used.Load() }

// Prune evicts least recently used entries until at most targetBytes remain
// and returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, max(targetBytes, 0))
	if err != nil {
		return 0, err
	}
	c.used.Store(remaining)
	return freed, nil
}

// path maps key to its file, "<dir>/<shard>/<algorithm>-<hex>".
func (c *Cache) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("disk cache: key %q: %w", key, err)
	}
	encoded := key.Encoded()
	name := key.Algorithm().String() + "-" + encoded
	if c.shardLen == 0 {
		return filepath.Join(c.dir, name), nil
	}
	return filepath.Join(c.dir, encoded[:min(c.shardLen, len(encoded))], name), nil
}

// reserve makes room for n more bytes, pruning if needed. It reports false
// when n can never fit.
func (c *Cache) reserve(n int64) (bool, error) {
	if c.maxBytes == 0 {
		return true, nil
	}
	if n > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+n <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - n); err != nil {
		return false, err
	}
	return c.SizeBytes()+n <= c.maxBytes, nil
}

// writeFile publishes content at path through a temp file and rename, so
// readers never see a partial entry.
func (c *Cache) writeFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}
	tmp := filepath.Join(dir, tempPrefix+rand.Text())
	if err := os.WriteFile(tmp, content, filePerm); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return err
	}
	return nil
}
