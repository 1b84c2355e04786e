// Package memory provides an in-process cache of decoded archive entries
// with TinyLFU admission and eviction.
package memory

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/dat/cache"
)

const defaultCapacity = 1024

var _ cache.Cache = (*Cache)(nil)

// Cache holds up to a fixed number of entries in memory.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lfu      *tinylfu.T[digest.Digest, []byte]
	capacity int
}

// Option configures a memory cache.
type Option func(*Cache)

// WithCapacity sets the number of entries the cache holds. Defaults to 1024.
// Values below 1 keep the default.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// New creates an empty memory cache.
func New(opts ...Option) *Cache {
	c := &Cache{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	c.lfu = tinylfu.New[digest.Digest, []byte](c.capacity, c.capacity*10, hashKey)
	return c
}

// Capacity returns the number of entries the cache holds.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Get returns the cached content for key.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.lfu.Get(key)
	if !ok || content == nil {
		return nil, false
	}
	return content, true
}

// Put stores content under key. Empty content is not cached.
func (c *Cache) Put(key digest.Digest, content []byte) error {
	if len(content) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lfu.Add(key, content)
	return nil
}

// Delete forgets the content for key.
// The key keeps its admission history and its slot until evicted.
func (c *Cache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lfu.Get(key); ok {
		c.lfu.Add(key, nil)
	}
	return nil
}

func hashKey(key digest.Digest) uint64 {
	return xxhash.Sum64String(string(key))
}
