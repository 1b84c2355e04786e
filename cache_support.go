package dat

import (
	"slices"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dat/cache"
)

// unpackCached serves entry from the cache, decoding and storing it on a miss.
// Concurrent misses for the same entry share one decode.
func (a *Archive) unpackCached(entry FileEntry) ([]byte, error) {
	key := cache.Key(a.sourceID, entry, a.legacySizes)
	if content, ok := a.cachedContent(key, entry); ok {
		a.log().Debug("cache hit", "key", key)
		return slices.Clone(content), nil
	}
	a.log().Debug("cache miss", "key", key)

	result, err, _ := a.readGroup.Do(key.String(), func() (any, error) {
		if content, ok := a.cachedContent(key, entry); ok {
			return content, nil
		}
		content, err := a.unpack(entry)
		if err != nil {
			return nil, err
		}
		// Caching is opportunistic.
		if err := a.cache.Put(key, slices.Clone(content)); err != nil {
			a.log().Debug("cache put failed", "key", key, "error", err)
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(result.([]byte)), nil //nolint:errcheck,forcetypeassert // result is always []byte when err is nil
}

// cachedContent returns cached content for key if it has the entry's size.
// Content of any other size is dropped from the cache.
func (a *Archive) cachedContent(key digest.Digest, entry FileEntry) ([]byte, bool) {
	content, ok := a.cache.Get(key)
	if !ok {
		return nil, false
	}
	if uint64(len(content)) != entry.Size {
		_ = a.cache.Delete(key) //nolint:errcheck // best-effort cleanup of a bad entry
		return nil, false
	}
	return content, true
}
