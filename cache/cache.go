// Package cache stores decoded archive entries so repeated reads skip the
// stream and the decoder.
//
// Keys are digests of where an entry lives (the archive's source ID and the
// entry's offset and sizes) and how it was decoded, not of its content. A key is only stable for as
// long as the source ID identifies unchanged archive bytes.
package cache

import (
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dat/tree"
)

// Cache stores decoded entry content.
//
// Implementations handle their own size limits and eviction policies and
// must be safe for concurrent use.
type Cache interface {
	// Get returns the cached content for key.
	// The returned slice must not be modified.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores content under key. The cache may decline to keep it.
	Put(key digest.Digest, content []byte) error

	// Delete removes the content for key. Missing keys are a no-op.
	Delete(key digest.Digest) error
}

// Key returns the cache key for entry in the archive identified by sourceID.
// legacySizes selects the padded-or-truncated decoding mode, whose content
// may differ from a strict decode of the same entry.
func Key(sourceID string, entry tree.FileEntry, legacySizes bool) digest.Digest {
	return digest.FromString(fmt.Sprintf("dat\x00%s\x00%d\x00%d\x00%t\x00%d\x00%t",
		sourceID, entry.Offset, entry.Size, entry.Compressed, entry.PackedSize, legacySizes))
}
