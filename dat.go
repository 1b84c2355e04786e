package dat

import (
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/dat/cache"
	"github.com/meigma/dat/internal/dattype"
	"github.com/meigma/dat/internal/format"
	"github.com/meigma/dat/internal/inflate"
	"github.com/meigma/dat/internal/sizing"
	"github.com/meigma/dat/tree"
)

// Re-export types for the public API.
type (
	// Version identifies the on-disk layout of an archive.
	Version = dattype.Version

	// FileEntry locates one stored file inside an archive.
	FileEntry = tree.FileEntry
)

// Re-export version constants.
const (
	VersionUnknown = dattype.VersionUnknown
	VersionDat1    = dattype.VersionDat1
	VersionDat2    = dattype.VersionDat2
)

// DefaultMaxFileSize is the default limit on an entry's stored and decoded size.
const DefaultMaxFileSize = 256 << 20

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Archive provides access to the entries of an opened DAT archive.
//
// The entry tree is immutable after Open and may be queried concurrently.
// Reads of stored bytes share one stream and are serialized; decoding runs
// outside that critical section, so concurrent extraction decodes in parallel.
type Archive struct {
	mu     sync.Mutex // guards r during each seek+read
	r      io.ReadSeeker
	size   int64
	closer io.Closer // set by OpenFile

	version  Version
	checksum int32
	tree     *tree.FileTree
	pool     *inflate.Pool

	maxFileSize uint64
	legacySizes bool
	cache       cache.Cache        // nil = no caching
	sourceID    string             // identifies archive bytes for cache keys
	readGroup   singleflight.Group // zero value is valid
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open parses the archive read from r.
//
// r must be positioned anywhere; Open seeks as needed. The Archive keeps r
// and uses it for every later read, so r must stay valid while the Archive
// is in use. Any parse error aborts Open.
func Open(r io.ReadSeeker, opts ...Option) (*Archive, error) {
	a := &Archive{
		r:           r,
		tree:        tree.New(),
		pool:        inflate.NewPool(),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	a.size = size
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	info, err := format.Parse(r, a.tree)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.version = info.Version
	a.checksum = info.Checksum

	if a.cache != nil && a.sourceID == "" {
		a.log().Warn("cache disabled: archive has no source id")
		a.cache = nil
	}
	a.log().Debug("archive opened", "version", a.version, "entries", info.Files, "bytes", size)
	return a, nil
}

// OpenFile opens the archive at path.
//
// Unless WithSourceID is given, the cache source ID is derived from the
// absolute path, size and modification time of the file. The returned
// Archive must be closed.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path) //nolint:gosec // opening a caller-chosen archive is the point
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id := digest.FromString(fmt.Sprintf("%s\x00%d\x00%d", abs, info.Size(), info.ModTime().UnixNano()))

	a, err := Open(f, append([]Option{WithSourceID(id.String())}, opts...)...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// Close releases the file opened by OpenFile.
// For archives created with Open it is a no-op; the caller owns the stream.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.closer.Close()
	a.closer = nil
	return err
}

// Version returns the detected archive layout.
func (a *Archive) Version() Version {
	return a.version
}

// Checksum returns the format-1 header checksum, or zero for format 2.
// The value is not verified.
func (a *Archive) Checksum() int32 {
	return a.checksum
}

// Registry returns the tree of entries.
func (a *Archive) Registry() *tree.FileTree {
	return a.tree
}

// Size returns the archive size in bytes.
func (a *Archive) Size() int64 {
	return a.size
}

// Len returns the number of file entries.
func (a *Archive) Len() int {
	return a.tree.Len()
}

// SourceID returns the identifier used for cache keys, or "" if none is set.
func (a *Archive) SourceID() string {
	return a.sourceID
}

// Entry returns the file entry at path. ok is false for missing paths
// and directories.
func (a *Archive) Entry(path string) (FileEntry, bool) {
	n, ok := a.tree.Get(path)
	if !ok {
		return FileEntry{}, false
	}
	return n.Entry()
}

// Entries returns a depth-first sequence of every file path and entry.
func (a *Archive) Entries() iter.Seq2[string, FileEntry] {
	return func(yield func(string, FileEntry) bool) {
		for n := range a.tree.Files() {
			entry, _ := n.Entry()
			if !yield(n.Path(), entry) {
				return
			}
		}
	}
}

// EntryData returns the stored bytes of entry without decoding them.
func (a *Archive) EntryData(entry FileEntry) ([]byte, error) {
	if err := a.validate(entry); err != nil {
		return nil, err
	}
	return a.readStored(entry)
}

// UnpackFile returns the decoded content of entry.
//
// Format-1 compressed entries are LZSS-decoded and format-2 compressed
// entries inflated; other entries are returned as stored. Decoded content
// whose length differs from entry.Size is an error unless WithLegacySizes
// is set. When caching is enabled, concurrent calls for the same entry are
// deduplicated.
func (a *Archive) UnpackFile(entry FileEntry) ([]byte, error) {
	if err := a.validate(entry); err != nil {
		return nil, err
	}
	if a.cache != nil {
		return a.unpackCached(entry)
	}
	return a.unpack(entry)
}

// unpack reads and decodes entry without consulting the cache.
func (a *Archive) unpack(entry FileEntry) ([]byte, error) {
	stored, err := a.readStored(entry)
	if err != nil {
		return nil, err
	}
	return a.decode(entry, stored)
}

// readStored reads the stored bytes of entry in one critical section.
func (a *Archive) readStored(entry FileEntry) ([]byte, error) {
	n, err := sizing.ToInt(entry.StoredSize(), ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	off, err := sizing.ToInt64(entry.Offset, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.r.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek to %d: %v", ErrRead, off, err)
	}
	if _, err := io.ReadFull(a.r, buf); err != nil {
		return nil, fmt.Errorf("%w: %d bytes at %d: %v", ErrRead, n, off, err)
	}
	return buf, nil
}

// validate checks that entry lies inside the archive and within size limits.
func (a *Archive) validate(entry FileEntry) error {
	stored := entry.StoredSize()
	if a.maxFileSize > 0 && (stored > a.maxFileSize || entry.Size > a.maxFileSize) {
		return fmt.Errorf("%w: entry of %d bytes (%d stored) exceeds limit %d",
			ErrSizeOverflow, entry.Size, stored, a.maxFileSize)
	}
	if !sizing.Within(entry.Offset, stored, a.size) {
		return fmt.Errorf("%w: %d bytes at %d exceed %d-byte archive", ErrRead, stored, entry.Offset, a.size)
	}
	return nil
}
