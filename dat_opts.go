package dat

import (
	"log/slog"

	"github.com/meigma/dat/cache"
)

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithMaxFileSize limits the maximum per-entry size (stored and decoded).
// Set limit to 0 to disable the limit. Defaults to DefaultMaxFileSize.
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithLegacySizes controls how decoded content of the wrong length is handled.
//
// When enabled, content is zero-padded or truncated to the size the entry
// declares, as the original game tools do. By default a mismatch is
// ErrSizeMismatch, or ErrTruncated for a deflate stream that ends early.
func WithLegacySizes(enabled bool) Option {
	return func(a *Archive) {
		a.legacySizes = enabled
	}
}

// WithCache enables caching of decoded entries.
//
// Caching requires a source ID identifying the archive bytes. OpenFile
// derives one; archives opened with Open need WithSourceID, or the cache is
// disabled with a warning.
func WithCache(c cache.Cache) Option {
	return func(a *Archive) {
		a.cache = c
	}
}

// WithSourceID sets the identifier used to build cache keys.
// It must change whenever the archive bytes change.
func WithSourceID(id string) Option {
	return func(a *Archive) {
		a.sourceID = id
	}
}

// CopyOption configures CopyTo and CopyDir operations.
type CopyOption func(*copyConfig)

type copyConfig struct {
	overwrite      bool
	workers        int
	readAheadBytes uint64
	patterns       []string
}

// CopyWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func CopyWithOverwrite(overwrite bool) CopyOption {
	return func(c *copyConfig) {
		c.overwrite = overwrite
	}
}

// CopyWithWorkers sets the number of workers for parallel decoding.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
// Values > 0 force a specific worker count.
func CopyWithWorkers(n int) CopyOption {
	return func(c *copyConfig) {
		c.workers = n
	}
}

// CopyWithReadAheadBytes caps the total decoded size of entries in flight.
// A value of 0 disables the byte budget.
func CopyWithReadAheadBytes(limit uint64) CopyOption {
	return func(c *copyConfig) {
		c.readAheadBytes = limit
	}
}

// CopyWithMatch restricts copying to entries whose path matches pattern.
// Patterns use doublestar syntax ("art/**/*.frm") and are matched against
// lowercase slash paths. Repeating the option matches any of the patterns.
func CopyWithMatch(pattern string) CopyOption {
	return func(c *copyConfig) {
		c.patterns = append(c.patterns, pattern)
	}
}
