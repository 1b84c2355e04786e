package batch

import (
	"io"

	"github.com/meigma/dat/tree"
)

// Entry is a file entry paired with its archive path.
type Entry struct {
	Path string
	tree.FileEntry
}

// Source produces the decoded content of an entry.
//
// Implementations must be safe for concurrent use; serializing access to an
// underlying stream is their concern.
type Source interface {
	UnpackFile(entry tree.FileEntry) ([]byte, error)
}

// Sink receives decoded file content during batch processing.
//
// Implementations determine where content is written and can filter which
// entries to process. Sinks are called from multiple goroutines.
type Sink interface {
	// ShouldProcess returns false if this entry should be skipped.
	ShouldProcess(entry *Entry) bool

	// Writer returns a writer for the entry's content.
	// The caller writes the content and then calls Commit, or Discard on
	// any error.
	Writer(entry *Entry) (Committer, error)
}

// Committer is a writer that can be committed or discarded.
type Committer interface {
	io.Writer

	// Commit finalizes the write, making content available.
	Commit() error

	// Discard aborts the write and cleans up any temporary resources.
	Discard() error
}
